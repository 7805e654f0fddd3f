package cmd

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/Dyastin-0/gota/core"
	"github.com/Dyastin-0/gota/mdns"
)

var (
	ErrNotIPAddress = errors.New("must be a valid ip address")
	ErrEmptyValue   = errors.New("must not be empty")
	ErrNotAFile     = errors.New("must be a regular file")
	ErrBadWindow    = errors.New("must be positive")
)

// ValidationError names the flag that carried a bad value.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// uploadOptions is the raw flag input of the upload command.
type uploadOptions struct {
	File        string
	Dir         string
	Interface   string
	DeviceIP    string
	DevicePort  int
	Password    string
	ServiceName string
	ServiceType string
	Window      time.Duration
}

// config checks every option before anything touches the network.
func (o uploadOptions) config() (core.Config, error) {
	cfg := core.Config{
		FilePath:    strings.TrimSpace(o.File),
		FirmwareDir: o.Dir,
		DevicePort:  o.DevicePort,
		Password:    o.Password,
		ServiceName: strings.TrimSpace(o.ServiceName),
		ServiceType: strings.TrimSpace(o.ServiceType),
		Window:      o.Window,
	}

	if cfg.FilePath != "" {
		if err := validateFile(cfg.FilePath); err != nil {
			return cfg, &ValidationError{Field: "file", Err: err}
		}
	}

	ip, err := validateIP(o.Interface)
	if err != nil {
		return cfg, &ValidationError{Field: "interface", Err: err}
	}
	cfg.InterfaceIP = ip

	if o.DeviceIP != "" {
		if _, err := validateIP(o.DeviceIP); err != nil {
			return cfg, &ValidationError{Field: "device-ip", Err: err}
		}
		cfg.DeviceIP = strings.TrimSpace(o.DeviceIP)

		if err := validatePort(o.DevicePort); err != nil {
			return cfg, &ValidationError{Field: "device-port", Err: err}
		}
	} else if o.DevicePort != 0 {
		if err := validatePort(o.DevicePort); err != nil {
			return cfg, &ValidationError{Field: "device-port", Err: err}
		}
	}

	if err := validateService(cfg.ServiceName, cfg.ServiceType, cfg.Window); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func validateService(name, recordType string, window time.Duration) error {
	if name == "" {
		return &ValidationError{Field: "dns-service-name", Err: ErrEmptyValue}
	}

	if _, err := mdns.ParseType(recordType); err != nil {
		return &ValidationError{Field: "dns-service-type", Err: err}
	}

	if window <= 0 {
		return &ValidationError{Field: "window", Err: ErrBadWindow}
	}

	return nil
}

// validateIP accepts an empty value as "unset".
func validateIP(value string) (net.IP, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	ip := net.ParseIP(value)
	if ip == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotIPAddress, value)
	}
	return ip, nil
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return core.ErrInvalidPort
	}
	return nil
}

func validateFile(path string) error {
	stat, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !stat.Mode().IsRegular() {
		return ErrNotAFile
	}
	return nil
}
