package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/Dyastin-0/gota/logger"
	"github.com/Dyastin-0/gota/mdns"
)

// ScanRequest names the interface to scan on and the service answers must
// carry.
type ScanRequest struct {
	InterfaceIP net.IP
	ServiceName string
	ServiceType string
	Window      time.Duration
}

type ScannerOption func(*Scanner)

func WithScannerLogger(l logger.Logger) ScannerOption {
	return func(s *Scanner) { s.log = l }
}

// WithTransport replaces the multicast socket factory.
func WithTransport(open func(net.IP) (mdns.Transport, error)) ScannerOption {
	return func(s *Scanner) { s.open = open }
}

type Scanner struct {
	open func(net.IP) (mdns.Transport, error)
	log  logger.Logger
}

func NewScanner(opts ...ScannerOption) *Scanner {
	s := &Scanner{
		open: func(ip net.IP) (mdns.Transport, error) { return mdns.Listen(ip) },
		log:  logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan sends one query and collects answers until the window closes. It
// returns early only when ctx is done.
func (s *Scanner) Scan(ctx context.Context, req ScanRequest) (*DeviceRegistry, error) {
	if req.ServiceName == "" {
		req.ServiceName = DefaultServiceName
	}
	if req.ServiceType == "" {
		req.ServiceType = DefaultServiceType
	}
	if req.Window <= 0 {
		req.Window = DefaultScanWindow
	}

	qtype, err := mdns.ParseType(req.ServiceType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanFailure, err)
	}

	query, err := mdns.Query(req.ServiceName, qtype)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanFailure, err)
	}

	t, err := s.open(req.InterfaceIP)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanFailure, err)
	}
	defer func() {
		if err := t.Close(); err != nil {
			s.log.WithErr(err).Warn("failed to close mdns socket")
		}
	}()

	window, cancel := context.WithTimeout(ctx, req.Window)
	defer cancel()

	log := s.log.WithStr("service", req.ServiceName).WithStr("type", req.ServiceType)

	if err := t.Send(window, query); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrScanFailure, err)
	}

	log.Debug("query sent")

	builder := newRegistryBuilder()

	for {
		packet, src, err := t.Receive(window)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if window.Err() != nil || errors.Is(err, os.ErrDeadlineExceeded) {
				break
			}
			return nil, fmt.Errorf("%w: %w", ErrScanFailure, err)
		}

		if window.Err() != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			log.Debug("dropping response received after the window")
			break
		}

		d, err := readAnswer(packet, src, req.ServiceName, qtype)
		if err != nil {
			log.WithErr(err).Debug("skipping packet")
			continue
		}

		if builder.put(d) {
			log.WithStr("name", d.Name).WithStr("address", d.Address).Info("device found")
		}
	}

	registry := builder.freeze()
	log.WithInt("devices", registry.Len()).Info("scan complete")
	return registry, nil
}

var errNotAnswer = errors.New("not an answer for the scanned service")

// readAnswer turns a response packet into a device record. Packets without
// a matching answer, or without a host name, give no record.
func readAnswer(packet []byte, src net.Addr, name string, qtype uint16) (*DeviceRecord, error) {
	m, err := mdns.Parse(packet)
	if err != nil {
		return nil, err
	}

	if !mdns.HasAnswer(m, name, qtype) {
		return nil, errNotAnswer
	}

	host := mdns.HostName(m)
	if host == "" {
		return nil, errors.New("answer carries no host name")
	}

	metadata := mdns.Text(m)
	if metadata == nil {
		metadata = map[string]string{}
	}

	return &DeviceRecord{
		Name:     host,
		Address:  sourceIP(src),
		Metadata: metadata,
	}, nil
}

func sourceIP(addr net.Addr) string {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return (&net.IPAddr{IP: a.IP, Zone: a.Zone}).String()
	case nil:
		return ""
	default:
		host, _, err := net.SplitHostPort(a.String())
		if err != nil {
			return a.String()
		}
		return host
	}
}
