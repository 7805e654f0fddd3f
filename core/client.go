package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/Dyastin-0/gota/logger"
	"github.com/Dyastin-0/gota/styles"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
)

// Config is everything a run needs. Zero values mean "ask" or "discover".
type Config struct {
	FilePath    string
	FirmwareDir string
	InterfaceIP net.IP
	DeviceIP    string
	DevicePort  int
	Password    string
	ServiceName string
	ServiceType string
	Window      time.Duration
}

type ClientOption func(*Client)

func WithSelector(s Selector) ClientOption {
	return func(c *Client) { c.selector = s }
}

// WithConfirm replaces the yes/no prompt.
func WithConfirm(confirm func(string) bool) ClientOption {
	return func(c *Client) { c.confirm = confirm }
}

// WithScan replaces the interactive scan.
func WithScan(scan func(context.Context, ScanRequest) (*DeviceRegistry, error)) ClientOption {
	return func(c *Client) { c.scan = scan }
}

func WithClientLogger(l logger.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

// Client chains discovery, selection and upload into one run.
type Client struct {
	cfg      Config
	scanner  *Scanner
	uploader *Uploader
	selector Selector
	log      logger.Logger

	scan    func(context.Context, ScanRequest) (*DeviceRegistry, error)
	confirm func(string) bool
}

func NewClient(cfg Config, scanner *Scanner, uploader *Uploader, opts ...ClientOption) *Client {
	if cfg.FirmwareDir == "" {
		cfg.FirmwareDir = "./"
	}

	c := &Client{
		cfg:      cfg,
		scanner:  scanner,
		uploader: uploader,
		selector: NewDeviceSelector(),
		log:      logger.Discard(),
		confirm:  Continue,
	}
	c.scan = c.spinnerScan

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) Run(ctx context.Context) (*Summary, error) {
	path := c.cfg.FilePath
	if path == "" {
		selected, err := NewFirmwareSelector(c.cfg.FirmwareDir).Select()
		if err != nil {
			return nil, err
		}
		path = selected
	}

	address, port, err := c.target(ctx)
	if err != nil {
		return nil, err
	}

	c.log.WithStr("file", path).WithStr("device", address).WithInt("port", port).Info("uploading")

	return c.uploader.Upload(ctx, UploadRequest{
		FilePath:      path,
		DeviceAddress: address,
		DevicePort:    port,
		Password:      c.cfg.Password,
	})
}

// target resolves the device to upload to, scanning until one is chosen
// when no address was given.
func (c *Client) target(ctx context.Context) (string, int, error) {
	if c.cfg.DeviceIP != "" {
		if c.cfg.DevicePort == 0 {
			return "", 0, ErrInvalidPort
		}
		return c.cfg.DeviceIP, c.cfg.DevicePort, nil
	}

	req := ScanRequest{
		InterfaceIP: c.interfaceIP(),
		ServiceName: c.cfg.ServiceName,
		ServiceType: c.cfg.ServiceType,
		Window:      c.cfg.Window,
	}

	for {
		registry, err := c.scan(ctx, req)
		if err != nil {
			return "", 0, err
		}

		if registry.Len() == 0 {
			if c.confirm("No devices found, scan again?") {
				continue
			}
			return "", 0, ErrNoDevices
		}

		device, err := c.selector.SelectDevice(registry)
		if errors.Is(err, ErrNewScanRequired) {
			c.log.Debug("rescan requested")
			continue
		}
		if err != nil {
			return "", 0, err
		}

		port := c.cfg.DevicePort
		if port == 0 {
			port, err = c.selector.SelectPort(device)
			if err != nil {
				return "", 0, err
			}
		}

		return device.Address, port, nil
	}
}

func (c *Client) interfaceIP() net.IP {
	if c.cfg.InterfaceIP != nil {
		return c.cfg.InterfaceIP
	}

	ip, err := OutboundIP()
	if err != nil {
		c.log.WithErr(err).Warn("no outbound interface, using system default")
		return nil
	}
	return ip
}

func (c *Client) spinnerScan(ctx context.Context, req ScanRequest) (*DeviceRegistry, error) {
	var result ScanResult

	title := fmt.Sprintf("scanning for %s...", req.ServiceName)
	if req.ServiceName == "" {
		title = fmt.Sprintf("scanning for %s...", DefaultServiceName)
	}

	err := spinner.New().Context(ctx).Title(styles.INFO.Render(title)).ActionWithErr(
		func(ctx context.Context) error {
			result = <-ScanAsync(ctx, c.scanner, req)
			return result.Err
		},
	).Run()
	if err != nil {
		return nil, err
	}

	return result.Registry, nil
}

func Continue(txt string) bool {
	var confirm bool

	huh.NewConfirm().
		Title(txt).
		Affirmative("Yes").
		Negative("No").
		Value(&confirm).
		Run()

	return confirm
}

// OutboundIP is the local address the system routes external traffic from.
// No packet is sent.
func OutboundIP() (net.IP, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return conn.LocalAddr().(*net.UDPAddr).IP, nil
}
