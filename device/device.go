// Package device is a stand-in for an OTA capable board. It answers
// invitations, checks passwords, pulls the image back over TCP and stores it.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/Dyastin-0/gota/core"
	"github.com/Dyastin-0/gota/logger"
	"github.com/Dyastin-0/gota/progress"
	"github.com/google/uuid"
	"github.com/vbauerster/mpb/v8"
)

var (
	ErrNotListening   = errors.New("device is not listening")
	ErrDigestMismatch = errors.New("image digest mismatch")
)

const (
	replyOK         = "OK"
	replyAuthFailed = "Authentication Failed"
)

type Config struct {
	Host     string
	Port     int
	Name     string
	Board    string
	Password string
	// Dir receives every image; empty keeps images in memory only.
	Dir string
}

// Image is one firmware push the device accepted.
type Image struct {
	Path   string
	Bytes  []byte
	Digest string
	From   string
}

type Option func(*Device)

func WithLogger(l logger.Logger) Option {
	return func(d *Device) { d.log = l }
}

func WithProgress(p *progress.Progress) Option {
	return func(d *Device) { d.progress = p }
}

// WithTimeouts bounds the waits on the device side.
func WithTimeouts(t core.Timeouts) Option {
	return func(d *Device) { d.timeouts = t }
}

// OnImage is called after every verified image.
func OnImage(fn func(*Image)) Option {
	return func(d *Device) { d.onImage = fn }
}

type Device struct {
	cfg      Config
	log      logger.Logger
	progress *progress.Progress
	timeouts core.Timeouts
	onImage  func(*Image)

	mu   sync.Mutex
	conn *net.UDPConn
}

func New(cfg Config, opts ...Option) *Device {
	if cfg.Name == "" {
		cfg.Name = hostname()
	}

	d := &Device{
		cfg:      cfg,
		log:      logger.Discard(),
		timeouts: core.DefaultTimeouts(),
	}

	for _, opt := range opts {
		opt(d)
	}

	d.log = d.log.WithStr("device", cfg.Name)
	return d
}

func (d *Device) Listen() error {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.Port)))
	if err != nil {
		return err
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.conn = conn
	d.mu.Unlock()

	d.log.WithStr("addr", conn.LocalAddr().String()).Info("listening for invitations")
	return nil
}

// Addr is the bound control address, nil before Listen.
func (d *Device) Addr() *net.UDPAddr {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil
	}
	return d.conn.LocalAddr().(*net.UDPAddr)
}

// Serve handles invitations one at a time until ctx is done.
func (d *Device) Serve(ctx context.Context) error {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()

	if conn == nil {
		return ErrNotListening
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	for {
		buf := make([]byte, 1024)

		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			d.log.WithErr(err).Warn("read failed")
			continue
		}

		inv, err := core.ParseInvitation(buf[:n])
		if err != nil {
			d.log.WithStr("from", from.String()).WithErr(err).Debug("ignoring datagram")
			continue
		}

		if err := d.handle(ctx, conn, inv, from); err != nil {
			d.log.WithStr("from", from.String()).WithErr(err).Error("update failed")
		}
	}
}

func (d *Device) handle(ctx context.Context, conn *net.UDPConn, inv *core.Invitation, from *net.UDPAddr) error {
	log := d.log.WithStr("from", from.String()).WithInt("bytes", int(inv.Length))
	log.Info("invitation received")

	if d.cfg.Password != "" {
		ok, err := d.challenge(conn, from)
		if err != nil {
			return err
		}
		if !ok {
			return core.ErrAuthenticationFailed
		}
	} else if err := reply(conn, from, replyOK); err != nil {
		return err
	}

	img, err := d.pull(ctx, inv, from.IP)
	if err != nil {
		return err
	}

	log.WithStr("md5", img.Digest).Info("image received")

	if d.onImage != nil {
		d.onImage(img)
	}
	return nil
}

// challenge asks for the password and checks the answer.
func (d *Device) challenge(conn *net.UDPConn, from *net.UDPAddr) (bool, error) {
	nonce := core.MD5Hex([]byte(uuid.NewString()))
	if err := reply(conn, from, "AUTH "+nonce); err != nil {
		return false, err
	}

	if err := conn.SetReadDeadline(time.Now().Add(d.timeouts.Authentication)); err != nil {
		return false, err
	}
	defer conn.SetReadDeadline(time.Time{})

	buf := make([]byte, 256)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			return false, err
		}
		if !src.IP.Equal(from.IP) || src.Port != from.Port {
			continue
		}

		msg, err := core.ParseAuthMessage(buf[:n])
		if err != nil {
			return false, reply(conn, from, replyAuthFailed)
		}

		if !core.VerifyChallenge(core.HashPassword(d.cfg.Password), nonce, msg.ClientNonce, msg.Response) {
			return false, reply(conn, from, replyAuthFailed)
		}

		return true, reply(conn, from, replyOK)
	}
}

// pull connects back to the uploader and reads the image chunk by chunk,
// acknowledging each one with the byte count received.
func (d *Device) pull(ctx context.Context, inv *core.Invitation, ip net.IP) (*Image, error) {
	dialer := net.Dialer{Timeout: d.timeouts.Connection}

	sock, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(ip.String(), strconv.Itoa(inv.Port)))
	if err != nil {
		return nil, fmt.Errorf("failed to connect back: %w", err)
	}
	defer sock.Close()

	if err := sock.SetDeadline(time.Now().Add(d.timeouts.Upload)); err != nil {
		return nil, err
	}

	data := make([]byte, 0, inv.Length)
	buf := make([]byte, core.ChunkSize)

	var bar *mpb.Bar
	if d.progress != nil {
		bar = d.progress.NewBar(inv.Length, d.cfg.Name)
		defer bar.Abort(false)
	}

	for int64(len(data)) < inv.Length {
		want := min(int64(core.ChunkSize), inv.Length-int64(len(data)))

		n, err := io.ReadFull(sock, buf[:want])
		if err != nil {
			return nil, fmt.Errorf("image truncated at %d/%d bytes: %w", len(data)+n, inv.Length, err)
		}

		data = append(data, buf[:n]...)

		if _, err := fmt.Fprintf(sock, "%d", n); err != nil {
			return nil, err
		}

		if bar != nil {
			bar.IncrBy(n)
		}
	}

	digest := core.MD5Hex(data)
	if digest != inv.Digest {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrDigestMismatch, digest, inv.Digest)
	}

	img := &Image{Bytes: data, Digest: digest, From: ip.String()}

	if d.cfg.Dir != "" {
		path, err := d.store(data)
		if err != nil {
			return nil, err
		}
		img.Path = path
	}

	return img, nil
}

func (d *Device) store(data []byte) (string, error) {
	if err := os.MkdirAll(d.cfg.Dir, 0755); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s-%s.bin", d.cfg.Name, time.Now().Format("20060102-150405.000"))
	path := filepath.Join(d.cfg.Dir, name)

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

func reply(conn *net.UDPConn, to *net.UDPAddr, msg string) error {
	_, err := conn.WriteToUDP([]byte(msg), to)
	return err
}

func hostname() string {
	hn, err := os.Hostname()
	if err != nil {
		hn = fmt.Sprintf("%s-%s", "unknown", uuid.NewString())
	}
	return hn
}
