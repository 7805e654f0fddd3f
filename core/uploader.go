package core

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/Dyastin-0/gota/logger"
)

// aLongTimeAgo forces a pending socket call to return immediately.
var aLongTimeAgo = time.Unix(1, 0)

// drainWait bounds each read while discarding queued control replies. An
// already expired deadline would fail the read before it saw queued data.
const drainWait = time.Millisecond

type Option func(*Uploader)

func WithLogger(l logger.Logger) Option {
	return func(u *Uploader) { u.log = l }
}

func WithTimeouts(t Timeouts) Option {
	return func(u *Uploader) { u.timeouts = t }
}

func WithProgress(f ProgressFunc) Option {
	return func(u *Uploader) { u.progress = f }
}

func WithClock(now func() time.Time) Option {
	return func(u *Uploader) { u.now = now }
}

// Uploader pushes firmware images to devices. It owns one UDP control socket
// and runs one transfer at a time; concurrent Upload calls queue up.
type Uploader struct {
	mu       sync.Mutex
	conn     *net.UDPConn
	log      logger.Logger
	timeouts Timeouts
	progress ProgressFunc
	now      func() time.Time
}

func NewUploader(opts ...Option) (*Uploader, error) {
	u := &Uploader{
		log:      logger.Discard(),
		timeouts: DefaultTimeouts(),
		progress: DefaultBar,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(u)
	}

	if err := u.openControl(); err != nil {
		return nil, err
	}

	return u, nil
}

// openControl (re)creates the control socket, which every transfer closes
// on its way out.
func (u *Uploader) openControl() error {
	if u.conn != nil {
		return nil
	}

	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return fmt.Errorf("failed to open control socket: %w", err)
	}

	u.conn = conn
	return nil
}

func (u *Uploader) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.conn == nil {
		return nil
	}

	err := u.conn.Close()
	u.conn = nil
	return err
}

// Upload runs one transfer to completion or failure. Every socket opened for
// it is closed before Upload returns.
func (u *Uploader) Upload(ctx context.Context, req UploadRequest) (*Summary, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	file, err := Digest(req.FilePath)
	if err != nil {
		u.closeControl(u.log)
		return nil, err
	}

	device, err := net.ResolveUDPAddr("udp", net.JoinHostPort(req.DeviceAddress, strconv.Itoa(req.DevicePort)))
	if err != nil {
		u.closeControl(u.log)
		return nil, &PhaseError{Phase: PhaseIdle, Err: err}
	}

	if err := u.openControl(); err != nil {
		return nil, &PhaseError{Phase: PhaseIdle, Err: err}
	}

	s := newSession(req, file, device, u.log)
	defer u.cleanup(s)

	s.log.WithInt("bytes", int(file.Length)).WithStr("md5", file.DigestHex).Info("upload started")

	for !s.Phase.Terminal() {
		if err := u.advance(ctx, s); err != nil {
			s.log.WithStr("phase", s.Phase.String()).WithErr(err).Error("upload failed")
			s.Phase = PhaseFailed
			return nil, err
		}
	}

	return &Summary{
		SessionID: s.ID,
		Bytes:     s.BytesAcknowledged,
		Chunks:    s.ChunksSent,
		Elapsed:   time.Since(s.started),
	}, nil
}

func (u *Uploader) closeControl(log logger.Logger) {
	if u.conn == nil {
		return
	}

	if err := u.conn.Close(); err != nil {
		log.WithErr(err).Warn("failed to close udp socket")
	}
	u.conn = nil
	log.Debug("udp closed")
}

// advance performs the single transition leaving the current phase.
func (u *Uploader) advance(ctx context.Context, s *TransferSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch s.Phase {
	case PhaseIdle:
		return u.listen(s)
	case PhaseListening:
		return u.invite(ctx, s)
	case PhaseAuthRequested:
		return u.authenticate(ctx, s)
	case PhaseAwaitingConnection:
		return u.accept(ctx, s)
	case PhaseConnected:
		return u.prepare(s)
	case PhaseTransferring:
		return u.transfer(ctx, s)
	default:
		return fmt.Errorf("no transition out of phase %q", s.Phase)
	}
}

// cleanup runs exactly once per session, whatever the outcome. Failures here
// are logged and never replace the transfer's own result.
func (u *Uploader) cleanup(s *TransferSession) {
	s.log.Debug("cleaning up")

	if s.progress != nil {
		var err error
		if s.Phase == PhaseComplete {
			err = s.progress.Finish()
		} else {
			err = s.progress.Exit()
		}
		if err != nil {
			s.log.WithErr(err).Warn("failed to stop progress")
		}
	}

	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			s.log.WithErr(err).Warn("failed to close tcp server")
		}
		s.listener = nil
	}

	u.closeControl(s.log)

	if s.conn != nil {
		if err := s.conn.CloseWrite(); err != nil {
			s.log.WithErr(err).Debug("failed to half-close socket")
		}
		if err := s.conn.Close(); err != nil {
			s.log.WithErr(err).Warn("failed to close socket")
		}
		s.conn = nil
		s.log.Debug("socket closed")
	}
}
