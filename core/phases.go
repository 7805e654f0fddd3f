package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

func (u *Uploader) listen(s *TransferSession) error {
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrServerStart, err)
	}

	s.listener = ln
	s.ListenPort = ln.Addr().(*net.TCPAddr).Port
	s.log.WithInt("port", s.ListenPort).Debug("tcp server ready")

	s.to(PhaseListening)
	return nil
}

// invite repeats the invitation until the device answers. Only a silent
// device is retried; any answer, or any other failure, ends the loop.
func (u *Uploader) invite(ctx context.Context, s *TransferSession) error {
	inv := &Invitation{
		Port:   s.ListenPort,
		Length: s.File.Length,
		Digest: s.File.DigestHex,
	}

	for attempt := 1; ; attempt++ {
		nonce, err := u.sendInvitation(ctx, s, inv)
		if err == nil {
			if nonce == "" {
				s.log.Debug("authentication not required")
				s.to(PhaseAwaitingConnection)
				return nil
			}

			s.nonce = nonce
			s.to(PhaseAuthRequested)
			return nil
		}

		if !errors.Is(err, ErrInvitationTimeout) {
			return err
		}

		s.log.WithInt("attempt", attempt).Warn("invitation timed out, retrying")

		if err := sleep(ctx, u.timeouts.Backoff); err != nil {
			return err
		}
	}
}

func (u *Uploader) sendInvitation(ctx context.Context, s *TransferSession, inv *Invitation) (string, error) {
	s.to(PhaseInvitationSent)

	reply, err := u.exchange(ctx, s, inv.Encoded(), u.timeouts.Invitation)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return "", ErrInvitationTimeout
	}
	if err != nil {
		return "", err
	}

	s.log.WithStr("reply", reply).Debug("invitation acknowledged")
	return readInvitationResponse(reply, s.HashedPassword != "")
}

func (u *Uploader) authenticate(ctx context.Context, s *TransferSession) error {
	clientNonce, response := Challenge(s.HashedPassword, s.DeviceAddress, s.nonce, u.now())
	msg := &AuthMessage{ClientNonce: clientNonce, Response: response}

	s.to(PhaseAuthSent)

	reply, err := u.exchange(ctx, s, msg.Encoded(), u.timeouts.Authentication)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrAuthenticationTimeout
	}
	if err != nil {
		return err
	}

	if err := readAuthResponse(reply); err != nil {
		return err
	}

	s.log.Info("authentication accepted")
	s.to(PhaseAwaitingConnection)
	return nil
}

// exchange sends one datagram to the device and waits for one reply. The
// timeout surfaces as os.ErrDeadlineExceeded for the caller to name.
func (u *Uploader) exchange(ctx context.Context, s *TransferSession, msg []byte, timeout time.Duration) (string, error) {
	if err := u.drain(s); err != nil {
		return "", &PhaseError{Phase: s.Phase, Err: err}
	}

	if _, err := u.conn.WriteToUDP(msg, s.device); err != nil {
		return "", &PhaseError{Phase: s.Phase, Err: err}
	}

	if err := u.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", &PhaseError{Phase: s.Phase, Err: err}
	}

	stop := context.AfterFunc(ctx, func() {
		_ = u.conn.SetReadDeadline(aLongTimeAgo)
	})
	defer stop()

	buf := make([]byte, 1500)
	n, _, err := u.conn.ReadFromUDP(buf)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return "", err
		}
		return "", &PhaseError{Phase: s.Phase, Err: err}
	}

	return firstField(buf[:n]), nil
}

// drain discards replies that arrived after an earlier exchange gave up on
// them, so a late answer is never read as the reply to the next datagram.
func (u *Uploader) drain(s *TransferSession) error {
	buf := make([]byte, 1500)
	for {
		if err := u.conn.SetReadDeadline(time.Now().Add(drainWait)); err != nil {
			return err
		}

		n, from, err := u.conn.ReadFromUDP(buf)
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil
		}
		if err != nil {
			return err
		}

		s.log.WithStr("from", from.String()).WithStr("reply", firstField(buf[:n])).Debug("dropping stale reply")
	}
}

func (u *Uploader) accept(ctx context.Context, s *TransferSession) error {
	s.log.Debug("waiting for connection")

	if err := s.listener.SetDeadline(time.Now().Add(u.timeouts.Connection)); err != nil {
		return &PhaseError{Phase: s.Phase, Err: err}
	}

	stop := context.AfterFunc(ctx, func() {
		_ = s.listener.SetDeadline(aLongTimeAgo)
	})
	defer stop()

	conn, err := s.listener.AcceptTCP()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return ErrConnectionTimeout
		}
		return &PhaseError{Phase: s.Phase, Err: err}
	}

	// One connection per session, stop accepting right away.
	if err := s.listener.Close(); err != nil {
		s.log.WithErr(err).Warn("failed to close tcp server")
	}
	s.listener = nil
	s.conn = conn

	s.log.WithStr("remote", conn.RemoteAddr().String()).Info("device connected")
	s.to(PhaseConnected)
	return nil
}

func (u *Uploader) prepare(s *TransferSession) error {
	s.deadline = time.Now().Add(u.timeouts.Upload)

	if err := s.conn.SetWriteDeadline(s.deadline); err != nil {
		return &PhaseError{Phase: s.Phase, Err: err}
	}

	s.progress = u.progress(s.File.Length, fmt.Sprintf("Uploading to %s", s.DeviceAddress))
	s.to(PhaseTransferring)
	return nil
}

// transfer writes one chunk, waits for its ack, and only then writes the
// next. The whole loop shares a single deadline.
func (u *Uploader) transfer(ctx context.Context, s *TransferSession) error {
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetDeadline(aLongTimeAgo)
	})
	defer stop()

	data := s.File.Bytes
	ack := make([]byte, 64)

	for off := 0; off < len(data); off += ChunkSize {
		chunk := data[off:min(off+ChunkSize, len(data))]

		if _, err := s.conn.Write(chunk); err != nil {
			return transferError(ctx, err)
		}
		s.ChunksSent++

		readBy := time.Now().Add(u.timeouts.Idle)
		if s.deadline.Before(readBy) {
			readBy = s.deadline
		}
		if err := s.conn.SetReadDeadline(readBy); err != nil {
			return &PhaseError{Phase: s.Phase, Err: err}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := s.conn.Read(ack)
		if err != nil {
			return transferError(ctx, err)
		}

		if _, err := readAck(firstField(ack[:n])); err != nil {
			return err
		}

		s.BytesAcknowledged += int64(len(chunk))
		if err := s.progress.Add(len(chunk)); err != nil {
			s.log.WithErr(err).Debug("progress update failed")
		}
	}

	s.log.WithInt("bytes", int(s.BytesAcknowledged)).WithInt("chunks", s.ChunksSent).Info("upload complete")
	s.to(PhaseComplete)
	return nil
}

func transferError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrUploadTimeout
	}
	return &PhaseError{Phase: PhaseTransferring, Err: err}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
