package core

import (
	"net"
	"time"

	"github.com/Dyastin-0/gota/logger"
	"github.com/google/uuid"
)

type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseListening
	PhaseInvitationSent
	PhaseAuthRequested
	PhaseAuthSent
	PhaseAwaitingConnection
	PhaseConnected
	PhaseTransferring
	PhaseComplete
	PhaseFailed
)

var phaseNames = [...]string{
	PhaseIdle:               "idle",
	PhaseListening:          "listening",
	PhaseInvitationSent:     "invitation sent",
	PhaseAuthRequested:      "auth requested",
	PhaseAuthSent:           "auth sent",
	PhaseAwaitingConnection: "awaiting connection",
	PhaseConnected:          "connected",
	PhaseTransferring:       "transferring",
	PhaseComplete:           "complete",
	PhaseFailed:             "failed",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// Terminal reports whether no transition leaves p.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseFailed
}

// UploadRequest describes one firmware push.
type UploadRequest struct {
	FilePath      string
	DeviceAddress string
	DevicePort    int
	Password      string
}

// TransferSession is the state threaded through the phases of one upload.
// Nothing in it outlives the Upload call that created it.
type TransferSession struct {
	ID                string
	File              *FileInfo
	DeviceAddress     string
	DevicePort        int
	HashedPassword    string
	ListenPort        int
	Phase             Phase
	BytesAcknowledged int64
	ChunksSent        int

	device   *net.UDPAddr
	nonce    string
	listener *net.TCPListener
	conn     *net.TCPConn
	progress ProgressObserver
	deadline time.Time
	started  time.Time
	log      logger.Logger
}

func newSession(req UploadRequest, file *FileInfo, device *net.UDPAddr, log logger.Logger) *TransferSession {
	s := &TransferSession{
		ID:            uuid.NewString(),
		File:          file,
		DeviceAddress: req.DeviceAddress,
		DevicePort:    req.DevicePort,
		Phase:         PhaseIdle,
		device:        device,
		started:       time.Now(),
	}

	if req.Password != "" {
		s.HashedPassword = HashPassword(req.Password)
	}

	s.log = log.WithStr("session", s.ID).WithStr("device", device.String())
	return s
}

func (s *TransferSession) to(p Phase) {
	s.log.WithStr("from", s.Phase.String()).WithStr("to", p.String()).Debug("phase")
	s.Phase = p
}

// Summary is what a successful upload reports back.
type Summary struct {
	SessionID string
	Bytes     int64
	Chunks    int
	Elapsed   time.Duration
}
