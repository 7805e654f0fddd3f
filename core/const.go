package core

import "time"

const (
	CmdFlash = 0
	CmdAuth  = 200

	ChunkSize = 2048

	DefaultServiceName = "_arduino._tcp.local"
	DefaultServiceType = "PTR"

	DefaultScanWindow     = 5000 * time.Millisecond
	InvitationTimeout     = 2000 * time.Millisecond
	InvitationBackoff     = 2000 * time.Millisecond
	AuthenticationTimeout = 2000 * time.Millisecond
	ConnectionTimeout     = 5000 * time.Millisecond
	UploadTimeout         = 20000 * time.Millisecond
	IdleTimeout           = 10 * time.Second

	VERSION = "0.1.0"
)

// Timeouts bounds every phase of a transfer.
type Timeouts struct {
	Invitation     time.Duration
	Backoff        time.Duration
	Authentication time.Duration
	Connection     time.Duration
	Upload         time.Duration
	Idle           time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Invitation:     InvitationTimeout,
		Backoff:        InvitationBackoff,
		Authentication: AuthenticationTimeout,
		Connection:     ConnectionTimeout,
		Upload:         UploadTimeout,
		Idle:           IdleTimeout,
	}
}
