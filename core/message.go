package core

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrMalformedInvitation = errors.New("malformed invitation")
	ErrMalformedAuth       = errors.New("malformed authentication")

	okPattern         = regexp.MustCompile(`OK`)
	authPattern       = regexp.MustCompile(`AUTH`)
	authNoncePattern  = regexp.MustCompile(`AUTH (\S+)`)
	authFailedPattern = regexp.MustCompile(`Authentication Failed`)
)

// Invitation is the UDP message that asks a device to pull an image.
type Invitation struct {
	Port   int
	Length int64
	Digest string
}

func (i *Invitation) Encoded() []byte {
	return fmt.Appendf(nil, "%d %d %d %s", CmdFlash, i.Port, i.Length, i.Digest)
}

// ParseInvitation is used by the device side.
func ParseInvitation(data []byte) (*Invitation, error) {
	fields := strings.Fields(string(data))
	if len(fields) != 4 {
		return nil, ErrMalformedInvitation
	}

	cmd, err := strconv.Atoi(fields[0])
	if err != nil || cmd != CmdFlash {
		return nil, ErrMalformedInvitation
	}

	port, err := strconv.Atoi(fields[1])
	if err != nil || port <= 0 || port > 65535 {
		return nil, ErrMalformedInvitation
	}

	length, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil || length < 0 {
		return nil, ErrMalformedInvitation
	}

	return &Invitation{
		Port:   port,
		Length: length,
		Digest: strings.ToLower(fields[3]),
	}, nil
}

// AuthMessage carries the answer to a device challenge.
type AuthMessage struct {
	ClientNonce string
	Response    string
}

func (a *AuthMessage) Encoded() []byte {
	return fmt.Appendf(nil, "%d %s %s\n", CmdAuth, a.ClientNonce, a.Response)
}

func ParseAuthMessage(data []byte) (*AuthMessage, error) {
	fields := strings.Fields(string(data))
	if len(fields) != 3 {
		return nil, ErrMalformedAuth
	}

	cmd, err := strconv.Atoi(fields[0])
	if err != nil || cmd != CmdAuth {
		return nil, ErrMalformedAuth
	}

	return &AuthMessage{ClientNonce: fields[1], Response: fields[2]}, nil
}

// firstField returns the payload up to the first comma, the only part of a
// device reply that carries meaning.
func firstField(data []byte) string {
	s, _, _ := strings.Cut(string(data), ",")
	return s
}

// readInvitationResponse returns the nonce when the device asks for
// authentication, "" when it accepted outright. A device asking for
// authentication without a password to answer with gives ErrPasswordRequired.
func readInvitationResponse(reply string, hasPassword bool) (nonce string, err error) {
	if okPattern.MatchString(reply) {
		return "", nil
	}

	if authPattern.MatchString(reply) {
		if !hasPassword {
			return "", ErrPasswordRequired
		}
		m := authNoncePattern.FindStringSubmatch(reply)
		if m == nil {
			return "", fmt.Errorf("%w: %q", ErrInvitationIncompatibleResponse, reply)
		}
		return m[1], nil
	}

	return "", fmt.Errorf("%w: %q", ErrInvitationUnknownResponse, reply)
}

func readAuthResponse(reply string) error {
	if okPattern.MatchString(reply) {
		return nil
	}

	if authFailedPattern.MatchString(reply) {
		return ErrAuthenticationFailed
	}

	return fmt.Errorf("%w: %q", ErrAuthenticationUnknownResponse, reply)
}

func readAck(reply string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(reply), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: ack %q", ErrUploadUnknown, reply)
	}
	return n, nil
}
