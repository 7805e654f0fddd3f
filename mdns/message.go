// Package mdns issues one-shot multicast DNS queries and decodes the responses.
package mdns

import (
	"errors"
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

var (
	ErrUnknownRecordType = errors.New("unknown dns record type")
	ErrNotResponse       = errors.New("packet is not a dns response")
)

// ParseType maps a record type mnemonic such as "PTR" to its numeric type.
func ParseType(name string) (uint16, error) {
	t, ok := dns.StringToType[strings.ToUpper(strings.TrimSpace(name))]
	if !ok || t == dns.TypeNone {
		return 0, fmt.Errorf("%w: %q", ErrUnknownRecordType, name)
	}
	return t, nil
}

// TypeString is the inverse of ParseType.
func TypeString(t uint16) string {
	return dns.Type(t).String()
}

// Query packs a single-question mDNS query. Per RFC 6762 §18 the id is zero
// and recursion is not desired.
func Query(name string, qtype uint16) ([]byte, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.Id = 0
	m.RecursionDesired = false

	return m.Pack()
}

// Parse decodes a packet and rejects anything that is not a response.
func Parse(packet []byte) (*dns.Msg, error) {
	m := new(dns.Msg)
	if err := m.Unpack(packet); err != nil {
		return nil, err
	}

	if !m.Response {
		return nil, ErrNotResponse
	}

	return m, nil
}

// SameName compares two domain names ignoring case and the trailing root dot.
func SameName(a, b string) bool {
	return strings.EqualFold(dns.Fqdn(a), dns.Fqdn(b))
}

// HasAnswer reports whether any answer record matches name and type.
func HasAnswer(m *dns.Msg, name string, qtype uint16) bool {
	for _, rr := range m.Answer {
		h := rr.Header()
		if h.Rrtype == qtype && SameName(h.Name, name) {
			return true
		}
	}
	return false
}

// HostName returns the owner name of the first address record in the
// additional section, without the .local suffix.
func HostName(m *dns.Msg) string {
	var fallback string
	for _, rr := range m.Extra {
		switch rr.(type) {
		case *dns.A:
			return trimLocal(rr.Header().Name)
		case *dns.AAAA:
			if fallback == "" {
				fallback = rr.Header().Name
			}
		}
	}
	return trimLocal(fallback)
}

func trimLocal(name string) string {
	name = strings.TrimSuffix(name, ".")
	return strings.TrimSuffix(name, ".local")
}

// Text returns the key/value pairs of the first TXT record in the additional
// section, or nil when there is none.
func Text(m *dns.Msg) map[string]string {
	for _, rr := range m.Extra {
		txt, ok := rr.(*dns.TXT)
		if !ok {
			continue
		}
		return ParseText(txt.Txt)
	}
	return nil
}

// ParseText splits "key=value" entries on the first '='.
func ParseText(entries []string) map[string]string {
	out := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry == "" {
			continue
		}
		key, value, _ := strings.Cut(entry, "=")
		out[key] = value
	}
	return out
}
