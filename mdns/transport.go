package mdns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const (
	Port      = 5353
	GroupIPv4 = "224.0.0.251"
	GroupIPv6 = "ff02::fb"

	maxPacketSize = 9000
)

var ErrInterfaceNotFound = errors.New("no interface owns this address")

// NetworkError tags a socket failure with the operation that produced it.
type NetworkError struct {
	Operation string
	Err       error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("mdns %s: %v", e.Operation, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Transport sends queries to the multicast group and hands back raw packets.
// Receive must honor the context deadline and return promptly once the
// context is done.
type Transport interface {
	Send(ctx context.Context, packet []byte) error
	Receive(ctx context.Context) ([]byte, net.Addr, error)
	Close() error
}

type UDPTransport struct {
	conn  net.PacketConn
	group *net.UDPAddr
}

// Listen binds the mDNS port with address reuse and joins the group on the
// interface owning ifaceIP. An unspecified address lets the OS pick.
func Listen(ifaceIP net.IP) (*UDPTransport, error) {
	iface, err := InterfaceByIP(ifaceIP)
	if err != nil {
		return nil, &NetworkError{Operation: "resolve interface", Err: err}
	}

	if ifaceIP == nil || ifaceIP.To4() != nil {
		return listen4(iface)
	}
	return listen6(iface)
}

func listen4(iface *net.Interface) (*UDPTransport, error) {
	c, err := listenReuse("udp4", net.JoinHostPort("0.0.0.0", strconv.Itoa(Port)))
	if err != nil {
		return nil, &NetworkError{Operation: "create socket", Err: err}
	}

	group := &net.UDPAddr{IP: net.ParseIP(GroupIPv4), Port: Port}

	p := ipv4.NewPacketConn(c)
	if err := p.JoinGroup(iface, group); err != nil {
		_ = c.Close()
		return nil, &NetworkError{Operation: "join group", Err: err}
	}

	if iface != nil {
		if err := p.SetMulticastInterface(iface); err != nil {
			_ = c.Close()
			return nil, &NetworkError{Operation: "set multicast interface", Err: err}
		}
	}

	// Best effort, the defaults still work on most stacks.
	_ = p.SetMulticastTTL(255)
	_ = p.SetMulticastLoopback(true)

	return &UDPTransport{conn: c, group: group}, nil
}

func listen6(iface *net.Interface) (*UDPTransport, error) {
	c, err := listenReuse("udp6", net.JoinHostPort("::", strconv.Itoa(Port)))
	if err != nil {
		return nil, &NetworkError{Operation: "create socket", Err: err}
	}

	group := &net.UDPAddr{IP: net.ParseIP(GroupIPv6), Port: Port}
	if iface != nil {
		group.Zone = iface.Name
	}

	p := ipv6.NewPacketConn(c)
	if err := p.JoinGroup(iface, group); err != nil {
		_ = c.Close()
		return nil, &NetworkError{Operation: "join group", Err: err}
	}

	if iface != nil {
		if err := p.SetMulticastInterface(iface); err != nil {
			_ = c.Close()
			return nil, &NetworkError{Operation: "set multicast interface", Err: err}
		}
	}

	_ = p.SetMulticastHopLimit(255)
	_ = p.SetMulticastLoopback(true)

	return &UDPTransport{conn: c, group: group}, nil
}

func listenReuse(network, address string) (net.PacketConn, error) {
	lc := net.ListenConfig{Control: reuseControl}
	return lc.ListenPacket(context.Background(), network, address)
}

func (t *UDPTransport) Send(ctx context.Context, packet []byte) error {
	if err := ctx.Err(); err != nil {
		return &NetworkError{Operation: "send query", Err: err}
	}

	n, err := t.conn.WriteTo(packet, t.group)
	if err != nil {
		return &NetworkError{Operation: "send query", Err: err}
	}

	if n != len(packet) {
		return &NetworkError{
			Operation: "send query",
			Err:       fmt.Errorf("partial write: %d/%d bytes", n, len(packet)),
		}
	}

	return nil
}

func (t *UDPTransport) Receive(ctx context.Context) ([]byte, net.Addr, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, &NetworkError{Operation: "receive response", Err: err}
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return nil, nil, &NetworkError{Operation: "set read deadline", Err: err}
	}

	stop := context.AfterFunc(ctx, func() {
		_ = t.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	buf := make([]byte, maxPacketSize)
	n, src, err := t.conn.ReadFrom(buf)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, &NetworkError{Operation: "receive response", Err: ctx.Err()}
		}
		return nil, nil, &NetworkError{Operation: "receive response", Err: err}
	}

	return buf[:n], src, nil
}

func (t *UDPTransport) Close() error {
	if t.conn == nil {
		return nil
	}

	if err := t.conn.Close(); err != nil {
		return &NetworkError{Operation: "close socket", Err: err}
	}
	return nil
}

// InterfaceByIP finds the interface carrying ip. A nil or unspecified ip
// yields a nil interface, meaning the system default.
func InterfaceByIP(ip net.IP) (*net.Interface, error) {
	if ip == nil || ip.IsUnspecified() {
		return nil, nil
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if ok && ipnet.IP.Equal(ip) {
				return &iface, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrInterfaceNotFound, ip)
}
