package device

import (
	"context"
	"strings"

	"github.com/Dyastin-0/gota/core"
	"github.com/grandcat/zeroconf"
)

const serviceDomain = "local."

// TXTRecords is the metadata an Arduino OTA responder publishes.
func (d *Device) TXTRecords() []string {
	auth := "no"
	if d.cfg.Password != "" {
		auth = "yes"
	}

	return []string{
		"board=" + d.cfg.Board,
		"auth_upload=" + auth,
		"tcp_check=no",
		"ssh_upload=no",
	}
}

// Advertise publishes the device under the Arduino OTA service until ctx is
// done.
func (d *Device) Advertise(ctx context.Context) error {
	port := d.cfg.Port
	if addr := d.Addr(); addr != nil {
		port = addr.Port
	}

	server, err := zeroconf.Register(
		d.cfg.Name,
		serviceType(core.DefaultServiceName),
		serviceDomain,
		port,
		d.TXTRecords(),
		nil,
	)
	if err != nil {
		return err
	}
	defer server.Shutdown()

	d.log.WithInt("port", port).Info("advertising")

	<-ctx.Done()
	return nil
}

// serviceType strips the domain from a full service name.
func serviceType(name string) string {
	name = strings.TrimSuffix(name, ".")
	return strings.TrimSuffix(name, ".local")
}
