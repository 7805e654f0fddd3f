package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Dyastin-0/gota/core"
	"github.com/Dyastin-0/gota/styles"
	"github.com/charmbracelet/huh/spinner"
	"github.com/urfave/cli/v3"
)

func (a *app) scanCommand() *cli.Command {
	return &cli.Command{
		Name:   "scan",
		Usage:  "list devices answering on the local network",
		Flags:  serviceFlags(),
		Action: a.scanAction,
	}
}

func (a *app) scanAction(ctx context.Context, cmd *cli.Command) error {
	ip, err := validateIP(cmd.String("interface"))
	if err != nil {
		return &ValidationError{Field: "interface", Err: err}
	}

	req := core.ScanRequest{
		InterfaceIP: ip,
		ServiceName: strings.TrimSpace(cmd.String("dns-service-name")),
		ServiceType: strings.TrimSpace(cmd.String("dns-service-type")),
		Window:      cmd.Duration("window"),
	}

	if err := validateService(req.ServiceName, req.ServiceType, req.Window); err != nil {
		return err
	}

	scanner := core.NewScanner(core.WithScannerLogger(a.log))

	var result core.ScanResult
	err = spinner.New().Context(ctx).Title(styles.INFO.Render("scanning for " + req.ServiceName + "...")).ActionWithErr(
		func(ctx context.Context) error {
			result = <-core.ScanAsync(ctx, scanner, req)
			return result.Err
		},
	).Run()
	if err != nil {
		return err
	}

	if result.Registry.Len() == 0 {
		fmt.Println(styles.WARNING.Render("no devices found"))
		return nil
	}

	printDevices(result.Registry)
	return nil
}

func printDevices(registry *core.DeviceRegistry) {
	fmt.Fprintln(os.Stdout, styles.TITLE.Render(fmt.Sprintf("%-24s %-16s %-24s %-6s %s", "NAME", "ADDRESS", "BOARD", "PORT", "AUTH")))

	for _, d := range registry.Records() {
		port := "-"
		if p := core.DefaultPort(d.Metadata); p != 0 {
			port = strconv.Itoa(p)
		}

		auth := "no"
		if d.AuthRequired() {
			auth = "yes"
		}

		fmt.Fprintf(os.Stdout, "%-24s %-16s %-24s %-6s %s\n", d.Name, d.Address, d.Board(), port, auth)
	}
}
