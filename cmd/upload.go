package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/Dyastin-0/gota/core"
	"github.com/Dyastin-0/gota/styles"
	"github.com/urfave/cli/v3"
)

func serviceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "interface",
			Aliases: []string{"i"},
			Usage:   "ip address of the interface to scan on",
			Sources: cli.EnvVars("GOTA_INTERFACE"),
		},
		&cli.StringFlag{
			Name:    "dns-service-name",
			Usage:   "mdns service devices answer for",
			Value:   core.DefaultServiceName,
			Sources: cli.EnvVars("GOTA_DNS_SERVICE_NAME"),
		},
		&cli.StringFlag{
			Name:    "dns-service-type",
			Usage:   "mdns record type to query",
			Value:   core.DefaultServiceType,
			Sources: cli.EnvVars("GOTA_DNS_SERVICE_TYPE"),
		},
		&cli.DurationFlag{
			Name:    "window",
			Aliases: []string{"w"},
			Usage:   "how long to collect scan answers",
			Value:   core.DefaultScanWindow,
			Sources: cli.EnvVars("GOTA_WINDOW"),
		},
	}
}

func (a *app) uploadCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "file",
			Aliases: []string{"f"},
			Usage:   "firmware image, picked interactively when empty",
			Sources: cli.EnvVars("GOTA_FILE"),
		},
		&cli.StringFlag{
			Name:    "dir",
			Aliases: []string{"d"},
			Usage:   "where the interactive picker starts",
			Value:   "./",
		},
		&cli.StringFlag{
			Name:    "device-ip",
			Usage:   "skip the scan and upload to this address",
			Sources: cli.EnvVars("GOTA_DEVICE_IP"),
		},
		&cli.IntFlag{
			Name:    "device-port",
			Aliases: []string{"p"},
			Usage:   "ota port of the device",
			Sources: cli.EnvVars("GOTA_DEVICE_PORT"),
		},
		&cli.StringFlag{
			Name:    "device-pass",
			Usage:   "ota password of the device",
			Sources: cli.EnvVars("GOTA_DEVICE_PASS"),
		},
	}

	return &cli.Command{
		Name:   "upload",
		Usage:  "push a firmware image to a device",
		Flags:  append(flags, serviceFlags()...),
		Action: a.uploadAction,
	}
}

func (a *app) uploadAction(ctx context.Context, cmd *cli.Command) error {
	opts := uploadOptions{
		File:        cmd.String("file"),
		Dir:         cmd.String("dir"),
		Interface:   cmd.String("interface"),
		DeviceIP:    cmd.String("device-ip"),
		DevicePort:  int(cmd.Int("device-port")),
		Password:    cmd.String("device-pass"),
		ServiceName: cmd.String("dns-service-name"),
		ServiceType: cmd.String("dns-service-type"),
		Window:      cmd.Duration("window"),
	}

	cfg, err := opts.config()
	if err != nil {
		return err
	}

	uploader, err := core.NewUploader(core.WithLogger(a.log))
	if err != nil {
		return err
	}
	defer uploader.Close()

	scanner := core.NewScanner(core.WithScannerLogger(a.log))
	client := core.NewClient(cfg, scanner, uploader, core.WithClientLogger(a.log))

	summary, err := client.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Println(styles.SUCCESS.Render(fmt.Sprintf(
		"uploaded %d bytes in %d chunks (%s)",
		summary.Bytes,
		summary.Chunks,
		summary.Elapsed.Round(time.Millisecond),
	)))

	return nil
}
