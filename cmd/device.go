package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/Dyastin-0/gota/device"
	"github.com/Dyastin-0/gota/progress"
	"github.com/urfave/cli/v3"
)

const defaultDir = "gota/received"

func (a *app) deviceCommand() *cli.Command {
	return &cli.Command{
		Name:  "device",
		Usage: "run a simulated ota device that stores received images",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "address to listen on",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   8266,
				Sources: cli.EnvVars("GOTA_DEVICE_PORT"),
			},
			&cli.StringFlag{
				Name:    "password",
				Usage:   "require this ota password",
				Sources: cli.EnvVars("GOTA_DEVICE_PASS"),
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "device name, defaults to the host name",
			},
			&cli.StringFlag{
				Name:  "board",
				Value: "esp8266_nodemcuv2",
			},
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Value:   filepath.Join(homeDir(), defaultDir),
			},
			&cli.BoolFlag{
				Name:  "advertise",
				Usage: "announce the device over mdns",
				Value: true,
			},
		},
		Action: a.deviceAction,
	}
}

func (a *app) deviceAction(ctx context.Context, cmd *cli.Command) error {
	port := int(cmd.Int("port"))
	if err := validatePort(port); err != nil {
		return &ValidationError{Field: "port", Err: err}
	}

	d := device.New(device.Config{
		Host:     cmd.String("host"),
		Port:     port,
		Name:     cmd.String("name"),
		Board:    cmd.String("board"),
		Password: cmd.String("password"),
		Dir:      cmd.String("dir"),
	},
		device.WithLogger(a.log),
		device.WithProgress(progress.New(os.Stdout)),
	)

	if err := d.Listen(); err != nil {
		return err
	}

	if cmd.Bool("advertise") {
		go func() {
			if err := d.Advertise(ctx); err != nil {
				a.log.WithErr(err).Error("mdns advertisement failed")
			}
		}()
	}

	err := d.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
