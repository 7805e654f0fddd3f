// Package cmd wires the command line onto core and device.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/Dyastin-0/gota/core"
	"github.com/Dyastin-0/gota/logger"
	"github.com/common-nighthawk/go-figure"
	"github.com/urfave/cli/v3"
)

const logDir = "logs"

type app struct {
	log logger.Logger
}

func New() *cli.Command {
	a := &app{log: logger.New()}

	return &cli.Command{
		Name:    "gota",
		Usage:   "discover arduino ota devices on the local network and flash them",
		Version: core.VERSION,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log",
				Usage:   "log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("GOTA_LOG"),
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "mirror logs to stdout",
				Sources: cli.EnvVars("GOTA_VERBOSE"),
			},
		},
		Before: a.before,
		Action: gotaAction,
		Commands: []*cli.Command{
			a.uploadCommand(),
			a.scanCommand(),
			a.deviceCommand(),
		},
	}
}

func (a *app) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path, err := logger.LogPath(logDir)
	if err != nil {
		return ctx, err
	}

	if cmd.Bool("verbose") {
		a.log.InitMultiWriter(path)
	} else {
		a.log.Init(path)
	}

	if err := a.log.SetLevel(cmd.String("log")); err != nil {
		return ctx, &ValidationError{Field: "log", Err: err}
	}

	return ctx, nil
}

func gotaAction(ctx context.Context, cmd *cli.Command) error {
	figure := figure.NewFigure("gota", "", true)
	figure.Print()

	fmt.Println()

	return cli.ShowAppHelp(cmd)
}

func homeDir() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		dir = "./"
	}

	return dir
}
