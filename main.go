package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Dyastin-0/gota/cmd"
	"github.com/Dyastin-0/gota/core"
	"github.com/Dyastin-0/gota/styles"
)

func main() {
	c := cmd.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	if err := c.Run(ctx, os.Args); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, core.ErrCanceled) {
			os.Exit(130)
		}

		fmt.Fprintln(os.Stderr, styles.ERROR.Render(err.Error()))
		os.Exit(1)
	}
}
