package core

import (
	"fmt"
	"time"

	"github.com/k0kubun/go-ansi"
	"github.com/schollz/progressbar/v3"
)

// ProgressObserver is told about every acknowledged chunk. It never takes
// part in transfer decisions. Finish closes a completed transfer, Exit an
// aborted one.
type ProgressObserver interface {
	Add(n int) error
	Finish() error
	Exit() error
}

// ProgressFunc builds an observer for a transfer of total bytes.
type ProgressFunc func(total int64, desc string) ProgressObserver

func DefaultBar(maxBytes int64, desc string) ProgressObserver {
	writer := ansi.NewAnsiStdout()
	return progressbar.NewOptions64(
		maxBytes,
		progressbar.OptionSetWriter(writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowTotalBytes(true),
		progressbar.OptionShowBytes(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(writer, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
}

type nopProgress struct{}

func (nopProgress) Add(int) error { return nil }
func (nopProgress) Finish() error { return nil }
func (nopProgress) Exit() error   { return nil }

func NoProgress(int64, string) ProgressObserver {
	return nopProgress{}
}
