package progress

import (
	"io"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Progress renders one bar per received image.
type Progress struct {
	out      io.Writer
	progress *mpb.Progress
}

func New(out io.Writer) *Progress {
	return &Progress{
		out:      out,
		progress: mpb.New(mpb.WithOutput(out)),
	}
}

func (p *Progress) NewBar(n int64, text string) *mpb.Bar {
	bar := p.progress.AddBar(n,
		mpb.PrependDecorators(
			decor.Name(text, decor.WC{W: 12, C: decor.DindentRight}),
			decor.CountersKibiByte(" % .2f / % .2f", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.Elapsed(1, decor.WC{W: 12, C: decor.DindentRight}),
		),
	)

	return bar
}

// Execute copies n bytes from src to dst, advancing bar as it goes.
func (p *Progress) Execute(dst io.Writer, src io.Reader, n int64, bar *mpb.Bar) (int64, error) {
	proxy := bar.ProxyReader(src)
	defer proxy.Close()

	return io.CopyN(dst, proxy, n)
}

func (p *Progress) Wait() {
	p.progress.Wait()
}

// Reset waits for pending bars and starts a fresh container.
func (p *Progress) Reset() {
	if p.progress != nil {
		p.progress.Wait()
	}

	p.progress = mpb.New(mpb.WithOutput(p.out))
}
