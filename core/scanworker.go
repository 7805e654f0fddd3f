package core

import "context"

type ScanResult struct {
	Registry *DeviceRegistry
	Err      error
}

// ScanAsync runs the scan on its own goroutine. The channel yields exactly
// one result and never blocks the sender.
func ScanAsync(ctx context.Context, s *Scanner, req ScanRequest) <-chan ScanResult {
	out := make(chan ScanResult, 1)

	go func() {
		defer close(out)
		registry, err := s.Scan(ctx, req)
		out <- ScanResult{Registry: registry, Err: err}
	}()

	return out
}
