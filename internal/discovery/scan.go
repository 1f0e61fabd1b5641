package discovery

import (
	"context"
	"fmt"
	"time"
)

// DefaultScanTimeout is the default duration of a one-shot scan
const DefaultScanTimeout = 10 * time.Second

// Scan runs discovery for timeout and returns what was found.
// The transport is closed before Scan returns.
func Scan(ctx context.Context, transport Transport, serviceTypes []string, timeout time.Duration) ([]PrinterRecord, error) {
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	controller := NewController(transport, NewRegistry(), serviceTypes)
	if err := controller.Start(ctx); err != nil {
		_ = controller.Stop()
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	<-ctx.Done()

	if err := controller.Stop(); err != nil {
		return nil, err
	}
	return controller.Registry().Snapshot(), nil
}
