// Package sink publishes finished audit reports to files, MongoDB and Kafka.
package sink

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/andrej220/secuaudit/pkg/report"
)

// Sink receives one report per audit run.
type Sink interface {
	Publish(ctx context.Context, r report.Report) error
	Close() error
}

// Fanout publishes to every sink concurrently.
type Fanout []Sink

var _ Sink = Fanout(nil)

// Publish returns the first sink error; the context passed to the other
// sinks is canceled when one fails.
func (f Fanout) Publish(ctx context.Context, r report.Report) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range f {
		s := s
		g.Go(func() error { return s.Publish(gctx, r) })
	}
	return g.Wait()
}

func (f Fanout) Close() error {
	var errs []error
	for _, s := range f {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
