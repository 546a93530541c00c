package vfsevents

import (
	"context"
	"io"

	"github.com/tjper/workerfabric/internal/log"
)

var logger = log.New(io.Discard, "vfsevents")

// SetLogOutput redirects package logging.
func SetLogOutput(w io.Writer) { logger = log.New(w, "vfsevents") }

// Watcher wires a Listener's raw netlink stream through a Correlator's
// normalization, filtering, and rename pairing, emitting the resulting
// Events on a single channel alongside the Correlator's orphan sweep.
type Watcher struct {
	listener   *Listener
	correlator *Correlator
}

// NewWatcher constructs a Watcher rooted at watchRoot. watchRoot is the
// absolute path below which Events are reported; everything else is
// filtered out, matching the original's isInWatchPath restriction to the
// user's home directory.
func NewWatcher(watchRoot string) (*Watcher, error) {
	lis, err := NewListener()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		listener:   lis,
		correlator: NewCorrelator(NewNormalizer(watchRoot)),
	}, nil
}

// Close releases the underlying netlink socket.
func (w *Watcher) Close() error { return w.listener.Close() }

// Run delivers normalized, correlated Events to out until ctx is
// canceled or the Listener returns an unrecoverable error.
func (w *Watcher) Run(ctx context.Context, out chan<- Event) error {
	stop := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stop)
	}()

	raw := make(chan RawEvent, 64)
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.listener.Run(stop, raw)
	}()

	go w.correlator.SweepOrphans(ctx, out)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			return err
		case ev := <-raw:
			derived, ok := w.correlator.Handle(ev)
			if !ok {
				continue
			}
			for _, d := range derived {
				select {
				case out <- d:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}
