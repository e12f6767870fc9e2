// Package extract pulls source records into memory. One extractor exists per
// (record type, source) pair; extractors for the same record type run
// concurrently and their outcomes are merged in registration order, so the
// downstream first-seen-wins rules stay deterministic.
package extract

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Logger is the minimal logging facility this package uses.
type Logger interface {
	Printf(format string, v ...any)
}

type discardLogger struct{}

func (discardLogger) Printf(string, ...any) {}

// Extractor pulls all records of one type from one source. Extract must not
// fail on missing input (an absent file is an empty source) but may fail on
// corrupt input or an unreachable endpoint.
type Extractor[T any] interface {
	Name() string
	Extract(ctx context.Context) ([]T, error)
}

// Outcome is one source's result: either its records or its captured
// failure. The caller decides per source whether a failure is tolerable.
type Outcome[T any] struct {
	Source  string
	Records []T
	Err     error
}

// Run invokes every extractor concurrently and returns their outcomes in
// registration order. Failures are captured per outcome, never returned.
func Run[T any](ctx context.Context, log Logger, extractors []Extractor[T]) []Outcome[T] {
	if log == nil {
		log = discardLogger{}
	}
	out := make([]Outcome[T], len(extractors))

	var g errgroup.Group
	for i, ex := range extractors {
		g.Go(func() error {
			recs, err := ex.Extract(ctx)
			out[i] = Outcome[T]{Source: ex.Name(), Records: recs, Err: err}
			if err != nil {
				log.Printf("stage=extract source=%s err=%q", ex.Name(), err)
			} else {
				log.Printf("stage=extract source=%s records=%d", ex.Name(), len(recs))
			}
			return nil
		})
	}
	g.Wait()
	return out
}
