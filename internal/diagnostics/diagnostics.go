// Package diagnostics implements the per-collaborator self-check used by
// the readiness probe: run every configured Diagnosable concurrently and
// return the AND of their outcomes.
package diagnostics

import (
	"context"
	"log"

	"golang.org/x/sync/errgroup"
)

// Diagnosable is a collaborator that can self-check its own health.
type Diagnosable interface {
	Name() string
	Check(ctx context.Context) error
}

// Result is one collaborator's self-check outcome.
type Result struct {
	Name       string
	Successful bool
	Details    string
}

// Aggregator runs a fixed set of Diagnosables concurrently.
type Aggregator struct {
	diagnosables []Diagnosable
}

// New builds an Aggregator over diagnosables.
func New(diagnosables ...Diagnosable) *Aggregator {
	return &Aggregator{diagnosables: diagnosables}
}

// Run executes every Diagnosable concurrently and returns their individual
// results plus the AND of their Successful flags. A collaborator failure is
// logged (for operator visibility) but never surfaced verbatim to the
// readiness probe's caller -- only the boolean and the redacted Details
// string are.
func (a *Aggregator) Run(ctx context.Context) ([]Result, bool) {
	results := make([]Result, len(a.diagnosables))

	g, gctx := errgroup.WithContext(ctx)
	for i, d := range a.diagnosables {
		i, d := i, d
		g.Go(func() error {
			err := d.Check(gctx)
			if err != nil {
				log.Printf("diagnostics: %s failed: %v", d.Name(), err)
				results[i] = Result{Name: d.Name(), Successful: false, Details: "check failed"}
				return nil
			}
			results[i] = Result{Name: d.Name(), Successful: true}
			return nil
		})
	}
	// Errors are captured per-result above and every goroutine returns nil,
	// so Wait always returns nil here.
	_ = g.Wait()

	healthy := true
	for _, r := range results {
		if !r.Successful {
			healthy = false
			break
		}
	}
	return results, healthy
}
