package diagnostics

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeDiagnosable struct {
	name string
	err  error
}

func (f fakeDiagnosable) Name() string { return f.name }
func (f fakeDiagnosable) Check(context.Context) error { return f.err }

func TestRunReturnsHealthyWhenAllSucceed(t *testing.T) {
	t.Parallel()

	agg := New(fakeDiagnosable{name: "policy-analyzer"}, fakeDiagnosable{name: "resource-manager"})
	results, healthy := agg.Run(context.Background())
	require.True(t, healthy)
	require.Len(t, results, 2)
	for _, r := range results {
		require.True(t, r.Successful)
	}
}

func TestRunReportsUnhealthyWhenAnyFails(t *testing.T) {
	t.Parallel()

	agg := New(
		fakeDiagnosable{name: "policy-analyzer"},
		fakeDiagnosable{name: "secret-store", err: errors.New("unreachable")},
	)
	results, healthy := agg.Run(context.Background())
	require.False(t, healthy)
	require.Len(t, results, 2)

	var sawFailure bool
	for _, r := range results {
		if r.Name == "secret-store" {
			sawFailure = true
			require.False(t, r.Successful)
			require.NotContains(t, r.Details, "unreachable", "raw collaborator error must not be surfaced verbatim")
		}
	}
	require.True(t, sawFailure)
}
