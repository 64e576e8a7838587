package justification

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/terraconstructs/jitaccess/internal/errs"
)

func TestCheckRejectsEmptyJustification(t *testing.T) {
	t.Parallel()

	p := New(`^case-\d+$`, "enter a case number, e.g. case-123")
	err := p.Check("", "alice@example.com")
	require.True(t, errs.Is(err, errs.InvalidArgument))
}

func TestCheckRejectsNonMatchingJustification(t *testing.T) {
	t.Parallel()

	p := New(`^case-\d+$`, "enter a case number, e.g. case-123")
	err := p.Check("because I said so", "alice@example.com")
	require.True(t, errs.Is(err, errs.InvalidArgument))
}

func TestCheckAcceptsMatchingJustification(t *testing.T) {
	t.Parallel()

	p := New(`^case-\d+$`, "enter a case number, e.g. case-123")
	require.NoError(t, p.Check("case-123", "alice@example.com"))
}

func TestHintReturnsConfiguredDescription(t *testing.T) {
	t.Parallel()

	p := New(".*", "anything goes")
	require.Equal(t, "anything goes", p.Hint())
}
