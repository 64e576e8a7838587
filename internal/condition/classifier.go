// Package condition implements the sentinel-condition classifier: pure,
// structural predicates over IAM condition text that decide whether a
// binding marks JIT eligibility, MPA eligibility, or an already-activated
// temporary grant.
//
// The sentinel markers are deliberately pseudo-expressions that always
// evaluate CONDITIONAL on the underlying platform. This package never
// attempts to parse or evaluate them as real CEL expressions -- it treats
// condition text as an opaque byte string under trim, and matches it
// byte-for-byte against the three reserved forms. That keeps eligibility
// auditable without pulling a CEL evaluator into the core.
package condition

import (
	"fmt"
	"strings"
	"time"
)

// ActivationType distinguishes self-approved (JIT) from peer-approved (MPA)
// elevation.
type ActivationType string

const (
	JIT ActivationType = "JIT"
	MPA ActivationType = "MPA"
)

const (
	jitExpression = "has({}.jitAccessConstraint)"
	mpaExpression = "has({}.multiPartyApprovalConstraint)"

	// ActivatedTitle is the reserved condition title that marks a binding as
	// an already-activated, time-bounded temporary grant.
	ActivatedTitle = "JIT access activation"

	timestampLayout = "2006-01-02T15:04:05Z"
)

// Condition is an IAM condition: an expression plus an optional title and
// description. Description only matters for the mutator's binding equality
// check; the classifier ignores it.
type Condition struct {
	Title       string
	Expression  string
	Description string
}

// IsJitMarker reports whether cond is the exact JIT sentinel expression,
// after trimming whitespace. Any additional conjunct disqualifies it.
func IsJitMarker(cond *Condition) bool {
	return cond != nil && trim(cond.Expression) == jitExpression
}

// IsMpaMarker reports whether cond is the exact MPA sentinel expression.
func IsMpaMarker(cond *Condition) bool {
	return cond != nil && trim(cond.Expression) == mpaExpression
}

// IsApprovalMarker dispatches to IsJitMarker or IsMpaMarker depending on
// activationType.
func IsApprovalMarker(cond *Condition, activationType ActivationType) bool {
	if activationType == JIT {
		return IsJitMarker(cond)
	}
	return IsMpaMarker(cond)
}

// IsActivated reports whether cond carries the reserved activated-grant
// title, regardless of whether its expression currently evaluates true.
func IsActivated(cond *Condition) bool {
	return cond != nil && cond.Title == ActivatedTitle
}

// Evaluate parses the two timestamps out of an activated-grant expression
// and reports whether start <= now < end. It returns an error if expr is
// not of the activated form produced by TemporaryConditionFor.
func Evaluate(expr string, now time.Time) (bool, error) {
	start, end, err := parseWindow(expr)
	if err != nil {
		return false, err
	}
	n := now.UTC()
	return !n.Before(start) && n.Before(end), nil
}

// TemporaryConditionFor builds the Condition for an activated temporary
// grant spanning [start, start+duration), with UTC timestamps truncated to
// seconds and the reserved activated title.
func TemporaryConditionFor(start time.Time, duration time.Duration) Condition {
	end := start.Add(duration)
	return Condition{
		Title:      ActivatedTitle,
		Expression: formatWindow(start, end),
	}
}

func formatWindow(start, end time.Time) string {
	return fmt.Sprintf(
		`(request.time >= timestamp("%s") && request.time < timestamp("%s"))`,
		start.UTC().Truncate(time.Second).Format(timestampLayout),
		end.UTC().Truncate(time.Second).Format(timestampLayout),
	)
}

func parseWindow(expr string) (start, end time.Time, err error) {
	const (
		prefix = `(request.time >= timestamp("`
		mid    = `") && request.time < timestamp("`
		suffix = `"))`
	)
	e := trim(expr)
	if !strings.HasPrefix(e, prefix) || !strings.HasSuffix(e, suffix) {
		return time.Time{}, time.Time{}, fmt.Errorf("condition: not an activated-grant expression: %q", expr)
	}
	idx := strings.Index(e, mid)
	if idx < 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("condition: malformed activated-grant expression: %q", expr)
	}
	startStr := e[len(prefix):idx]
	endStr := e[idx+len(mid) : len(e)-len(suffix)]

	start, err = time.Parse(timestampLayout, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("condition: invalid start timestamp: %w", err)
	}
	end, err = time.Parse(timestampLayout, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("condition: invalid end timestamp: %w", err)
	}
	return start, end, nil
}

func trim(s string) string {
	return strings.TrimSpace(s)
}

// Equal compares two conditions the way the mutator's binding equality does:
// title, expression, and description must all match.
func Equal(a, b *Condition) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Title == b.Title && a.Expression == b.Expression && a.Description == b.Description
}
