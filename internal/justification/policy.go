// Package justification implements the justification policy: a configured
// regular expression a caller-supplied justification string must satisfy
// before an activation proceeds.
package justification

import (
	"regexp"

	"github.com/terraconstructs/jitaccess/internal/errs"
)

// Policy validates a justification string against a configured pattern.
type Policy struct {
	pattern *regexp.Regexp
	hint    string
}

// New compiles pattern and pairs it with hint, the human-readable
// description shown in UIs. New panics on an invalid pattern so
// misconfiguration fails at construction, not per-request.
func New(pattern, hint string) *Policy {
	return &Policy{
		pattern: regexp.MustCompile(pattern),
		hint:    hint,
	}
}

// Check accepts justification if it is non-empty and matches the configured
// pattern. user does not currently affect the outcome; it is accepted so
// future audit-logging hooks can attribute a check without changing this
// method's signature.
func (p *Policy) Check(justification string, user string) error {
	if justification == "" {
		return errs.New(errs.InvalidArgument, "justification must not be empty")
	}
	if !p.pattern.MatchString(justification) {
		return errs.Newf(errs.InvalidArgument, "justification %q does not match the required pattern: %s", justification, p.hint)
	}
	return nil
}

// Hint returns the human-readable description of the configured pattern.
func (p *Policy) Hint() string {
	return p.hint
}
