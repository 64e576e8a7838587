// Package notify implements the notification event emitter: structured
// events describing an MPA request or its approval, handed to any number of
// delivery collaborators.
package notify

import (
	"context"
	"log"
	"time"

	"github.com/terraconstructs/jitaccess/internal/activation"
	"github.com/terraconstructs/jitaccess/internal/clients"
	"github.com/terraconstructs/jitaccess/internal/errs"
	"github.com/terraconstructs/jitaccess/internal/principal"
)

// RequestActivation is emitted when createMpaRequest completes: a reviewer
// must follow approvalUrl before expiresAt to approve the request.
type RequestActivation struct {
	Request     activation.Request
	ApprovalUrl string
	ExpiresAt   time.Time
}

func (RequestActivation) EventName() string { return "RequestActivation" }

// ActivationApproved is emitted on a successful approve call.
type ActivationApproved struct {
	Request    activation.Request
	Approver   principal.UserId
	Activation activation.Activation
}

func (ActivationApproved) EventName() string { return "ActivationApproved" }

var _ clients.NotificationEvent = RequestActivation{}
var _ clients.NotificationEvent = ActivationApproved{}

// Emitter dispatches events to every configured sink able to accept them.
type Emitter struct {
	sinks []clients.NotificationSink
}

// New builds an Emitter broadcasting to sinks.
func New(sinks ...clients.NotificationSink) *Emitter {
	return &Emitter{sinks: sinks}
}

// EmitRequestActivation delivers a RequestActivation event to every sink
// that can accept it. If none can, MPA is rejected with FeatureNotAvailable:
// a request a reviewer can never learn about is worse than no request.
func (e *Emitter) EmitRequestActivation(ctx context.Context, event RequestActivation) error {
	return e.emit(ctx, event)
}

// EmitActivationApproved delivers an ActivationApproved event to every sink
// that can accept it, best-effort: unlike RequestActivation, no sink
// delivering here does not fail the approval that already took effect.
func (e *Emitter) EmitActivationApproved(ctx context.Context, event ActivationApproved) {
	_ = e.emit(ctx, event)
}

// emit delivers event to every sink able to accept it and fails closed with
// FeatureNotAvailable only if zero sinks accepted delivery.
func (e *Emitter) emit(ctx context.Context, event clients.NotificationEvent) error {
	delivered := 0
	for _, sink := range e.sinks {
		if !sink.CanSend(ctx) {
			continue
		}
		if err := sink.Send(ctx, event); err != nil {
			log.Printf("notify: sink failed to deliver %s: %v", event.EventName(), err)
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return errs.Newf(errs.FeatureNotAvailable, "no notification sink available to deliver %s", event.EventName())
	}
	return nil
}
