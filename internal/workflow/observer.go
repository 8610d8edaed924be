package workflow

import (
	"log/slog"

	"github.com/zombor/nutriscan/internal/nutrition"
)

// Observer receives workflow notifications. Calls happen outside the
// workflow lock, so implementations may call back into the Workflow.
type Observer interface {
	// StateChanged is called after every transition
	StateChanged(sessionID string, from, to State)

	// LimitReached is the quota side channel, distinct from Error
	LimitReached(limit nutrition.LimitReached)

	// Error reports device, stream, lookup and analysis failures
	Error(err error)

	// LowConfidence is called when an AI estimate needs manual review
	LowConfidence(confidence int)
}

// NopObserver ignores every notification
type NopObserver struct{}

func (NopObserver) StateChanged(string, State, State)   {}
func (NopObserver) LimitReached(nutrition.LimitReached) {}
func (NopObserver) Error(error)                         {}
func (NopObserver) LowConfidence(int)                   {}

// SlogObserver logs notifications and forwards them to Next
type SlogObserver struct {
	Logger *slog.Logger
	Next   Observer
}

func (o SlogObserver) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o SlogObserver) next() Observer {
	if o.Next != nil {
		return o.Next
	}
	return NopObserver{}
}

func (o SlogObserver) StateChanged(sessionID string, from, to State) {
	o.logger().Info("Workflow state changed", "session", sessionID, "from", from.String(), "to", to.String())
	o.next().StateChanged(sessionID, from, to)
}

func (o SlogObserver) LimitReached(limit nutrition.LimitReached) {
	o.logger().Warn("Daily limit reached", "kind", limit.Kind, "limit", limit.Limit, "used", limit.Used)
	o.next().LimitReached(limit)
}

func (o SlogObserver) Error(err error) {
	o.logger().Error("Workflow error", "error", err)
	o.next().Error(err)
}

func (o SlogObserver) LowConfidence(confidence int) {
	o.logger().Warn("Low confidence estimate, review the values", "confidence", confidence)
	o.next().LowConfidence(confidence)
}
