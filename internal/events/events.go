// Package events publishes user lifecycle events for downstream consumers
// such as the mailer.
package events

import (
	"context"
	"sync"
	"time"
)

const (
	TypeUserRegistered        = "user.registered"
	TypeConfirmationRequested = "user.confirmation_requested"
	TypeEmailConfirmed        = "user.email_confirmed"
	TypeLoggedIn              = "user.logged_in"
	TypeLoggedOut             = "user.logged_out"
	TypeBanned                = "user.banned"
	TypeUnbanned              = "user.unbanned"
	TypeRoleChanged           = "user.role_changed"

	TypePasswordResetRequested = "user.password_reset_requested"
	TypePasswordReset          = "user.password_reset"
)

type Event struct {
	Type       string    `json:"type"`
	Subject    string    `json:"subject"`
	Email      string    `json:"email,omitempty"`
	Username   string    `json:"username,omitempty"`
	Token      string    `json:"token,omitempty"`
	// Link is the ready-made URL the mailer puts in the message.
	Link       string    `json:"link,omitempty"`
	Role       string    `json:"role,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Last returns the most recent event of the given type.
func (r *Recorder) Last(typ string) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == typ {
			return r.events[i], true
		}
	}
	return Event{}, false
}
