// Package activity publishes domain events (registrations, posts, follows,
// messages) to a Kafka topic for downstream consumers.
//
// Services call Publish after a change has been committed. Publishing never
// blocks a request: events go into a buffered queue and a single Dispatcher
// goroutine ships them. When the queue is full the event is dropped and
// logged. Message bodies are never part of an event.
package activity

import (
	"context"
	"time"
)

// Type names an event kind. The string is the wire value.
type Type string

const (
	UserRegistered Type = "user.registered"
	PostCreated    Type = "post.created"
	UserFollowed   Type = "user.followed"
	UserUnfollowed Type = "user.unfollowed"
	MessageSent    Type = "message.sent"
)

// Event is one domain change. SubjectID is the object acted on: the new
// post, the followed user, the message recipient.
type Event struct {
	Type      Type      `json:"type"`
	ActorID   string    `json:"actor_id"`
	SubjectID string    `json:"subject_id,omitempty"`
	At        time.Time `json:"at"`
}

// NewEvent stamps an event with the current UTC time.
func NewEvent(t Type, actorID, subjectID string) Event {
	return Event{Type: t, ActorID: actorID, SubjectID: subjectID, At: time.Now().UTC()}
}

// Publisher accepts events. Implementations must not block the caller.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Discard drops every event. Used when no brokers are configured.
type Discard struct{}

func (Discard) Publish(context.Context, Event) {}
