package services

import (
	"sync"
	"time"
)

// nowFunc is an injectable clock seam; the zero value falls back to
// time.Now.
type nowFunc func() time.Time

func (f nowFunc) now() time.Time {
	if f != nil {
		return f()
	}
	return time.Now()
}

// Step is the tag of the per-actor conversation state. Absence of a
// conversation (or StepIdle) means the actor is not mid-check-in.
type Step int

const (
	StepIdle Step = iota
	StepAwaitingPhone
	StepAwaitingLocation
	StepAwaitingPhoto
)

// conversation is one actor's check-in attempt. Fields beyond step are
// valid only in the step that set them: userID from StepAwaitingLocation
// on, the location triple in StepAwaitingPhoto only.
//
// mu serializes all transitions for this actor: a second message from the
// same actor queues behind the one in flight, including while the matcher
// call is running. The store's own lock is never held that long.
type conversation struct {
	mu sync.Mutex

	step       Step
	userID     uint      // linked user, set when the phone step completes
	lat, lon   float64   // captured live location
	locationAt time.Time // when the location was captured
}

// reset returns the conversation to idle and clears state-scoped fields.
func (c *conversation) reset() {
	c.step = StepIdle
	c.userID = 0
	c.lat, c.lon = 0, 0
	c.locationAt = time.Time{}
}

// ConversationStore owns the actor-id → conversation map. It is an
// injectable container (no process global) so independent instances and
// tests do not share state.
type ConversationStore struct {
	mu    sync.Mutex
	convs map[int64]*conversation
}

// NewConversationStore returns an empty store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{convs: make(map[int64]*conversation)}
}

// acquire returns the actor's conversation with its lock held, creating an
// idle one when absent. The map lock is held only for the lookup/insert.
// Callers must unlock the returned conversation.
//
// The conversation may be dropped from the map while we wait on its lock
// (a concurrent completion or abort), so membership is re-checked after
// the lock is won; writing to an orphaned conversation would report a
// transition the store never holds.
func (s *ConversationStore) acquire(actorID int64) *conversation {
	for {
		s.mu.Lock()
		c, ok := s.convs[actorID]
		if !ok {
			c = &conversation{}
			s.convs[actorID] = c
		}
		s.mu.Unlock()

		c.mu.Lock()
		s.mu.Lock()
		live := s.convs[actorID] == c
		s.mu.Unlock()
		if live {
			return c
		}
		c.mu.Unlock()
	}
}

// drop resets c and removes the actor's map entry. Call with c locked.
// A goroutine waiting on c's lock in acquire will notice the removal and
// retry against a fresh idle conversation.
func (s *ConversationStore) drop(actorID int64, c *conversation) {
	c.reset()
	s.mu.Lock()
	if s.convs[actorID] == c {
		delete(s.convs, actorID)
	}
	s.mu.Unlock()
}

// StepOf reports the actor's current step without mutating anything; the
// bot uses it to phrase fallback replies.
func (s *ConversationStore) StepOf(actorID int64) Step {
	s.mu.Lock()
	c, ok := s.convs[actorID]
	s.mu.Unlock()
	if !ok {
		return StepIdle
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}
