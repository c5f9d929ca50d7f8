package auth

import (
	"time"

	"go.uber.org/zap"
)

// EventType names a session change.
type EventType string

const (
	EventSignedUp    EventType = "signed_up"
	EventSignedIn    EventType = "signed_in"
	EventSignedOut   EventType = "signed_out"
	EventUserUpdated EventType = "user_updated"
)

// Event is delivered to subscribers of the affected user.
type Event struct {
	Type   EventType `json:"type"`
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
}

const subscriberBuffer = 16

type subscriber struct {
	userID string
	ch     chan Event
}

// Subscribe streams the events of userID; an empty userID receives every
// event. Slow subscribers miss events rather than block the publisher.
func (s *Service) Subscribe(userID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = subscriber{userID: userID, ch: ch}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub.ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Service) publish(t EventType, userID string) {
	ev := Event{Type: t, UserID: userID, At: time.Now()}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.userID != "" && sub.userID != userID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			s.opts.Logger.Warn("auth event dropped", zap.String("type", string(t)), zap.String("user_id", userID))
		}
	}
}
