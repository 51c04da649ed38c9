package ws

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"social-realtime/internal/models"
	"social-realtime/internal/repositories"
)

type recordingConn struct {
	id     string
	userID string
	mu     sync.Mutex
	events []models.Event
	dead   bool
}

func newRecordingConn(id, userID string) *recordingConn {
	return &recordingConn{id: id, userID: userID}
}

func (c *recordingConn) ID() string     { return c.id }
func (c *recordingConn) UserID() string { return c.userID }

func (c *recordingConn) Send(event models.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead {
		return false
	}
	c.events = append(c.events, event)
	return true
}

func (c *recordingConn) kill() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dead = true
}

func (c *recordingConn) eventsOfType(eventType string) []models.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.Event
	for _, e := range c.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (c *recordingConn) last() models.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return models.Event{}
	}
	return c.events[len(c.events)-1]
}

func (c *recordingConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

// memoryStore is an in-memory message store and user directory.
type memoryStore struct {
	mu        sync.Mutex
	users     map[string]models.User
	follows   map[[2]string]bool
	messages  []models.Message
	seq       int64
	base      time.Time
	createErr error
}

func newMemoryStore(userIDs ...string) *memoryStore {
	s := &memoryStore{
		users:   make(map[string]models.User),
		follows: make(map[[2]string]bool),
		base:    time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	for _, id := range userIDs {
		s.users[id] = models.User{ID: id, Username: id + "_name", FirstName: "First " + id, LastName: "Last " + id}
	}
	return s
}

func (s *memoryStore) CreateMessage(ctx context.Context, senderID, receiverID, content string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return models.Message{}, s.createErr
	}
	s.seq++
	msg := models.Message{
		ID:         fmt.Sprintf("m%d", s.seq),
		Seq:        s.seq,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  s.base.Add(time.Duration(s.seq) * time.Millisecond),
	}
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *memoryStore) ListConversation(ctx context.Context, userID, otherID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Message{}
	for _, m := range s.messages {
		if (m.SenderID == userID && m.ReceiverID == otherID) || (m.SenderID == otherID && m.ReceiverID == userID) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *memoryStore) MarkConversationRead(ctx context.Context, senderID, receiverID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.messages {
		m := &s.messages[i]
		if m.SenderID == senderID && m.ReceiverID == receiverID && !m.Read {
			m.Read = true
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) ListChats(ctx context.Context, userID string) ([]models.ChatRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest := map[string]models.ChatRow{}
	for _, m := range s.messages {
		var other string
		switch userID {
		case m.SenderID:
			other = m.ReceiverID
		case m.ReceiverID:
			other = m.SenderID
		default:
			continue
		}
		row := latest[other]
		row.CounterpartID = other
		if row.Message.Seq < m.Seq {
			row.Message = m
		}
		if m.ReceiverID == userID && !m.Read {
			row.UnreadCount++
		}
		latest[other] = row
	}
	out := make([]models.ChatRow, 0, len(latest))
	for _, row := range latest {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq > out[j].Seq })
	return out, nil
}

func (s *memoryStore) CountMessages(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.messages)), nil
}

func (s *memoryStore) FindByID(ctx context.Context, userID string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return models.User{}, repositories.ErrUserNotFound
	}
	return u, nil
}

func (s *memoryStore) BulkUsers(ctx context.Context, ids []string) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.User{}
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *memoryStore) AreMutualFollowers(ctx context.Context, userID, otherID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.follows[[2]string{userID, otherID}] && s.follows[[2]string{otherID, userID}], nil
}

func (s *memoryStore) count() int {
	n, _ := s.CountMessages(context.Background())
	return int(n)
}

var _ repositories.MessageRepository = (*memoryStore)(nil)
var _ repositories.UserRepository = (*memoryStore)(nil)
