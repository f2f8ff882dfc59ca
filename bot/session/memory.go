package session

import (
	"context"
	"sync"
	"time"
)

type pairKey struct {
	chatID int64
	userID int64
}

// MemoryStore is an in-memory Store and OffsetStore implementation for
// tests and local development.
type MemoryStore struct {
	mu       sync.Mutex
	nextID   int64
	sessions map[pairKey]*ChatSession
	offset   int
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[pairKey]*ChatSession)}
}

// GetOrCreate returns the session for the pair, creating it when missing.
func (m *MemoryStore) GetOrCreate(_ context.Context, chatID, userID int64) (*ChatSession, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey{chatID: chatID, userID: userID}
	if sess, ok := m.sessions[key]; ok {
		return sess.Clone(), false, nil
	}

	m.nextID++
	now := time.Now()
	sess := &ChatSession{
		ID:        m.nextID,
		ChatID:    chatID,
		UserID:    userID,
		Status:    StatusNotVerified,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.sessions[key] = sess
	return sess.Clone(), true, nil
}

// Find returns the session or ErrNotFound.
func (m *MemoryStore) Find(_ context.Context, chatID, userID int64) (*ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[pairKey{chatID: chatID, userID: userID}]
	if !ok {
		return nil, ErrNotFound
	}
	return sess.Clone(), nil
}

// Save persists mutated fields of an existing session.
func (m *MemoryStore) Save(_ context.Context, s *ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, existing := range m.sessions {
		if existing.ID == s.ID {
			updated := s.Clone()
			updated.UpdatedAt = time.Now()
			m.sessions[key] = updated
			return nil
		}
	}
	return ErrNotFound
}

// ConsumeVerificationCode links the session holding the code to the account.
func (m *MemoryStore) ConsumeVerificationCode(_ context.Context, code string, accountID int64) (*ChatSession, error) {
	if code == "" {
		return nil, ErrNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sess := range m.sessions {
		if sess.VerificationCode == code && sess.Status == StatusNotVerified {
			id := accountID
			sess.AccountID = &id
			sess.Status = StatusVerified
			sess.VerificationCode = ""
			sess.UpdatedAt = time.Now()
			return sess.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// Delete removes a session; used by tests to simulate a vanished row.
func (m *MemoryStore) Delete(chatID, userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, pairKey{chatID: chatID, userID: userID})
}

// LoadOffset returns the stored poll offset.
func (m *MemoryStore) LoadOffset(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offset, nil
}

// SaveOffset stores the poll offset, never regressing it.
func (m *MemoryStore) SaveOffset(_ context.Context, offset int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if offset > m.offset {
		m.offset = offset
	}
	return nil
}
