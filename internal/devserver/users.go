package devserver

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// User is an account held by the development backend.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash []byte
	Verified     bool
	AvatarURL    string
	Preferences  json.RawMessage
	CreatedAt    time.Time
}

type profileView struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"`
	Name        string          `json:"name"`
	AvatarURL   string          `json:"avatarUrl"`
	Verified    bool            `json:"verified"`
	Preferences json.RawMessage `json:"preferences,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func (u *User) view() profileView {
	return profileView{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		AvatarURL:   u.AvatarURL,
		Verified:    u.Verified,
		Preferences: u.Preferences,
		CreatedAt:   u.CreatedAt,
	}
}

type avatar struct {
	ContentType string
	Data        []byte
}

// Recipe is a generated recipe saved for a user.
type Recipe struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Ingredients []string  `json:"ingredients"`
	Steps       []string  `json:"steps"`
	CreatedAt   time.Time `json:"createdAt"`
}

// memoryStore keeps every record in process memory. Returned users are
// copies.
type memoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string
	codes   map[string]string
	revoked map[string]time.Time
	refresh map[string]string
	avatars map[string]avatar
	recipes map[string][]Recipe
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
		codes:   make(map[string]string),
		revoked: make(map[string]time.Time),
		refresh: make(map[string]string),
		avatars: make(map[string]avatar),
		recipes: make(map[string][]Recipe),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (m *memoryStore) create(u *User) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := normalizeEmail(u.Email)
	if _, ok := m.byEmail[email]; ok {
		return nil, errConflict
	}
	c := *u
	c.ID = uuid.NewString()
	c.Email = email
	m.byID[c.ID] = &c
	m.byEmail[email] = c.ID

	out := c
	return &out, nil
}

func (m *memoryStore) byLogin(email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, errNotFound
	}
	out := *m.byID[id]
	return &out, nil
}

func (m *memoryStore) get(id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.byID[id]
	if !ok {
		return nil, errNotFound
	}
	out := *u
	return &out, nil
}

func (m *memoryStore) update(id string, fn func(u *User)) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[id]
	if !ok {
		return nil, errNotFound
	}
	fn(u)
	out := *u
	return &out, nil
}

func (m *memoryStore) delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[id]
	if !ok {
		return errNotFound
	}
	delete(m.byEmail, u.Email)
	delete(m.byID, id)
	delete(m.codes, u.Email)
	delete(m.avatars, id)
	delete(m.recipes, id)
	for tok, uid := range m.refresh {
		if uid == id {
			delete(m.refresh, tok)
		}
	}
	return nil
}

func (m *memoryStore) setCode(email, code string) {
	m.mu.Lock()
	m.codes[normalizeEmail(email)] = code
	m.mu.Unlock()
}

// takeCode consumes the pending code for email when it matches.
func (m *memoryStore) takeCode(email, code string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	email = normalizeEmail(email)
	want, ok := m.codes[email]
	if !ok || want != code {
		return false
	}
	delete(m.codes, email)
	return true
}

func (m *memoryStore) pendingCode(email string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.codes[normalizeEmail(email)]
	return c, ok
}

// revoke blocks jti until it would have expired anyway.
func (m *memoryStore) revoke(jti string, until, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, exp := range m.revoked {
		if exp.Before(now) {
			delete(m.revoked, k)
		}
	}
	m.revoked[jti] = until
}

func (m *memoryStore) isRevoked(jti string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.revoked[jti]
	return ok
}

func (m *memoryStore) addRefresh(token, userID string) {
	m.mu.Lock()
	m.refresh[token] = userID
	m.mu.Unlock()
}

func (m *memoryStore) dropRefresh(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for tok, uid := range m.refresh {
		if uid == userID {
			delete(m.refresh, tok)
		}
	}
}

func (m *memoryStore) putAvatar(userID string, a avatar) {
	m.mu.Lock()
	m.avatars[userID] = a
	m.mu.Unlock()
}

func (m *memoryStore) getAvatar(userID string) (avatar, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.avatars[userID]
	return a, ok
}

func (m *memoryStore) addRecipes(userID string, rs []Recipe) {
	m.mu.Lock()
	m.recipes[userID] = append(m.recipes[userID], rs...)
	m.mu.Unlock()
}

func (m *memoryStore) listRecipes(userID string) []Recipe {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Recipe, len(m.recipes[userID]))
	copy(out, m.recipes[userID])
	return out
}
