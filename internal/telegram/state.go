package telegram

import (
	"sync"

	"github.com/digkill/designforge/internal/service"
)

type SessionState int

const (
	StateIdle SessionState = iota
	StateAwaitingStyle
	StateAwaitingPrompt
)

const defaultVariationCount = 2

var defaultPalette = []string{"#111111", "#ffffff"}

// LastGeneration remembers the variations shown to a chat so inline buttons
// can refer to them by index. Callback data is capped at 64 bytes.
type LastGeneration struct {
	DesignID     string
	GenerationID string
	Variations   []service.VariationResult
}

type Session struct {
	State        SessionState
	Style        string
	Count        int
	Colors       []string
	ReferenceURL string
	Last         *LastGeneration
}

func newSession() *Session {
	return &Session{
		State:  StateIdle,
		Count:  defaultVariationCount,
		Colors: append([]string(nil), defaultPalette...),
	}
}

type StateManager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

func NewStateManager() *StateManager {
	return &StateManager{
		sessions: make(map[int64]*Session),
	}
}

// Get returns a copy of the chat's session, or a fresh one.
func (m *StateManager) Get(chatID int64) *Session {
	m.mu.RLock()
	session, ok := m.sessions[chatID]
	m.mu.RUnlock()
	if !ok {
		return newSession()
	}
	cp := *session
	cp.Colors = append([]string(nil), session.Colors...)
	return &cp
}

func (m *StateManager) Set(chatID int64, session *Session) {
	m.mu.Lock()
	m.sessions[chatID] = session
	m.mu.Unlock()
}

// Reset returns the chat to idle but keeps its palette, reference and last generation.
func (m *StateManager) Reset(chatID int64) {
	session := m.Get(chatID)
	session.State = StateIdle
	session.Style = ""
	m.Set(chatID, session)
}

func (m *StateManager) ClearReference(chatID int64) {
	m.mu.Lock()
	if session, ok := m.sessions[chatID]; ok {
		session.ReferenceURL = ""
	}
	m.mu.Unlock()
}
