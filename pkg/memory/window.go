// Package memory holds the short-term conversation memory of a session.
package memory

import (
	"strings"
	"sync"
)

// DefaultWindow is the number of exchanges kept when none is configured.
const DefaultWindow = 4

// Exchange is one completed turn.
type Exchange struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type ConversationMemory interface {
	Add(question, answer string)
	Exchanges() []Exchange
	Clear()
}

// BufferWindow keeps the most recent exchanges and evicts the oldest first.
type BufferWindow struct {
	mu         sync.RWMutex
	windowSize int
	exchanges  []Exchange
}

func NewBufferWindow(windowSize int) *BufferWindow {
	if windowSize <= 0 {
		windowSize = DefaultWindow
	}
	return &BufferWindow{windowSize: windowSize}
}

func (m *BufferWindow) WindowSize() int {
	return m.windowSize
}

func (m *BufferWindow) Add(question, answer string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.exchanges = append(m.exchanges, Exchange{Question: question, Answer: answer})
	if over := len(m.exchanges) - m.windowSize; over > 0 {
		m.exchanges = append([]Exchange(nil), m.exchanges[over:]...)
	}
}

// Exchanges returns a copy, oldest first.
func (m *BufferWindow) Exchanges() []Exchange {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]Exchange(nil), m.exchanges...)
}

func (m *BufferWindow) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.exchanges)
}

func (m *BufferWindow) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.exchanges = nil
}

// Format renders exchanges as Human/AI lines for a prompt.
func Format(exchanges []Exchange) string {
	var sb strings.Builder
	for _, ex := range exchanges {
		sb.WriteString("Human: ")
		sb.WriteString(ex.Question)
		sb.WriteString("\nAI: ")
		sb.WriteString(ex.Answer)
		sb.WriteString("\n")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
