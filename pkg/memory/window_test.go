package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferWindowEvictsOldest(t *testing.T) {
	m := NewBufferWindow(4)
	for i := 1; i <= 5; i++ {
		m.Add(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
		assert.LessOrEqual(t, m.Len(), 4)
	}

	got := m.Exchanges()
	assert.Len(t, got, 4)
	assert.Equal(t, Exchange{Question: "q2", Answer: "a2"}, got[0])
	assert.Equal(t, Exchange{Question: "q5", Answer: "a5"}, got[3])
}

func TestBufferWindowDefaults(t *testing.T) {
	assert.Equal(t, DefaultWindow, NewBufferWindow(0).WindowSize())
	assert.Equal(t, 2, NewBufferWindow(2).WindowSize())
}

func TestBufferWindowClear(t *testing.T) {
	m := NewBufferWindow(4)
	m.Add("q", "a")
	m.Clear()
	assert.Empty(t, m.Exchanges())
	assert.Zero(t, m.Len())
}

func TestExchangesIsCopy(t *testing.T) {
	m := NewBufferWindow(4)
	m.Add("q", "a")
	got := m.Exchanges()
	got[0].Answer = "changed"
	assert.Equal(t, "a", m.Exchanges()[0].Answer)
}

func TestBufferWindowConcurrentAdd(t *testing.T) {
	m := NewBufferWindow(3)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Add(fmt.Sprint(i), "x")
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 3, m.Len())
}

func TestFormat(t *testing.T) {
	out := Format([]Exchange{{"What is Positive doo?", "A software company."}, {"Where?", "Novi Sad."}})
	assert.Equal(t, "Human: What is Positive doo?\nAI: A software company.\nHuman: Where?\nAI: Novi Sad.", out)
	assert.Empty(t, Format(nil))
}
