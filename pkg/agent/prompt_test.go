package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/positive-doo/multitool/pkg/memory"
	"github.com/positive-doo/multitool/pkg/tool"
)

func TestPromptRender(t *testing.T) {
	p, err := NewPrompt("", "Serbian")
	require.NoError(t, err)

	tools := []tool.Tool{
		&countingTool{name: "search"},
		&countingTool{name: "CSV search"},
	}
	steps := []Step{{
		Action:      Action{Tool: "search", Input: "date", Log: "Thought: look it up\nAction: search\nAction Input: date"},
		Observation: "Monday",
	}}
	history := []memory.Exchange{{Question: "hi", Answer: "hello"}}

	out, err := p.Render(tools, history, "What day is it?", steps)
	require.NoError(t, err)

	assert.Contains(t, out, "search: test tool search\nCSV search: test tool CSV search\n")
	assert.Contains(t, out, "should be one of [search, CSV search]")
	assert.Contains(t, out, "; ALWAYS write in Serbian language")
	assert.Contains(t, out, "Previous conversation:\nHuman: hi\nAI: hello")
	assert.Contains(t, out, "Question: What day is it?\n")
	assert.True(t, strings.HasSuffix(out, "Thought: "))
	assert.Contains(t, out, "Action Input: date\nObservation: Monday\nThought: ")
}

func TestPromptWithoutLanguageOrHistory(t *testing.T) {
	p, err := NewPrompt("", "")
	require.NoError(t, err)

	out, err := p.Render([]tool.Tool{&countingTool{name: "search"}}, nil, "q", nil)
	require.NoError(t, err)
	assert.NotContains(t, out, "ALWAYS write")
	assert.NotContains(t, out, "Previous conversation")
}

func TestLoadPrompt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("Tools: {{.ToolNames}}\nQ: {{.Input}}\n{{.Scratchpad}}"), 0o644))

	p, err := LoadPrompt(path, "")
	require.NoError(t, err)

	out, err := p.Render([]tool.Tool{&countingTool{name: "search"}}, nil, "why?", nil)
	require.NoError(t, err)
	assert.Equal(t, "Tools: search\nQ: why?\n", out)

	_, err = LoadPrompt(filepath.Join(t.TempDir(), "missing"), "")
	assert.Error(t, err)

	_, err = NewPrompt("{{.Broken", "")
	assert.Error(t, err)
}

func TestScratchpad(t *testing.T) {
	assert.Empty(t, Scratchpad(nil))
	got := Scratchpad([]Step{
		{Action: Action{Log: "a"}, Observation: "1"},
		{Action: Action{Log: "b"}, Observation: "2"},
	})
	assert.Equal(t, "a\nObservation: 1\nThought: b\nObservation: 2\nThought: ", got)
}
