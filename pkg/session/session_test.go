package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/positive-doo/multitool/pkg/config"
	"github.com/positive-doo/multitool/pkg/retrieval"
	"github.com/positive-doo/multitool/pkg/tool"
	"github.com/positive-doo/multitool/pkg/vector"
)

type fixture struct {
	llm     *scriptedLLM
	dense   *recordingIndex
	hybrid  *recordingIndex
	tabular *fakeTabular
	deps    *Deps
}

func newFixture(replies ...string) *fixture {
	f := &fixture{
		llm:     &scriptedLLM{replies: replies},
		dense:   &recordingIndex{name: "embedings1"},
		hybrid:  &recordingIndex{name: "bis"},
		tabular: &fakeTabular{},
	}
	f.deps = &Deps{
		LLM:      f.llm,
		Embedder: fakeEmbedder{},
		Indexes:  &vector.Indexes{Dense: f.dense, Hybrid: f.hybrid},
		Encoder:  fakeEncoder{},
		Search:   fakeSearch{},
		Tabular:  f.tabular,
	}
	return f
}

func defaultSettings(t *testing.T) Settings {
	t.Helper()
	cfg := config.Default()
	s, err := SettingsFromConfig(&cfg.Session)
	require.NoError(t, err)
	return s
}

func defaultOptions(t *testing.T) Options {
	t.Helper()
	opts, err := OptionsFromConfig(config.Default())
	require.NoError(t, err)
	return opts
}

func newSession(t *testing.T, f *fixture) *Session {
	t.Helper()
	s, err := New("test", f.deps, defaultOptions(t), defaultSettings(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func action(tool, input string) string {
	return fmt.Sprintf("Thought: use %s\nAction: %s\nAction Input: %s", tool, tool, input)
}

func TestToolsetOrderAndFlags(t *testing.T) {
	s := newSession(t, newFixture())

	reg, err := s.toolset(s.Settings(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{ToolWebSearch, ToolSemantic, ToolHybrid, ToolSelfQuery, ToolCSV}, reg.Names())

	csv, _ := reg.Get(ToolCSV)
	assert.False(t, csv.ReturnDirect(), "no-dataset message must not end the turn")
	semantic, _ := reg.Get(ToolSemantic)
	assert.True(t, semantic.ReturnDirect())
	web, _ := reg.Get(ToolWebSearch)
	assert.False(t, web.ReturnDirect())
	assert.True(t, tool.KeepsInput(web), "web search needs the rewritten query")
	assert.False(t, tool.KeepsInput(semantic))
}

func TestToolsetPresetsAndOverrides(t *testing.T) {
	f := newFixture()
	f.deps.Search = nil
	opts := defaultOptions(t)
	opts.HybridPresets = true
	opts.Descriptions = map[string]string{ToolHybrid: "Job descriptions."}

	s, err := New("presets", f.deps, opts, defaultSettings(t))
	require.NoError(t, err)

	reg, err := s.toolset(s.Settings(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{ToolSemantic, ToolHybrid, ToolSelfQuery, ToolCSV, ToolKeywordPreset, ToolSemanticPreset}, reg.Names())

	hybrid, _ := reg.Get(ToolHybrid)
	assert.Equal(t, "Job descriptions.", hybrid.Description())

	keyword, _ := reg.Get(ToolKeywordPreset)
	_, err = keyword.Invoke(context.Background(), "opis")
	require.NoError(t, err)
	require.Len(t, f.hybrid.queries, 1)
	assert.InDelta(t, 0.01, f.hybrid.queries[0].Dense[0], 1e-6)
}

func TestAskDirectSemantic(t *testing.T) {
	f := newFixture(action(ToolSemantic, "Positive portfolio"))
	s := newSession(t, f)

	res, err := s.Ask(context.Background(), "What is in the Positive doo portfolio?")
	require.NoError(t, err)

	assert.True(t, res.Direct)
	assert.Equal(t, "embedings1 positive 0\n\nembedings1 positive 1\n\nembedings1 positive 2\n\n", res.Answer)
	require.Len(t, f.dense.queries, 1)
	assert.Equal(t, 3, f.dense.queries[0].TopK)

	lines := s.Transcript()
	require.Len(t, lines, 2)
	assert.Equal(t, RoleUser, lines[0].Role)
	assert.Equal(t, res.Answer, lines[1].Text)
	assert.Len(t, s.Memory(), 1)
}

func TestAskHybridUsesSessionAlpha(t *testing.T) {
	f := newFixture(action(ToolHybrid, "opis radnih mesta"))
	s := newSession(t, f)
	require.NoError(t, s.UpdateSettings(func(st *Settings) error {
		st.Alpha = 0.25
		st.K = 2
		return nil
	}))

	_, err := s.Ask(context.Background(), "List the job descriptions")
	require.NoError(t, err)

	require.Len(t, f.hybrid.queries, 1)
	q := f.hybrid.queries[0]
	assert.Equal(t, "pravnikkraciprazan", q.Namespace)
	assert.Equal(t, 2, q.TopK)
	assert.InDelta(t, 0.025, q.Dense[0], 1e-6)
	assert.InDelta(t, 0.75, q.Sparse.Values[0], 1e-6)
}

func TestAskSelfQueryAppliesFilter(t *testing.T) {
	f := newFixture(action(ToolSelfQuery, "direktor"))
	s := newSession(t, f)

	_, err := s.Ask(context.Background(), "Find the keyword direktor")
	require.NoError(t, err)

	require.Len(t, f.dense.queries, 1)
	assert.Equal(t, "sistematizacija3", f.dense.queries[0].Namespace)
	assert.Equal(t, map[string]any{"keyword": map[string]any{"$eq": "direktor"}}, f.dense.queries[0].Filter)
}

func TestAskWithoutDatasetContinues(t *testing.T) {
	f := newFixture(
		action(ToolCSV, "How many rows?"),
		"Final Answer: Please upload a CSV file.",
	)
	s := newSession(t, f)

	res, err := s.Ask(context.Background(), "How many rows?")
	require.NoError(t, err)
	assert.Equal(t, "Please upload a CSV file.", res.Answer)
	assert.Equal(t, "No CSV file has been selected for search.", res.Steps[0].Observation)
	assert.Empty(t, f.tabular.questions)
}

func TestAskWithDataset(t *testing.T) {
	f := newFixture(action(ToolCSV, "How many rows?"))
	s := newSession(t, f)
	require.NoError(t, s.SetDataset("people.csv", []byte("name\nAna\nMarko\n")))
	assert.Equal(t, "people.csv", s.DatasetName())

	res, err := s.Ask(context.Background(), "How many rows?")
	require.NoError(t, err)
	assert.True(t, res.Direct)
	assert.Equal(t, "people.csv has 2 rows", res.Answer)
}

func TestClearKeepsDataset(t *testing.T) {
	f := newFixture("Final Answer: hi")
	s := newSession(t, f)
	require.NoError(t, s.SetDataset("people.csv", []byte("name\nAna\n")))

	_, err := s.Ask(context.Background(), "hello")
	require.NoError(t, err)
	s.Clear()

	assert.Empty(t, s.Transcript())
	assert.Empty(t, s.Memory())
	assert.Equal(t, "people.csv", s.DatasetName())
}

func TestTranscriptTextNewestFirst(t *testing.T) {
	f := newFixture("Final Answer: one", "Final Answer: two")
	s := newSession(t, f)

	_, err := s.Ask(context.Background(), "first")
	require.NoError(t, err)
	_, err = s.Ask(context.Background(), "second")
	require.NoError(t, err)

	assert.Equal(t, "second\ntwo\nfirst\none", s.TranscriptText())
}

func TestSystemPromptPrefixesQuestion(t *testing.T) {
	f := newFixture("Final Answer: ok")
	s := newSession(t, f)
	require.NoError(t, s.UpdateSettings(func(st *Settings) error {
		st.SystemPrompt = "Answer briefly."
		return nil
	}))

	_, err := s.Ask(context.Background(), "Who are you?")
	require.NoError(t, err)
	assert.Contains(t, f.llm.prompts[0], "Question: Answer briefly.\nWho are you?")
}

func TestUpdateSettingsRejectsInvalid(t *testing.T) {
	s := newSession(t, newFixture())

	err := s.UpdateSettings(func(st *Settings) error {
		st.Alpha = 1.5
		return nil
	})
	assert.ErrorIs(t, err, retrieval.ErrInvalidParameter)
	assert.Equal(t, 0.5, s.Settings().Alpha)
}

func TestAskEmptyQuestion(t *testing.T) {
	s := newSession(t, newFixture())
	_, err := s.Ask(context.Background(), "   ")
	assert.Error(t, err)
}

func TestNewValidatesDeps(t *testing.T) {
	f := newFixture()
	f.deps.Encoder = nil
	_, err := New("x", f.deps, defaultOptions(t), defaultSettings(t))
	assert.Error(t, err)
}
