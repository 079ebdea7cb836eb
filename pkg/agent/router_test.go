package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/positive-doo/multitool/pkg/memory"
	"github.com/positive-doo/multitool/pkg/oracle"
	"github.com/positive-doo/multitool/pkg/retrieval"
	"github.com/positive-doo/multitool/pkg/tool"
)

func newRouter(t *testing.T, llm *scriptedLLM, tools *tool.Registry, cfg Config) (*Router, *memory.BufferWindow) {
	t.Helper()
	mem := memory.NewBufferWindow(4)
	r, err := NewRouter(llm, tools, mem, cfg)
	require.NoError(t, err)
	return r, mem
}

func action(tool, input string) string {
	return fmt.Sprintf("I should use a tool\nAction: %s\nAction Input: %s", tool, input)
}

func TestFinalAnswerEndsTurnWithoutToolCall(t *testing.T) {
	search := &countingTool{name: "search", output: "x"}
	llm := &scriptedLLM{replies: []string{"I now know the final answer\nFinal Answer: Hello there."}}
	r, mem := newRouter(t, llm, registry(search), Config{})

	res, err := r.Run(context.Background(), Turn{Question: "Hi"})
	require.NoError(t, err)

	assert.Equal(t, "Hello there.", res.Answer)
	assert.Equal(t, 1, res.Iterations)
	assert.False(t, res.Stopped)
	assert.Empty(t, search.inputs)
	assert.Equal(t, []memory.Exchange{{Question: "Hi", Answer: "Hello there."}}, mem.Exchanges())
	assert.Equal(t, []string{StopSequence}, llm.stops[0])
}

func TestUnparseableOutputAbortsTurn(t *testing.T) {
	search := &countingTool{name: "search"}
	llm := &scriptedLLM{replies: []string{"I have no idea what format to use"}}
	r, mem := newRouter(t, llm, registry(search), Config{})

	_, err := r.Run(context.Background(), Turn{Question: "Hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)
	assert.Empty(t, search.inputs)
	assert.Zero(t, mem.Len())
}

func TestDirectReturnToolAnswersImmediately(t *testing.T) {
	semantic := &countingTool{name: "Semantic search", direct: true, output: "passage one\n\npassage two\n\n"}
	llm := &scriptedLLM{replies: []string{action("Semantic search", "Positive doo portfolio")}}
	r, _ := newRouter(t, llm, registry(semantic), Config{})

	res, err := r.Run(context.Background(), Turn{Question: "Tell me about the Positive doo portfolio"})
	require.NoError(t, err)

	assert.Equal(t, "passage one\n\npassage two\n\n", res.Answer)
	assert.True(t, res.Direct)
	assert.Equal(t, 1, res.Iterations)
	assert.Len(t, llm.prompts, 1)
	assert.Equal(t, []string{"Positive doo portfolio"}, semantic.inputs)
}

func TestUseOriginalQuestion(t *testing.T) {
	semantic := &countingTool{name: "Semantic search", direct: true, output: "ok"}
	llm := &scriptedLLM{replies: []string{action("Semantic search", "reworded")}}
	r, _ := newRouter(t, llm, registry(semantic), Config{UseOriginalQuestion: true})

	_, err := r.Run(context.Background(), Turn{Question: "original wording", SystemPrompt: "You are helpful."})
	require.NoError(t, err)

	assert.Equal(t, []string{"original wording"}, semantic.inputs)
	assert.Contains(t, llm.prompts[0], "Question: You are helpful.\noriginal wording\n")
}

func TestUseOriginalQuestionSkipsWebSearch(t *testing.T) {
	var got []string
	web, err := tool.New(tool.Config{Name: "search", KeepInput: true}, func(_ context.Context, input string) (string, error) {
		got = append(got, input)
		return "sunny", nil
	})
	require.NoError(t, err)
	semantic := &countingTool{name: "Semantic search", direct: true, output: "ok"}

	llm := &scriptedLLM{replies: []string{
		action("search", "weather Belgrade today"),
		action("Semantic search", "reworded"),
	}}
	r, _ := newRouter(t, llm, registry(web, semantic), Config{UseOriginalQuestion: true})

	_, err = r.Run(context.Background(), Turn{Question: "what is the weather and who is Positive doo?"})
	require.NoError(t, err)

	assert.Equal(t, []string{"weather Belgrade today"}, got)
	assert.Equal(t, []string{"what is the weather and who is Positive doo?"}, semantic.inputs)
}

func TestHybridQuestionIsComposed(t *testing.T) {
	emb := &fakeEmbedder{}
	idx := &recordingIndex{}
	hybrid := &retrieval.Hybrid{Embedder: emb, Encoder: fakeEncoder{}, Index: idx, MaxK: 5}
	alpha := 0.5

	hybridTool, err := tool.New(tool.Config{Name: "Hybrid search", Description: "Positive doo topics"},
		func(ctx context.Context, input string) (string, error) {
			passages, err := hybrid.Retrieve(ctx, retrieval.Request{Query: input, Namespace: "pravnikkraciprazan", K: 3, Alpha: &alpha})
			if err != nil {
				return "", err
			}
			return retrieval.Concat(passages), nil
		})
	require.NoError(t, err)

	llm := &scriptedLLM{replies: []string{
		action("Hybrid search", "What is Positive doo?"),
		"I now know the final answer\nFinal Answer: Positive doo is a software company.",
	}}
	r, _ := newRouter(t, llm, registry(hybridTool), Config{})

	res, err := r.Run(context.Background(), Turn{Question: "What is Positive doo?"})
	require.NoError(t, err)

	require.Len(t, idx.queries, 1)
	q := idx.queries[0]
	assert.Equal(t, 3, q.TopK)
	assert.Equal(t, []float32{0.5, 0.5, 0.5, 0.5}, q.Dense)
	require.NotNil(t, q.Sparse)
	assert.InDeltaSlice(t, []float32{0.3, 0.2}, q.Sparse.Values, 1e-6)

	assert.Equal(t, "Positive doo is a software company.", res.Answer)
	assert.False(t, res.Direct)
	assert.Equal(t, 2, res.Iterations)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, "Positive doo passage 0\n\nPositive doo passage 1\n\nPositive doo passage 2\n\n", res.Steps[0].Observation)
	assert.Contains(t, llm.prompts[1], "Observation: Positive doo passage 0")
}

func TestNoDatasetMessageContinuesLoop(t *testing.T) {
	csv := &countingTool{name: "CSV search", output: "No CSV file has been selected for search."}
	llm := &scriptedLLM{replies: []string{
		action("CSV search", "How many rows?"),
		"Final Answer: Please upload a CSV file first.",
	}}
	r, _ := newRouter(t, llm, registry(csv), Config{})

	res, err := r.Run(context.Background(), Turn{Question: "How many rows?"})
	require.NoError(t, err)
	assert.Equal(t, "Please upload a CSV file first.", res.Answer)
	assert.Contains(t, llm.prompts[1], "Observation: No CSV file has been selected for search.\nThought: ")
}

func TestIterationCapFallback(t *testing.T) {
	search := &countingTool{name: "search", output: "nothing useful"}
	llm := &scriptedLLM{}
	for i := 0; i < 4; i++ {
		llm.replies = append(llm.replies, action("search", "again"))
	}
	r, mem := newRouter(t, llm, registry(search), Config{MaxIterations: 4})

	res, err := r.Run(context.Background(), Turn{Question: "loop forever"})
	require.NoError(t, err)

	assert.True(t, res.Stopped)
	assert.Equal(t, DefaultIterationLimitMessage, res.Answer)
	assert.Equal(t, 4, res.Iterations)
	assert.Len(t, search.inputs, 4)
	assert.Len(t, llm.prompts, 4)
	assert.Equal(t, 1, mem.Len())
}

func TestUnknownToolBecomesObservation(t *testing.T) {
	a := &countingTool{name: "search"}
	b := &countingTool{name: "CSV search"}
	llm := &scriptedLLM{replies: []string{
		action("Google", "x"),
		"Final Answer: done",
	}}
	r, _ := newRouter(t, llm, registry(a, b), Config{})

	res, err := r.Run(context.Background(), Turn{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, "done", res.Answer)
	assert.Equal(t, "Google is not a valid tool, try one of [search, CSV search].", res.Steps[0].Observation)
	assert.Empty(t, a.inputs)
	assert.Empty(t, b.inputs)
}

func TestOracleFailureBecomesObservation(t *testing.T) {
	semantic := &countingTool{name: "Semantic search", direct: true,
		err: oracle.Wrap("pinecone", "query", errors.New("connection refused"))}
	llm := &scriptedLLM{replies: []string{
		action("Semantic search", "q"),
		"Final Answer: The index is unavailable.",
	}}
	r, _ := newRouter(t, llm, registry(semantic), Config{})

	res, err := r.Run(context.Background(), Turn{Question: "q"})
	require.NoError(t, err)
	assert.False(t, res.Direct)
	assert.Equal(t, "The index is unavailable.", res.Answer)
	assert.Equal(t, "Tool Semantic search failed: pinecone query: connection refused", res.Steps[0].Observation)
}

func TestInvalidParameterAbortsTurn(t *testing.T) {
	hybrid := &countingTool{name: "Hybrid search",
		err: &retrieval.InvalidParameterError{Param: "alpha", Value: 1.5, Reason: "must be between 0 and 1"}}
	llm := &scriptedLLM{replies: []string{action("Hybrid search", "q")}}
	r, _ := newRouter(t, llm, registry(hybrid), Config{})

	_, err := r.Run(context.Background(), Turn{Question: "q"})
	assert.ErrorIs(t, err, retrieval.ErrInvalidParameter)
}

func TestLLMFailureAbortsTurn(t *testing.T) {
	llm := &scriptedLLM{err: oracle.Wrap("openai", "chat", errors.New("503"))}
	r, _ := newRouter(t, llm, registry(&countingTool{name: "search"}), Config{})

	_, err := r.Run(context.Background(), Turn{Question: "q"})
	assert.True(t, oracle.IsUnavailable(err))
}

func TestStreamEvents(t *testing.T) {
	search := &countingTool{name: "search", output: "Monday"}
	llm := &scriptedLLM{replies: []string{
		action("search", "today"),
		"Final Answer: It is Monday.",
	}}
	r, _ := newRouter(t, llm, registry(search), Config{})

	var types []EventType
	var final *Result
	for ev := range r.Stream(context.Background(), Turn{Question: "What day is it?"}) {
		if ev.Type != EventToken {
			types = append(types, ev.Type)
		}
		if ev.Type == EventFinal {
			final = ev.Result
		}
	}

	assert.Equal(t, []EventType{EventAction, EventObservation, EventFinal}, types)
	require.NotNil(t, final)
	assert.Equal(t, "It is Monday.", final.Answer)
}

func TestMemoryIsReadEachCycle(t *testing.T) {
	llm := &scriptedLLM{replies: []string{"Final Answer: first", "Final Answer: second"}}
	r, _ := newRouter(t, llm, registry(&countingTool{name: "search"}), Config{})

	_, err := r.Run(context.Background(), Turn{Question: "one"})
	require.NoError(t, err)
	_, err = r.Run(context.Background(), Turn{Question: "two"})
	require.NoError(t, err)

	assert.NotContains(t, llm.prompts[0], "Previous conversation")
	assert.Contains(t, llm.prompts[1], "Human: one\nAI: first")
}

func TestNewRouterValidation(t *testing.T) {
	_, err := NewRouter(nil, registry(&countingTool{name: "search"}), nil, Config{})
	assert.Error(t, err)

	empty, _ := tool.NewRegistry()
	_, err = NewRouter(&scriptedLLM{}, empty, nil, Config{})
	assert.Error(t, err)
}
