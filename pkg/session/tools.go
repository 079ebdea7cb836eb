package session

import (
	"context"
	"strings"

	"github.com/positive-doo/multitool/pkg/retrieval"
	"github.com/positive-doo/multitool/pkg/tabular"
	"github.com/positive-doo/multitool/pkg/tool"
)

// Tool names. They are part of the prompt and must stay stable.
const (
	ToolWebSearch       = "search"
	ToolSemantic        = "Semantic search"
	ToolHybrid          = "Hybrid search"
	ToolSelfQuery       = "Self search"
	ToolCSV             = "CSV search"
	ToolKeywordPreset   = "Keyword search"
	ToolSemanticPreset  = "Semantic hybrid search"
	keywordPresetAlpha  = 0.1
	semanticPresetAlpha = 0.9
)

// DefaultDescriptions are what the LLM reads when choosing a tool.
var DefaultDescriptions = map[string]string{
	ToolWebSearch: "Google search tool. Useful when you need to answer questions about recent events or if someone asks for the current time or date.",
	ToolSemantic:  "Useful for when you are asked about topics including Positive doo and their portfolio. Input should contain Positive.",
	ToolHybrid:    "Useful for when you are asked about topics that will list items about opis radnih mesta.",
	ToolSelfQuery: "Useful for when you are asked about topics that will look for keyword.",
	ToolCSV:       "Useful for when you are asked about structured data like numbers, counts or sums",
	ToolKeywordPreset: "Finds exact matches for the terms in the query. Useful when looking for specific information with known terms; " +
		"may miss synonyms or related terms. Relevant if the query is about Positive doo.",
	ToolSemanticPreset: "Understands the intent and contextual meaning of the query and retrieves contextually relevant information. " +
		"Useful for complex queries over large unstructured data. Relevant if the query is about Positive doo.",
}

// toolset builds the registry for one turn from a settings snapshot.
func (s *Session) toolset(settings Settings, dataset *tabular.Dataset) (*tool.Registry, error) {
	d := s.deps
	reg, err := tool.NewRegistry()
	if err != nil {
		return nil, err
	}

	add := func(name string, direct bool, fn func(ctx context.Context, input string) (string, error)) error {
		t, err := tool.New(tool.Config{
			Name:         name,
			Description:  s.description(name),
			ReturnDirect: direct,
			KeepInput:    name == ToolWebSearch,
		}, fn)
		if err != nil {
			return err
		}
		return reg.Add(t)
	}

	retrieve := func(r retrieval.Retriever, namespace string, alpha *float64) func(context.Context, string) (string, error) {
		return func(ctx context.Context, input string) (string, error) {
			passages, err := r.Retrieve(ctx, retrieval.Request{
				Query:     input,
				Namespace: namespace,
				K:         settings.K,
				Alpha:     alpha,
			})
			if err != nil {
				return "", err
			}
			return retrieval.Concat(passages), nil
		}
	}

	if d.Search != nil && s.opts.WebSearch {
		if err := add(ToolWebSearch, false, d.Search.Search); err != nil {
			return nil, err
		}
	}

	semantic := &retrieval.Semantic{
		Embedder: d.Embedder,
		Index:    d.Indexes.Dense,
		Policy:   settings.ScoreThreshold,
		MaxK:     settings.MaxK,
	}
	if err := add(ToolSemantic, settings.DirectSemantic, retrieve(semantic, settings.SemanticNamespace, nil)); err != nil {
		return nil, err
	}

	hybrid := &retrieval.Hybrid{
		Embedder: d.Embedder,
		Encoder:  d.Encoder,
		Index:    d.Indexes.Hybrid,
		Policy:   settings.ScoreThreshold,
		MaxK:     settings.MaxK,
	}
	alpha := settings.Alpha
	if err := add(ToolHybrid, settings.DirectHybrid, retrieve(hybrid, settings.HybridNamespace, &alpha)); err != nil {
		return nil, err
	}

	selfQuery := &retrieval.SelfQuery{
		LLM:              d.LLM,
		Embedder:         d.Embedder,
		Index:            d.Indexes.Dense,
		DocumentContents: s.opts.DocumentContents,
		Policy:           settings.ScoreThreshold,
		MaxK:             settings.MaxK,
	}
	if err := add(ToolSelfQuery, settings.DirectSelfQuery, retrieve(selfQuery, settings.SelfQueryNamespace, nil)); err != nil {
		return nil, err
	}

	// without a dataset the fixed message goes back to the LLM instead of ending the turn
	csv := &tabular.Adapter{Oracle: d.Tabular, NoDatasetMessage: s.opts.NoDatasetMessage}
	err = add(ToolCSV, settings.DirectCSV && dataset != nil, func(ctx context.Context, input string) (string, error) {
		return csv.Ask(ctx, dataset, input)
	})
	if err != nil {
		return nil, err
	}

	if s.opts.HybridPresets {
		keyword, semanticAlpha := keywordPresetAlpha, semanticPresetAlpha
		if err := add(ToolKeywordPreset, false, retrieve(hybrid, settings.HybridNamespace, &keyword)); err != nil {
			return nil, err
		}
		if err := add(ToolSemanticPreset, false, retrieve(hybrid, settings.HybridNamespace, &semanticAlpha)); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

func (s *Session) description(name string) string {
	if desc, ok := s.opts.Descriptions[name]; ok && strings.TrimSpace(desc) != "" {
		return strings.TrimSpace(desc)
	}
	return DefaultDescriptions[name]
}
