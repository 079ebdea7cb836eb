package session

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/positive-doo/multitool/pkg/config"
	"github.com/positive-doo/multitool/pkg/retrieval"
)

// ErrInvalidSetting is returned by Set for unknown keys and unparsable values.
var ErrInvalidSetting = errors.New("invalid setting")

// Settings are the per-session knobs of the tools and the router.
type Settings struct {
	SemanticNamespace  string  `json:"semantic_namespace"`
	SelfQueryNamespace string  `json:"self_query_namespace"`
	HybridNamespace    string  `json:"hybrid_namespace"`
	K                  int     `json:"k"`
	MaxK               int     `json:"max_k"`
	Alpha              float64 `json:"alpha"`

	DirectSemantic  bool `json:"direct_semantic"`
	DirectSelfQuery bool `json:"direct_self_query"`
	DirectHybrid    bool `json:"direct_hybrid"`
	DirectCSV       bool `json:"direct_csv"`

	UseOriginalQuestion bool `json:"use_original_question"`

	ScoreThreshold retrieval.ScorePolicy `json:"score_threshold"`

	SystemPrompt string `json:"system_prompt,omitempty"`
}

// SettingsFromConfig builds defaults for new sessions. cfg must have had
// SetDefaults applied.
func SettingsFromConfig(cfg *config.SessionConfig) (Settings, error) {
	s := Settings{
		SemanticNamespace:   cfg.SemanticNamespace,
		SelfQueryNamespace:  cfg.SelfQueryNamespace,
		HybridNamespace:     cfg.HybridNamespace,
		K:                   cfg.K,
		MaxK:                cfg.MaxK,
		Alpha:               *cfg.Alpha,
		DirectSemantic:      *cfg.DirectReturn.Semantic,
		DirectSelfQuery:     *cfg.DirectReturn.SelfQuery,
		DirectHybrid:        *cfg.DirectReturn.Hybrid,
		DirectCSV:           *cfg.DirectReturn.CSV,
		UseOriginalQuestion: *cfg.UseOriginalQuestion,
		ScoreThreshold: retrieval.ScorePolicy{
			Enabled:  cfg.ScoreThreshold.Enabled,
			MinScore: cfg.ScoreThreshold.MinScore,
		},
		SystemPrompt: cfg.SystemPrompt,
	}

	if cfg.SystemPromptPath != "" {
		data, err := os.ReadFile(cfg.SystemPromptPath)
		if err != nil {
			return Settings{}, fmt.Errorf("failed to read system prompt: %w", err)
		}
		s.SystemPrompt = strings.TrimSpace(string(data))
	}

	return s, s.Validate()
}

func (s Settings) Validate() error {
	if err := retrieval.ValidateK(s.K, s.MaxK); err != nil {
		return err
	}
	alpha := s.Alpha
	if err := retrieval.ValidateAlpha(&alpha); err != nil {
		return err
	}
	return s.ScoreThreshold.Validate()
}

// Set changes one setting by key, as typed in the chat REPL.
func (s *Settings) Set(key, value string) error {
	value = strings.TrimSpace(value)
	next := *s

	var err error
	switch key {
	case "semantic_namespace":
		next.SemanticNamespace = value
	case "self_query_namespace":
		next.SelfQueryNamespace = value
	case "hybrid_namespace":
		next.HybridNamespace = value
	case "k":
		next.K, err = strconv.Atoi(value)
	case "alpha":
		next.Alpha, err = strconv.ParseFloat(value, 64)
	case "direct_semantic":
		next.DirectSemantic, err = strconv.ParseBool(value)
	case "direct_self_query":
		next.DirectSelfQuery, err = strconv.ParseBool(value)
	case "direct_hybrid":
		next.DirectHybrid, err = strconv.ParseBool(value)
	case "direct_csv":
		next.DirectCSV, err = strconv.ParseBool(value)
	case "use_original_question":
		next.UseOriginalQuestion, err = strconv.ParseBool(value)
	case "score_threshold":
		next.ScoreThreshold.Enabled, err = strconv.ParseBool(value)
	case "min_score":
		next.ScoreThreshold.MinScore, err = strconv.ParseFloat(value, 64)
	case "system_prompt":
		next.SystemPrompt = value
	default:
		return fmt.Errorf("%w: unknown key %q", ErrInvalidSetting, key)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidSetting, key, err)
	}
	if err := next.Validate(); err != nil {
		return err
	}

	*s = next
	return nil
}

// Lines renders the settings as "key: value" lines.
func (s Settings) Lines() []string {
	return []string{
		"semantic_namespace: " + s.SemanticNamespace,
		"self_query_namespace: " + s.SelfQueryNamespace,
		"hybrid_namespace: " + s.HybridNamespace,
		fmt.Sprintf("k: %d (max %d)", s.K, s.MaxK),
		fmt.Sprintf("alpha: %g", s.Alpha),
		fmt.Sprintf("direct_semantic: %t", s.DirectSemantic),
		fmt.Sprintf("direct_self_query: %t", s.DirectSelfQuery),
		fmt.Sprintf("direct_hybrid: %t", s.DirectHybrid),
		fmt.Sprintf("direct_csv: %t", s.DirectCSV),
		fmt.Sprintf("use_original_question: %t", s.UseOriginalQuestion),
		fmt.Sprintf("score_threshold: %t", s.ScoreThreshold.Enabled),
		fmt.Sprintf("min_score: %g", s.ScoreThreshold.MinScore),
	}
}
