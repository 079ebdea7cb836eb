package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"text/template"

	"github.com/invopop/jsonschema"

	"github.com/positive-doo/multitool/pkg/embedders"
	"github.com/positive-doo/multitool/pkg/llms"
	"github.com/positive-doo/multitool/pkg/vector"
)

// AttributeInfo describes one filterable metadata field.
type AttributeInfo struct {
	Name        string
	Description string
	Type        string
}

// DefaultAttributes is the metadata schema of the indexed corpus.
var DefaultAttributes = []AttributeInfo{
	{Name: "title", Description: "The topic of the document", Type: "string"},
	{Name: "keyword", Description: "Search words for the document", Type: "string"},
	{Name: "text", Description: "The content of the document", Type: "string"},
	{Name: "source", Description: "The source of the document", Type: "string"},
}

// Comparators accepted in a structured query.
var Comparators = []string{"eq", "ne", "gt", "gte", "lt", "lte", "in", "nin"}

// StructuredQuery is what the LLM produces for a question.
type StructuredQuery struct {
	Query    string       `json:"query" jsonschema:"description=Text to compare to document contents; empty when the question is only a filter"`
	Operator string       `json:"operator" jsonschema:"enum=and,enum=or,description=How filter comparisons are combined"`
	Filter   []Comparison `json:"filter" jsonschema:"description=Metadata comparisons; empty when no filter applies"`
}

// Comparison is a single attribute condition. List values for in/nin are
// comma separated.
type Comparison struct {
	Attribute  string `json:"attribute" jsonschema:"description=Attribute name"`
	Comparator string `json:"comparator" jsonschema:"enum=eq,enum=ne,enum=gt,enum=gte,enum=lt,enum=lte,enum=in,enum=nin"`
	Value      string `json:"value"`
}

var structuredQuerySchema = func() map[string]interface{} {
	r := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	data, err := json.Marshal(r.Reflect(&StructuredQuery{}))
	if err != nil {
		panic(fmt.Sprintf("structured query schema: %v", err))
	}
	var schema map[string]interface{}
	if err := json.Unmarshal(data, &schema); err != nil {
		panic(fmt.Sprintf("structured query schema: %v", err))
	}
	delete(schema, "$schema")
	delete(schema, "$id")
	return schema
}()

// StructuredQuerySchema returns the JSON schema sent to the LLM.
func StructuredQuerySchema() map[string]interface{} {
	return structuredQuerySchema
}

var selfQueryPrompt = template.Must(template.New("selfquery").Parse(`Your goal is to structure the user's query to match the request schema below.

The query string should contain only text that is expected to match the contents of documents. Any conditions in the filter should not be mentioned in the query as well.
A filter compares an attribute with a value using one of these comparators: {{.Comparators}}.
Combine several comparisons with the operator "and" or "or". Use only the attributes listed below. If no filter applies, return an empty filter list.

Data source contents: {{.Contents}}

Attributes:
{{range .Attributes}}- {{.Name}} ({{.Type}}): {{.Description}}
{{end}}
User query: {{.Question}}`))

// SelfQuery translates the question into a metadata filter plus residual
// query with one LLM call, then runs a filtered dense query.
type SelfQuery struct {
	LLM              llms.LLMProvider
	Embedder         embedders.Embedder
	Index            vector.Index
	Attributes       []AttributeInfo
	DocumentContents string
	Policy           ScorePolicy
	MaxK             int
}

func (s *SelfQuery) attributes() []AttributeInfo {
	if len(s.Attributes) == 0 {
		return DefaultAttributes
	}
	return s.Attributes
}

func (s *SelfQuery) Retrieve(ctx context.Context, req Request) ([]Passage, error) {
	if err := ValidateK(req.K, s.MaxK); err != nil {
		return nil, err
	}

	sq, err := s.Translate(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	filter, err := BuildFilter(sq, s.attributes())
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(sq.Query)
	if text == "" {
		text = req.Query
	}

	slog.Debug("Self-query translation", "query", text, "filter", filter)

	dense, err := s.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	return query(ctx, s.Index, s.Policy, vector.Query{
		Namespace: req.Namespace,
		TopK:      req.K,
		Dense:     dense,
		Filter:    filter,
	})
}

// Translate asks the LLM for a StructuredQuery.
func (s *SelfQuery) Translate(ctx context.Context, question string) (*StructuredQuery, error) {
	var prompt bytes.Buffer
	err := selfQueryPrompt.Execute(&prompt, map[string]any{
		"Comparators": strings.Join(Comparators, ", "),
		"Contents":    s.DocumentContents,
		"Attributes":  s.attributes(),
		"Question":    question,
	})
	if err != nil {
		return nil, fmt.Errorf("render self-query prompt: %w", err)
	}

	out, _, err := s.LLM.GenerateStructured(ctx,
		[]llms.Message{{Role: llms.RoleUser, Content: prompt.String()}},
		&llms.StructuredOutputConfig{Format: "json", Name: "structured_query", Schema: StructuredQuerySchema()},
		llms.WithTemperature(0))
	if err != nil {
		return nil, fmt.Errorf("translate query: %w", err)
	}

	var sq StructuredQuery
	if err := json.Unmarshal([]byte(out), &sq); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTranslation, err)
	}
	return &sq, nil
}

// BuildFilter validates sq against attrs and converts it to the Pinecone
// filter language. It returns nil when sq has no comparisons.
func BuildFilter(sq *StructuredQuery, attrs []AttributeInfo) (map[string]any, error) {
	operator := strings.ToLower(strings.TrimSpace(sq.Operator))
	if operator == "" {
		operator = "and"
	}
	if operator != "and" && operator != "or" {
		return nil, fmt.Errorf("%w: unknown operator %q", ErrTranslation, sq.Operator)
	}

	clauses := make([]any, 0, len(sq.Filter))
	for _, c := range sq.Filter {
		if !slices.ContainsFunc(attrs, func(a AttributeInfo) bool { return a.Name == c.Attribute }) {
			return nil, fmt.Errorf("%w: unknown attribute %q", ErrTranslation, c.Attribute)
		}
		comparator := strings.ToLower(c.Comparator)
		if !slices.Contains(Comparators, comparator) {
			return nil, fmt.Errorf("%w: unknown comparator %q", ErrTranslation, c.Comparator)
		}
		clauses = append(clauses, map[string]any{
			c.Attribute: map[string]any{"$" + comparator: filterValue(comparator, c.Value)},
		})
	}

	switch len(clauses) {
	case 0:
		return nil, nil
	case 1:
		return clauses[0].(map[string]any), nil
	default:
		return map[string]any{"$" + operator: clauses}, nil
	}
}

func filterValue(comparator, value string) any {
	switch comparator {
	case "in", "nin":
		parts := strings.Split(value, ",")
		list := make([]any, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				list = append(list, p)
			}
		}
		return list
	case "gt", "gte", "lt", "lte":
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return value
}
