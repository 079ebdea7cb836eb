package tabular

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/positive-doo/multitool/pkg/llms"
	"github.com/positive-doo/multitool/pkg/oracle"
)

// Oracle answers a question about a dataset.
type Oracle interface {
	Answer(ctx context.Context, ds *Dataset, question string) (string, error)
}

// Adapter is the structured-data tool body: without a dataset it returns
// NoDatasetMessage instead of calling the oracle.
type Adapter struct {
	Oracle           Oracle
	NoDatasetMessage string
}

func (a *Adapter) Ask(ctx context.Context, ds *Dataset, question string) (string, error) {
	if ds == nil {
		return a.NoDatasetMessage, nil
	}
	return a.Oracle.Answer(ctx, ds, question)
}

// SQLOracle lets the LLM write SQL against the dataset table, retrying on
// SQL errors, then phrases the answer from the result rows.
type SQLOracle struct {
	LLM           llms.LLMProvider
	MaxAttempts   int
	QueryTimeout  time.Duration
	SampleRows    int
	MaxResultRows int
}

var sqlPrompt = template.Must(template.New("sql").Parse(`You are working with a SQLite table named {{.Table}}.
{{.Schema}}

First rows:
{{.Sample}}
Write one SQLite SELECT statement that answers the question. Compare text case-insensitively (use lower()).
Reply with the SQL only, no explanation.
{{range .Failures}}
A previous attempt failed.
SQL: {{.SQL}}
Error: {{.Err}}
{{end}}
Question: {{.Question}}`))

var answerPrompt = template.Must(template.New("answer").Parse(`Question: {{.Question}}

The query
{{.SQL}}
returned:
{{.Result}}
Answer the question briefly using only this result.`))

var codeFence = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

type failure struct {
	SQL string
	Err string
}

func (o *SQLOracle) Answer(ctx context.Context, ds *Dataset, question string) (string, error) {
	attempts := max(o.MaxAttempts, 1)
	var failures []failure

	for attempt := 1; attempt <= attempts; attempt++ {
		statement, err := o.writeSQL(ctx, ds, question, failures)
		if err != nil {
			return "", err
		}

		columns, rows, err := o.run(ctx, ds, statement)
		if err != nil {
			slog.Debug("Tabular query failed", "attempt", attempt, "sql", statement, "error", err)
			failures = append(failures, failure{SQL: statement, Err: err.Error()})
			continue
		}

		return o.phrase(ctx, question, statement, columns, rows)
	}

	last := failures[len(failures)-1]
	return "", oracle.Wrap("tabular", "answer",
		fmt.Errorf("no valid query after %d attempts: %s", attempts, last.Err))
}

func (o *SQLOracle) writeSQL(ctx context.Context, ds *Dataset, question string, failures []failure) (string, error) {
	var prompt bytes.Buffer
	err := sqlPrompt.Execute(&prompt, map[string]any{
		"Table":    TableName,
		"Schema":   ds.Schema(),
		"Sample":   formatTable(ds.Columns, ds.Sample(o.SampleRows)),
		"Failures": failures,
		"Question": question,
	})
	if err != nil {
		return "", fmt.Errorf("render sql prompt: %w", err)
	}

	out, _, err := o.LLM.Generate(ctx, []llms.Message{{Role: llms.RoleUser, Content: prompt.String()}}, llms.WithTemperature(0))
	if err != nil {
		return "", fmt.Errorf("write sql: %w", err)
	}
	return cleanSQL(out), nil
}

func (o *SQLOracle) run(ctx context.Context, ds *Dataset, statement string) ([]string, [][]string, error) {
	if o.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.QueryTimeout)
		defer cancel()
	}
	return ds.Query(ctx, statement, o.MaxResultRows)
}

func (o *SQLOracle) phrase(ctx context.Context, question, statement string, columns []string, rows [][]string) (string, error) {
	result := formatTable(columns, rows)
	if len(rows) == 0 {
		result = "(no rows)"
	}

	var prompt bytes.Buffer
	err := answerPrompt.Execute(&prompt, map[string]any{
		"Question": question,
		"SQL":      statement,
		"Result":   result,
	})
	if err != nil {
		return "", fmt.Errorf("render answer prompt: %w", err)
	}

	out, _, err := o.LLM.Generate(ctx, []llms.Message{{Role: llms.RoleUser, Content: prompt.String()}}, llms.WithTemperature(0))
	if err != nil {
		return "", fmt.Errorf("phrase answer: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func cleanSQL(out string) string {
	out = strings.TrimSpace(out)
	if m := codeFence.FindStringSubmatch(out); m != nil {
		out = m[1]
	}
	return strings.TrimSpace(out)
}

func formatTable(columns []string, rows [][]string) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(columns)
	_ = w.WriteAll(rows)
	return buf.String()
}
