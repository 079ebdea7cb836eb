package agent

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/positive-doo/multitool/pkg/memory"
	"github.com/positive-doo/multitool/pkg/tool"
)

// DefaultTemplate is the ReAct instruction prompt.
const DefaultTemplate = `Answer the following questions as best you can. You have access to the following tools:
{{.Tools}}

Only answer questions using the tools above. If you can't use a tool to answer a question, say "I don't know".
Use the following format:

Question: the input question you must answer
Thought: you should always think about what to do
Action: the action to take, should be one of [{{.ToolNames}}]
Action Input: the input to the action
Observation: the result of the action
... (this Thought/Action/Action Input/Observation can repeat multiple times, if necessary)
Thought: I now know the final answer
Final Answer: the final answer to the original input question{{if .AnswerLanguage}}; ALWAYS write in {{.AnswerLanguage}} language{{end}}
{{if .History}}
Previous conversation:
{{.History}}
{{end}}
Begin!

Question: {{.Input}}
{{.Scratchpad}}`

// PromptData is what a template can reference.
type PromptData struct {
	Tools          string
	ToolNames      string
	History        string
	Input          string
	Scratchpad     string
	AnswerLanguage string
}

type Prompt struct {
	tmpl           *template.Template
	answerLanguage string
}

func NewPrompt(text, answerLanguage string) (*Prompt, error) {
	if text == "" {
		text = DefaultTemplate
	}
	tmpl, err := template.New("react").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("invalid prompt template: %w", err)
	}
	return &Prompt{tmpl: tmpl, answerLanguage: answerLanguage}, nil
}

// LoadPrompt reads the template from path, or uses DefaultTemplate when path is empty.
func LoadPrompt(path, answerLanguage string) (*Prompt, error) {
	if path == "" {
		return NewPrompt("", answerLanguage)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt template: %w", err)
	}
	return NewPrompt(string(data), answerLanguage)
}

func (p *Prompt) Render(tools []tool.Tool, history []memory.Exchange, input string, steps []Step) (string, error) {
	descs := make([]string, len(tools))
	names := make([]string, len(tools))
	for i, t := range tools {
		descs[i] = t.Name() + ": " + t.Description()
		names[i] = t.Name()
	}

	var buf bytes.Buffer
	err := p.tmpl.Execute(&buf, PromptData{
		Tools:          strings.Join(descs, "\n"),
		ToolNames:      strings.Join(names, ", "),
		History:        memory.Format(history),
		Input:          input,
		Scratchpad:     Scratchpad(steps),
		AnswerLanguage: p.answerLanguage,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}

// Scratchpad renders prior steps so the LLM continues after "Thought: ".
func Scratchpad(steps []Step) string {
	var sb strings.Builder
	for _, s := range steps {
		sb.WriteString(s.Action.Log)
		sb.WriteString("\nObservation: ")
		sb.WriteString(s.Observation)
		sb.WriteString("\nThought: ")
	}
	return sb.String()
}
