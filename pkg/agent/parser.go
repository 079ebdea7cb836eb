package agent

import (
	"regexp"
	"strings"
)

// FinalAnswerMarker introduces the final answer in LLM output.
const FinalAnswerMarker = "Final Answer:"

// DecisionParser turns one LLM completion into a Decision.
type DecisionParser interface {
	Parse(text string) (Decision, error)
}

var actionPattern = regexp.MustCompile(`(?s)Action\s*\d*\s*:(.*?)\nAction\s*\d*\s*Input\s*\d*\s*:[\s]*(.*)`)

// ReActParser reads the Thought/Action/Action Input/Final Answer format.
type ReActParser struct{}

func (ReActParser) Parse(text string) (Decision, error) {
	if idx := strings.LastIndex(text, FinalAnswerMarker); idx >= 0 {
		return Finish{
			Answer: strings.TrimSpace(text[idx+len(FinalAnswerMarker):]),
			Log:    text,
		}, nil
	}

	m := actionPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, &ParseError{Output: text}
	}

	input := strings.Trim(strings.Trim(m[2], " "), `"`)
	return Action{
		Tool:  strings.TrimSpace(m[1]),
		Input: input,
		Log:   text,
	}, nil
}
