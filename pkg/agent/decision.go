package agent

// Decision is what the LLM asked for in one cycle: an Action or a Finish.
type Decision interface {
	decision()
}

// Action invokes a tool with Input. Log is the raw LLM text that produced it.
type Action struct {
	Tool  string
	Input string
	Log   string
}

// Finish ends the turn with Answer.
type Finish struct {
	Answer string
	Log    string
}

func (Action) decision() {}
func (Finish) decision() {}

// Step is one executed action and the observation it produced.
type Step struct {
	Action      Action
	Observation string
}
