package internal

import "strings"

// plan.go is the lower-volume event track riding the same transport as
// patches: multi-step agent plan execution and tool-call progress. It updates
// observable state separate from the tree.

// StepStatus is the state of a plan step or subtask.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepDone    StepStatus = "done"
)

// PlanSubtask is one unit of work inside a step.
type PlanSubtask struct {
	ID     string     `json:"id"`
	Title  string     `json:"title,omitempty"`
	Status StepStatus `json:"status"`
}

// PlanStep is one step of a multi-step agent plan.
type PlanStep struct {
	ID       string        `json:"id"`
	Title    string        `json:"title,omitempty"`
	Status   StepStatus    `json:"status"`
	Subtasks []PlanSubtask `json:"subtasks,omitempty"`
}

// PlanState is the observable projection of plan execution.
type PlanState struct {
	PlanID       string     `json:"planId,omitempty"`
	Steps        []PlanStep `json:"steps,omitempty"`
	CurrentLevel int        `json:"currentLevel,omitempty"`
	Done         bool       `json:"done,omitempty"`
}

// clonePlan returns an independent copy so observers holding the previous
// state never see in-place mutation.
func clonePlan(state *PlanState) *PlanState {
	if state == nil {
		return &PlanState{}
	}
	clone := *state
	clone.Steps = make([]PlanStep, len(state.Steps))
	for i, step := range state.Steps {
		clone.Steps[i] = step
		clone.Steps[i].Subtasks = append([]PlanSubtask(nil), step.Subtasks...)
	}
	return &clone
}

// ApplyPlanEvent folds one plan-track control event into the state and
// returns the new state plus whether anything changed. Unknown step or
// subtask ids are ignored rather than invented: the plan-created event is the
// source of structure.
func ApplyPlanEvent(current *PlanState, event *ControlEvent) (*PlanState, bool) {
	switch event.Type {
	case ControlPlanCreated:
		return planFromData(event.Data), true

	case ControlStepStarted, ControlStepDone:
		stepID, _ := event.Data["stepId"].(string)
		if stepID == "" {
			return current, false
		}
		next := clonePlan(current)
		status := StepRunning
		if event.Type == ControlStepDone {
			status = StepDone
		}
		for i := range next.Steps {
			if next.Steps[i].ID == stepID {
				next.Steps[i].Status = status
				return next, true
			}
		}
		return current, false

	case ControlSubtaskStarted, ControlSubtaskDone:
		stepID, _ := event.Data["stepId"].(string)
		subtaskID, _ := event.Data["subtaskId"].(string)
		if subtaskID == "" {
			return current, false
		}
		next := clonePlan(current)
		status := StepRunning
		if event.Type == ControlSubtaskDone {
			status = StepDone
		}
		for i := range next.Steps {
			if stepID != "" && next.Steps[i].ID != stepID {
				continue
			}
			for j := range next.Steps[i].Subtasks {
				if next.Steps[i].Subtasks[j].ID == subtaskID {
					next.Steps[i].Subtasks[j].Status = status
					return next, true
				}
			}
		}
		return current, false

	case ControlLevelStarted, ControlLevelCompleted:
		level := 0
		if n, ok := event.Data["level"].(float64); ok {
			level = int(n)
		}
		next := clonePlan(current)
		next.CurrentLevel = level
		return next, true

	case ControlOrchestrationDone:
		next := clonePlan(current)
		next.Done = true
		return next, true

	default:
		return current, false
	}
}

func planFromData(data map[string]interface{}) *PlanState {
	state := &PlanState{}
	if id, ok := data["planId"].(string); ok {
		state.PlanID = id
	}
	var steps []PlanStep
	if err := reencode(data["steps"], &steps); err == nil {
		state.Steps = steps
	}
	for i := range state.Steps {
		if state.Steps[i].Status == "" {
			state.Steps[i].Status = StepPending
		}
		for j := range state.Steps[i].Subtasks {
			if state.Steps[i].Subtasks[j].Status == "" {
				state.Steps[i].Subtasks[j].Status = StepPending
			}
		}
	}
	return state
}

// PhaseClassifier infers a research phase from free-text tool messages. The
// inference is heuristic substring matching, so it lives behind this
// interface and the keyword table can evolve without touching the
// reconciliation core.
type PhaseClassifier interface {
	Classify(message string) (phase string, ok bool)
}

// Research phases reported by the keyword classifier.
const (
	PhasePlanning  = "planning"
	PhaseSearching = "searching"
	PhaseReading   = "reading"
	PhaseSynthesis = "synthesis"
)

// KeywordPhaseClassifier matches known keywords in tool-progress messages.
type KeywordPhaseClassifier struct {
	table map[string]string
}

// NewKeywordPhaseClassifier creates a classifier with the default table.
func NewKeywordPhaseClassifier() *KeywordPhaseClassifier {
	return &KeywordPhaseClassifier{
		table: map[string]string{
			"planning":     PhasePlanning,
			"plan":         PhasePlanning,
			"searching":    PhaseSearching,
			"querying":     PhaseSearching,
			"looking up":   PhaseSearching,
			"reading":      PhaseReading,
			"fetching":     PhaseReading,
			"analyzing":    PhaseReading,
			"synthesizing": PhaseSynthesis,
			"writing":      PhaseSynthesis,
			"drafting":     PhaseSynthesis,
			"summarizing":  PhaseSynthesis,
		},
	}
}

// Classify returns the phase matched by the first known keyword in message.
func (c *KeywordPhaseClassifier) Classify(message string) (string, bool) {
	lower := strings.ToLower(message)
	// Later phases win when several keywords appear: check synthesis first.
	order := []string{PhaseSynthesis, PhaseReading, PhaseSearching, PhasePlanning}
	for _, phase := range order {
		for keyword, mapped := range c.table {
			if mapped == phase && strings.Contains(lower, keyword) {
				return phase, true
			}
		}
	}
	return "", false
}

// InferResearchPhase projects the current phase from the newest progress
// event whose message the classifier recognizes.
func InferResearchPhase(events []ProgressEvent, classifier PhaseClassifier) string {
	for i := len(events) - 1; i >= 0; i-- {
		if phase, ok := classifier.Classify(events[i].Message); ok {
			return phase
		}
	}
	return ""
}
