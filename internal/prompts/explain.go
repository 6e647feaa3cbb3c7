package prompts

import "fmt"

// explainTemplate produces the giveInfo explanation. The explanation is
// constrained to the student's own notes so the agent never teaches
// material the student has not uploaded. Format verbs: objective, notes.
const explainTemplate = `Teach the following learning objective using ONLY the provided notes.
Do not introduce facts that are not in the notes. Keep the explanation clear and under 200 words.

Objective: %s

Notes:
%s`

// ExplainSystem is the system prompt for explanation generation.
const ExplainSystem = "You are a patient tutor who explains one objective at a time."

// Explain returns the interpolated explanation prompt.
func Explain(objective, notes string) string {
	return fmt.Sprintf(explainTemplate, objective, notes)
}
