// Package enhance turns a bare task title into an actionable description plus
// an ordered step breakdown, using an OpenAI-compatible chat completions
// endpoint. When the upstream call fails the caller is expected to use the
// deterministic Fallback instead of surfacing the error to the end user.
package enhance

import (
	"context"
	"fmt"
	"strings"

	"github.com/harmonyservices/todobot/pkg/todobot/store"
)

// Enhancement is the structured result attached to a task at creation time.
type Enhancement struct {
	Description string       `json:"enhancedDescription"`
	Steps       []store.Step `json:"steps"`
}

// Enhancer produces an Enhancement for a task title and optional description.
// Implementations return the upstream error as-is and never substitute
// fallback content themselves; that decision belongs to the caller.
type Enhancer interface {
	Enhance(ctx context.Context, title, description string) (Enhancement, error)
}

// Fallback returns the deterministic local enhancement used when the upstream
// service is unavailable: a templated description and three generic steps.
func Fallback(title, description string) Enhancement {
	desc := title + "."
	if description != "" {
		desc += " " + description
	}
	desc += " This task needs to be completed with attention to detail."
	return Enhancement{
		Description: desc,
		Steps: []store.Step{
			{Index: 1, Text: fmt.Sprintf("Plan and prepare for %s", title)},
			{Index: 2, Text: "Execute the main task"},
			{Index: 3, Text: "Review and confirm completion"},
		},
	}
}

// Format renders an enhancement as chat text: the description followed by the
// numbered steps.
func Format(e Enhancement) string {
	var b strings.Builder
	b.WriteString(e.Description)
	if len(e.Steps) > 0 {
		b.WriteString("\n\nSteps:")
		for _, step := range e.Steps {
			fmt.Fprintf(&b, "\n%d. %s", step.Index, step.Text)
		}
	}
	return b.String()
}
