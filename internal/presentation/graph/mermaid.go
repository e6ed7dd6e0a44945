// Package graph renders the triage workflow as a Mermaid flowchart.
package graph

import (
	"fmt"
	"strings"
	"time"

	"github.com/stephen-chu/insurance-claims-triage/pkg/delegation"
	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
)

// Fixed node IDs of the workflow.
const (
	NodeClaim     = "claim"
	NodeSynthesis = "synthesis"
	NodeReview    = "review"
	NodeApproved  = "approved"
	NodeEdited    = "approved_edited"
	NodeRejected  = "rejected"
)

// GenerateMermaid produces a Mermaid flowchart of the workflow for the given tasks:
// fan-out from the claim to every task, fan-in at synthesis, then the review gate.
// Shapes: claim ((circle)), tasks [[subroutine]], review [/input/], outcomes [rectangle].
// When s is non-nil its progress is overlaid: completed steps are styled
// visited, failed tasks failed, and the step the session waits at current.
func GenerateMermaid(specs []delegation.TaskSpec, defaultTimeout time.Duration, s *domain.Session) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	fmt.Fprintf(&sb, "    %s((\"claim\"))\n", NodeClaim)

	for _, spec := range specs {
		id := sanitizeMermaidID(spec.Name)
		timeout := spec.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		label := spec.Name
		if timeout > 0 {
			label = fmt.Sprintf("%s <br/> ⏱️ %s", spec.Name, timeout)
		}
		fmt.Fprintf(&sb, "    %s[[\"%s\"]]\n", id, label)
		fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", NodeClaim, spec.Kind, id)
		fmt.Fprintf(&sb, "    %s --> %s\n", id, NodeSynthesis)
	}

	fmt.Fprintf(&sb, "    %s[\"synthesis\"]\n", NodeSynthesis)
	fmt.Fprintf(&sb, "    %s[/\"review\"/]\n", NodeReview)
	fmt.Fprintf(&sb, "    %s --> %s\n", NodeSynthesis, NodeReview)
	fmt.Fprintf(&sb, "    %s -- \"approve\" --> %s[\"approved\"]\n", NodeReview, NodeApproved)
	fmt.Fprintf(&sb, "    %s -- \"edit\" --> %s[\"approved-edited\"]\n", NodeReview, NodeEdited)
	fmt.Fprintf(&sb, "    %s -- \"reject\" --> %s[\"rejected\"]\n", NodeReview, NodeRejected)
	fmt.Fprintf(&sb, "    %s -. \"re-intake\" .-> %s\n", NodeRejected, NodeClaim)

	if s != nil {
		writeOverlay(&sb, specs, s)
	}
	return sb.String()
}

func writeOverlay(sb *strings.Builder, specs []delegation.TaskSpec, s *domain.Session) {
	sb.WriteString("\n    %% Overlay Styles\n")
	// Force black text (color:#000) for contrast on light and dark themes.
	sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
	sb.WriteString("    classDef failed fill:#ffcdd2,stroke:#b71c1c,stroke-width:2px,color:#000;\n")
	sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

	fmt.Fprintf(sb, "    class %s visited;\n", NodeClaim)
	for _, spec := range specs {
		res, ok := s.Results[spec.Name]
		if !ok {
			continue
		}
		class := "visited"
		if res.Failed() {
			class = "failed"
		}
		fmt.Fprintf(sb, "    class %s %s;\n", sanitizeMermaidID(spec.Name), class)
	}

	switch s.Status {
	case domain.StatusRunning:
		fmt.Fprintf(sb, "    class %s current;\n", NodeSynthesis)
	case domain.StatusAwaitingReview:
		fmt.Fprintf(sb, "    class %s visited;\n", NodeSynthesis)
		fmt.Fprintf(sb, "    class %s current;\n", NodeReview)
	case domain.StatusResumingApproved, domain.StatusResumingEdited, domain.StatusRejected:
		fmt.Fprintf(sb, "    class %s,%s visited;\n", NodeSynthesis, NodeReview)
		fmt.Fprintf(sb, "    class %s current;\n", outcomeNode(s.Status))
	}
}

func outcomeNode(status domain.Status) string {
	switch status {
	case domain.StatusResumingEdited:
		return NodeEdited
	case domain.StatusRejected:
		return NodeRejected
	default:
		return NodeApproved
	}
}

func sanitizeMermaidID(id string) string {
	return strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_").Replace(id)
}
