package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"

	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{"  _____     _                   ", "#38bdf8"},
	{" |_   _| __(_) __ _  __ _  ___  ", "#22d3ee"},
	{"   | || '__| |/ _` |/ _` |/ _ \\ ", "#2dd4bf"},
	{"   | || |  | | (_| | (_| |  __/ ", "#34d399"},
	{"   |_||_|  |_|\\__,_|\\__, |\\___| ", "#4ade80"},
	{"                    |___/       ", "#a3e635"},
}

// PrintBanner writes the ASCII art banner followed by the version line.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, termenv.String("   claims triage v"+version).Faint())
	fmt.Fprintln(w)
}

// OutcomeLabel colors a decision outcome for terminal output.
// Unknown outcomes are returned uncolored.
func OutcomeLabel(o domain.Outcome) string {
	p := termenv.ColorProfile()
	s := termenv.String(string(o)).Bold()
	switch o {
	case domain.OutcomeAutoApprove:
		return s.Foreground(p.Color("#22c55e")).String()
	case domain.OutcomeDeny:
		return s.Foreground(p.Color("#ef4444")).String()
	case domain.OutcomeManualReview:
		return s.Foreground(p.Color("#eab308")).String()
	default:
		return string(o)
	}
}
