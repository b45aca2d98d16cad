// Package render turns computed schedules into human-readable charts.
package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ganttforge/ganttforge/pkg/scheduler"
)

// Terminal color palette, adaptive for light and dark backgrounds.
var (
	colorBar      = lipgloss.AdaptiveColor{Light: "#3B82F6", Dark: "#60A5FA"}
	colorCritical = lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#F87171"}
	colorMuted    = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
	colorAccent   = lipgloss.AdaptiveColor{Light: "#10B981", Dark: "#34D399"}
)

// TextOptions configures the terminal renderer.
type TextOptions struct {
	// Width is the total chart width in cells. Values below the minimum
	// usable width are raised to it.
	Width int

	// Color enables ANSI styling. When false all output is plain text.
	Color bool
}

// TextRenderer renders a schedule as a terminal gantt chart.
type TextRenderer struct {
	width    int
	bar      lipgloss.Style
	critical lipgloss.Style
	label    lipgloss.Style
	axis     lipgloss.Style
	summary  lipgloss.Style
}

const minTextWidth = 40

// NewTextRenderer creates a terminal renderer.
func NewTextRenderer(opts TextOptions) *TextRenderer {
	width := opts.Width
	if width < minTextWidth {
		width = minTextWidth
	}

	r := &TextRenderer{width: width}
	if opts.Color {
		r.bar = lipgloss.NewStyle().Foreground(colorBar)
		r.critical = lipgloss.NewStyle().Bold(true).Foreground(colorCritical)
		r.label = lipgloss.NewStyle().Foreground(colorMuted)
		r.axis = lipgloss.NewStyle().Foreground(colorMuted)
		r.summary = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	} else {
		plain := lipgloss.NewStyle()
		r.bar, r.critical, r.label, r.axis, r.summary = plain, plain, plain, plain, plain
	}
	return r
}

// Render produces the gantt chart for a schedule.
func (r *TextRenderer) Render(res *scheduler.Result) string {
	if res == nil || res.Len() == 0 {
		return "(empty schedule)\n"
	}

	assignments := res.Assignments()
	sort.SliceStable(assignments, func(i, j int) bool {
		if assignments[i].Start != assignments[j].Start {
			return assignments[i].Start < assignments[j].Start
		}
		return assignments[i].ID < assignments[j].ID
	})

	onChain := make(map[string]bool)
	for _, id := range res.CriticalChain() {
		onChain[id] = true
	}

	labelWidth := 0
	for _, a := range assignments {
		if l := len(rowLabel(a)); l > labelWidth {
			labelWidth = l
		}
	}
	if labelWidth > 24 {
		labelWidth = 24
	}

	span := res.Makespan()
	barArea := r.width - labelWidth - 3
	if barArea < 10 {
		barArea = 10
	}
	scale := float64(barArea) / float64(span)

	var sb strings.Builder
	for _, a := range assignments {
		label := rowLabel(a)
		if len(label) > labelWidth {
			label = label[:labelWidth-1] + "…"
		}
		sb.WriteString(r.label.Render(fmt.Sprintf("%-*s", labelWidth, label)))
		sb.WriteString(" │ ")

		startCell := int(float64(a.Start) * scale)
		endCell := int(float64(a.End) * scale)

		sb.WriteString(strings.Repeat(" ", startCell))
		style := r.bar
		if onChain[a.ID] {
			style = r.critical
		}
		if a.End == a.Start {
			// Milestone: no extent on the time axis
			sb.WriteString(style.Render("◆"))
		} else {
			cells := endCell - startCell
			if cells < 1 {
				cells = 1
			}
			sb.WriteString(style.Render(strings.Repeat("█", cells)))
		}
		sb.WriteString("\n")
	}

	sb.WriteString(r.renderUtilization(res, labelWidth, barArea, scale))
	sb.WriteString(r.renderAxis(span, labelWidth, barArea))
	sb.WriteString(r.summary.Render(fmt.Sprintf(
		"makespan %d · capacity %d · peak demand %d", span, res.Capacity(), res.PeakUtilization())))
	sb.WriteString("\n")

	return sb.String()
}

// renderUtilization draws a per-instant resource usage row under the bars.
func (r *TextRenderer) renderUtilization(res *scheduler.Result, labelWidth, barArea int, scale float64) string {
	var sb strings.Builder
	sb.WriteString(r.label.Render(fmt.Sprintf("%-*s", labelWidth, "usage")))
	sb.WriteString(" │ ")

	capacity := res.Capacity()
	cells := make([]rune, barArea)
	for i := range cells {
		cells[i] = ' '
	}
	for t := 0; t < res.Makespan(); t++ {
		cell := int(float64(t) * scale)
		if cell >= barArea {
			cell = barArea - 1
		}
		cells[cell] = usageRune(res.UtilizationAt(t), capacity)
	}
	sb.WriteString(r.axis.Render(string(cells)))
	sb.WriteString("\n")
	return sb.String()
}

// renderAxis draws tick marks for the start and end of the horizon.
func (r *TextRenderer) renderAxis(span, labelWidth, barArea int) string {
	end := fmt.Sprintf("%d", span)
	pad := barArea - 1 - len(end)
	if pad < 0 {
		pad = 0
	}
	line := fmt.Sprintf("%-*s   0%s%s\n", labelWidth, "", strings.Repeat(" ", pad), end)
	return r.axis.Render(strings.TrimSuffix(line, "\n")) + "\n"
}

func usageRune(used, capacity int) rune {
	if capacity <= 0 || used <= 0 {
		return '·'
	}
	switch {
	case used >= capacity:
		return '█'
	case used*2 >= capacity:
		return '▓'
	default:
		return '░'
	}
}

func rowLabel(a scheduler.Assignment) string {
	if a.Name != "" && a.Name != a.ID {
		return fmt.Sprintf("%s (%s)", a.ID, a.Name)
	}
	return a.ID
}
