package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ganttforge/ganttforge/pkg/scheduler"
)

// SVGOptions configures the SVG renderer.
type SVGOptions struct {
	// Width is the drawing width in pixels.
	Width int

	// Title is the chart heading. Empty omits the heading.
	Title string
}

// SVGRenderer renders a schedule as a standalone SVG document.
type SVGRenderer struct {
	width int
	title string
}

const (
	svgRowHeight   = 28
	svgRowGap      = 6
	svgMarginX     = 140
	svgMarginY     = 48
	svgFooter      = 40
	svgMinWidth    = 320
	svgBarFill     = "#60a5fa"
	svgChainFill   = "#f87171"
	svgMilestone   = "#fbbf24"
	svgTextColor   = "#111827"
	svgGridColor   = "#e5e7eb"
	svgMutedColor  = "#6b7280"
)

// NewSVGRenderer creates an SVG renderer.
func NewSVGRenderer(opts SVGOptions) *SVGRenderer {
	width := opts.Width
	if width < svgMinWidth {
		width = svgMinWidth
	}
	return &SVGRenderer{width: width, title: opts.Title}
}

// Render produces an SVG document for a schedule.
func (r *SVGRenderer) Render(res *scheduler.Result) string {
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

	span := res.Makespan()
	if span < 1 {
		span = 1
	}
	plotWidth := float64(r.width - svgMarginX - 20)
	unit := plotWidth / float64(span)

	height := svgMarginY + len(assignments)*(svgRowHeight+svgRowGap) + svgFooter

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d" font-family="sans-serif" font-size="12">`+"\n",
		r.width, height, r.width, height))
	sb.WriteString(`<rect width="100%" height="100%" fill="white"/>` + "\n")

	if r.title != "" {
		sb.WriteString(fmt.Sprintf(
			`<text x="%d" y="24" font-size="16" font-weight="bold" fill="%s">%s</text>`+"\n",
			svgMarginX, svgTextColor, escape(r.title)))
	}

	// Vertical grid lines at each time unit, thinned for long horizons
	step := 1
	for span/step > 40 {
		step *= 2
	}
	for t := 0; t <= span; t += step {
		x := float64(svgMarginX) + float64(t)*unit
		sb.WriteString(fmt.Sprintf(
			`<line x1="%.1f" y1="%d" x2="%.1f" y2="%d" stroke="%s"/>`+"\n",
			x, svgMarginY, x, height-svgFooter, svgGridColor))
		sb.WriteString(fmt.Sprintf(
			`<text x="%.1f" y="%d" text-anchor="middle" fill="%s">%d</text>`+"\n",
			x, height-svgFooter+16, svgMutedColor, t))
	}

	for i, a := range assignments {
		y := svgMarginY + i*(svgRowHeight+svgRowGap)

		sb.WriteString(fmt.Sprintf(
			`<text x="%d" y="%d" text-anchor="end" fill="%s">%s</text>`+"\n",
			svgMarginX-8, y+svgRowHeight/2+4, svgTextColor, escape(rowLabel(a))))

		x := float64(svgMarginX) + float64(a.Start)*unit
		if a.End == a.Start {
			// Milestone marker: diamond centered on the instant
			cy := float64(y + svgRowHeight/2)
			sb.WriteString(fmt.Sprintf(
				`<path d="M %.1f %.1f l 7 7 l -7 7 l -7 -7 z" fill="%s"/>`+"\n",
				x, cy-7, svgMilestone))
			continue
		}

		fill := svgBarFill
		if onChain[a.ID] {
			fill = svgChainFill
		}
		w := float64(a.End-a.Start) * unit
		sb.WriteString(fmt.Sprintf(
			`<rect x="%.1f" y="%d" width="%.1f" height="%d" rx="3" fill="%s"/>`+"\n",
			x, y, w, svgRowHeight, fill))
		sb.WriteString(fmt.Sprintf(
			`<text x="%.1f" y="%d" fill="white">%d</text>`+"\n",
			x+6, y+svgRowHeight/2+4, a.NumResources))
	}

	sb.WriteString(fmt.Sprintf(
		`<text x="%d" y="%d" fill="%s">makespan %d · capacity %d · peak demand %d</text>`+"\n",
		svgMarginX, height-8, svgMutedColor, res.Makespan(), res.Capacity(), res.PeakUtilization()))

	sb.WriteString("</svg>\n")
	return sb.String()
}

func escape(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
	)
	return replacer.Replace(s)
}
