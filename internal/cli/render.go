package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/cinder/storyboard/internal/model"
	"github.com/cinder/storyboard/internal/storyboard"
)

const narrationWidth = 56

// renderer prints storyboards and progress lines. Colours degrade to plain
// text when w is not a terminal.
type renderer struct {
	w io.Writer

	title   lipgloss.Style
	label   lipgloss.Style
	ok      lipgloss.Style
	bad     lipgloss.Style
	pending lipgloss.Style
	muted   lipgloss.Style
}

func newRenderer(w io.Writer) *renderer {
	r := lipgloss.NewRenderer(w)
	return &renderer{
		w:       w,
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		label:   r.NewStyle().Bold(true),
		ok:      r.NewStyle().Foreground(lipgloss.Color("42")),
		bad:     r.NewStyle().Foreground(lipgloss.Color("196")),
		pending: r.NewStyle().Foreground(lipgloss.Color("214")),
		muted:   r.NewStyle().Faint(true),
	}
}

// Progress is a storyboard.Listener that narrates transitions
func (r *renderer) Progress(snap model.Snapshot, ev storyboard.Event) {
	switch ev := ev.(type) {
	case storyboard.GenerationRequested:
		fmt.Fprintf(r.w, "%s generating %d frames (%s)\n", r.pending.Render("●"), snap.RequestedFrameCount, snap.Style)
	case storyboard.GenerationSucceeded:
		fmt.Fprintf(r.w, "%s storyboard %s ready, %d frames\n", r.ok.Render("✓"), snap.StoryID, len(snap.Frames))
	case storyboard.GenerationFailed:
		fmt.Fprintf(r.w, "%s generation failed: %s\n", r.bad.Render("✗"), snap.LastError)
	case storyboard.AnimationRequested:
		fmt.Fprintf(r.w, "%s animating frame %d\n", r.pending.Render("●"), ev.Index)
	case storyboard.AnimationSucceeded:
		fmt.Fprintf(r.w, "%s frame %d animated\n", r.ok.Render("✓"), ev.Index)
	case storyboard.AnimationFailed:
		msg := ""
		if f, ok := snap.Frame(ev.Index); ok {
			msg = f.Error
		}
		fmt.Fprintf(r.w, "%s frame %d failed: %s\n", r.bad.Render("✗"), ev.Index, msg)
	}
}

// Storyboard prints the frame table of snap
func (r *renderer) Storyboard(snap model.Snapshot) {
	fmt.Fprintln(r.w)
	fmt.Fprintf(r.w, "%s %s\n", r.title.Render("Storyboard"), snap.StoryID)
	fmt.Fprintf(r.w, "%s %s\n", r.label.Render("Prompt:"), snap.Prompt)
	fmt.Fprintf(r.w, "%s %s\n\n", r.label.Render("Style: "), snap.Style)

	fmt.Fprintf(r.w, "%s\n", r.label.Render(fmt.Sprintf("%3s  %-10s %-*s %s", "#", "STATUS", narrationWidth, "NARRATION", "VIDEO")))
	for _, f := range snap.Frames {
		detail := f.VideoURL
		if f.AnimationStatus == model.AnimationFailed {
			detail = f.Error
		}
		fmt.Fprintf(r.w, "%3d  %s %-*s %s\n",
			f.Index,
			r.status(f.AnimationStatus),
			narrationWidth, truncate(f.Narration, narrationWidth),
			r.muted.Render(detail))
	}

	counts := snap.CountByStatus()
	parts := make([]string, 0, 4)
	for _, s := range []model.AnimationStatus{model.AnimationAnimated, model.AnimationAnimating, model.AnimationFailed, model.AnimationStatic} {
		if counts[s] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[s], s))
		}
	}
	fmt.Fprintf(r.w, "\n%d frames: %s\n", len(snap.Frames), strings.Join(parts, ", "))
}

func (r *renderer) status(s model.AnimationStatus) string {
	text := fmt.Sprintf("%-10s", s)
	switch s {
	case model.AnimationAnimated:
		return r.ok.Render(text)
	case model.AnimationFailed:
		return r.bad.Render(text)
	case model.AnimationAnimating:
		return r.pending.Render(text)
	default:
		return text
	}
}

func truncate(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen-3]) + "..."
}
