package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/oshokin/drowsy-alarm/internal/domain/detection"
)

const defaultWidth = 80

// Renderer formats snapshots with tier colors.
type Renderer struct {
	width int

	title  lipgloss.Style
	muted  lipgloss.Style
	value  lipgloss.Style
	card   lipgloss.Style
	tiers  map[detection.StatusTier]lipgloss.Style
	alarm  lipgloss.Style
	notice lipgloss.Style
}

// NewRenderer creates a renderer for w. Colors are dropped when w is not a terminal.
func NewRenderer(w io.Writer) *Renderer {
	r := lipgloss.NewRenderer(w)

	width := defaultWidth

	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols > 20 {
			width = cols
		}
	}

	tier := func(color string) lipgloss.Style {
		return r.NewStyle().Foreground(lipgloss.Color(color)).Bold(true)
	}

	return &Renderer{
		width: width,
		title: r.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true),
		muted: r.NewStyle().Foreground(lipgloss.Color("#8C8C8C")),
		value: r.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true),
		card: r.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A")),
		tiers: map[detection.StatusTier]lipgloss.Style{
			detection.TierStarting:  tier("#8C8C8C"),
			detection.TierSearching: tier("#C89A3A"),
			detection.TierAlert:     tier("#52C41A"),
			detection.TierHeavy:     tier("#FAAD14"),
			detection.TierDrowsy:    tier("#FF4D4F"),
			detection.TierError:     tier("#FF4D4F"),
		},
		alarm:  r.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#CF1322")).Bold(true).Padding(0, 1),
		notice: r.NewStyle().Foreground(lipgloss.Color("#FAAD14")),
	}
}

// Line renders a one-line summary of the snapshot.
func (r *Renderer) Line(s *detection.Snapshot) string {
	parts := []string{
		r.muted.Render(s.UpdatedAt.Format("15:04:05")),
		r.tierStyle(s.Tier).Render(s.Status),
	}

	if s.State != detection.StateSearching || s.EAR > 0 {
		parts = append(parts,
			r.muted.Render("EAR")+" "+r.value.Render(fmt.Sprintf("%.3f", s.EAR)),
			r.muted.Render("score")+" "+r.value.Render(fmt.Sprintf("%.0f", s.DrowsyScore)))
	}

	if s.AlarmActive {
		parts = append(parts, r.alarm.Render("ALARM"))
	}

	if s.Calibrating {
		parts = append(parts, r.notice.Render(fmt.Sprintf("calibrating (%d)", s.Calibration.Count)))
	}

	if s.Message != "" {
		parts = append(parts, r.muted.Render(runewidth.Truncate(s.Message, r.width/3, "...")))
	}

	return strings.Join(parts, "  ")
}

// Panel renders the full snapshot as a bordered card.
func (r *Renderer) Panel(s *detection.Snapshot) string {
	var b strings.Builder

	b.WriteString(r.title.Render("Drowsiness monitor"))
	b.WriteString("\n")
	b.WriteString(r.tierStyle(s.Tier).Render(s.Status))
	b.WriteString("\n\n")

	row := func(label, value string) {
		b.WriteString(r.muted.Render(runewidth.FillRight(label, 14)))
		b.WriteString(r.value.Render(value))
		b.WriteString("\n")
	}

	row("State", s.State.String())
	row("Camera", onOff(s.CameraActive))
	row("Alarm", onOff(s.AlarmActive))
	row("EAR", fmt.Sprintf("%.3f", s.EAR))
	row("Drowsy score", fmt.Sprintf("%.0f", s.DrowsyScore))
	row("Confidence", fmt.Sprintf("%.0f%%", s.Confidence*100))

	if s.FaceBox != nil {
		row("Face", fmt.Sprintf("%d,%d - %d,%d", s.FaceBox.Left, s.FaceBox.Top, s.FaceBox.Right, s.FaceBox.Bottom))
	}

	if s.Message != "" {
		row("Message", runewidth.Truncate(s.Message, r.width-20, "..."))
	}

	b.WriteString("\n")
	b.WriteString(r.Calibration(s.Calibrating, s.Calibration))

	if len(s.Suggestions) > 0 {
		b.WriteString("\n\n")
		b.WriteString(r.notice.Render("Suggestions"))

		for _, suggestion := range s.Suggestions {
			b.WriteString("\n  - ")
			b.WriteString(suggestion)
		}
	}

	return r.card.Render(b.String())
}

// Calibration renders the calibration block.
func (r *Renderer) Calibration(on bool, stats detection.CalibrationStats) string {
	var b strings.Builder

	b.WriteString(r.muted.Render(runewidth.FillRight("Calibration", 14)))
	b.WriteString(r.value.Render(onOff(on)))
	b.WriteString(r.muted.Render(fmt.Sprintf("  samples %d", stats.Count)))

	if !stats.Ready() {
		return b.String()
	}

	b.WriteString("\n")
	b.WriteString(r.muted.Render(runewidth.FillRight("", 14)))
	b.WriteString(fmt.Sprintf("min %s  max %s  avg %s", formatFloat(stats.Min), formatFloat(stats.Max), formatFloat(stats.Avg)))

	if hint := stats.Hint(); hint != "" {
		b.WriteString("\n")
		b.WriteString(r.notice.Render(hint))
	}

	return b.String()
}

func (r *Renderer) tierStyle(tier detection.StatusTier) lipgloss.Style {
	if style, ok := r.tiers[tier]; ok {
		return style
	}

	return r.value
}

// Sink prints a line whenever the displayed status changes.
type Sink struct {
	out      io.Writer
	renderer *Renderer

	mu   sync.Mutex
	last string
}

// NewSink creates a sink writing to out.
func NewSink(out io.Writer) *Sink {
	return &Sink{
		out:      out,
		renderer: NewRenderer(out),
	}
}

// Publish implements the monitor sink contract.
func (s *Sink) Publish(_ context.Context, snapshot *detection.Snapshot) {
	key := fmt.Sprintf("%s|%s|%t|%t|%d", snapshot.Status, snapshot.Message,
		snapshot.AlarmActive, snapshot.Calibrating, snapshot.Calibration.Count)

	s.mu.Lock()
	defer s.mu.Unlock()

	if key == s.last {
		return
	}

	s.last = key

	_, _ = fmt.Fprintln(s.out, s.renderer.Line(snapshot))
}

func onOff(v bool) string {
	if v {
		return "on"
	}

	return "off"
}

func formatFloat(v *float64) string {
	if v == nil {
		return "-"
	}

	return fmt.Sprintf("%.3f", *v)
}
