// Package console prints live episode transcripts to a terminal.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/nstogner/arena/pkg/models"
	"github.com/nstogner/arena/pkg/multiagent"
	"github.com/nstogner/arena/pkg/runner"
)

// playerColors gives each seat a stable color.
var playerColors = []lipgloss.Color{"1", "2", "3", "4", "5", "6", "9", "10", "11", "12"}

// Printer is a runner.Observer that writes colored transcripts to w.
type Printer struct {
	mu sync.Mutex
	w  io.Writer

	// showPrompts also prints the prompts sent to players.
	showPrompts bool

	titleStyle  lipgloss.Style
	phaseStyle  lipgloss.Style
	promptStyle lipgloss.Style
	resultStyle lipgloss.Style
	errorStyle  lipgloss.Style
	players     []lipgloss.Style
}

var _ runner.Observer = (*Printer)(nil)

// New returns a Printer writing to w, with colors matching w's terminal.
func New(w io.Writer, showPrompts bool) *Printer {
	r := lipgloss.NewRenderer(w)
	p := &Printer{
		w:           w,
		showPrompts: showPrompts,
		titleStyle: r.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1),
		phaseStyle:  r.NewStyle().Foreground(lipgloss.Color("205")).Bold(true),
		promptStyle: r.NewStyle().Foreground(lipgloss.Color("240")).PaddingLeft(2),
		resultStyle: r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		errorStyle:  r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}
	for _, c := range playerColors {
		p.players = append(p.players, r.NewStyle().Foreground(c).Bold(true))
	}
	return p
}

func (p *Printer) Observe(ev runner.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tag := shortID(ev.EpisodeID)
	switch ev.Kind {
	case runner.EventStarted:
		fmt.Fprintln(p.w, p.titleStyle.Render(fmt.Sprintf("%s episode %s", strings.ToUpper(ev.Task), tag)))
	case runner.EventPhase:
		fmt.Fprintf(p.w, "[%s] %s\n", tag, p.phaseStyle.Render(ev.Text))
	case runner.EventMessage:
		if ev.Message.Role == models.RoleUser {
			if !p.showPrompts {
				return
			}
			fmt.Fprintf(p.w, "[%s] %s\n", tag, p.promptStyle.Render(fmt.Sprintf("to Player %d: %s", ev.Player, ev.Message.Content)))
			return
		}
		style := p.players[ev.Player%len(p.players)]
		fmt.Fprintf(p.w, "[%s] %s %s\n", tag, style.Render(fmt.Sprintf("Player %d:", ev.Player)), ev.Message.Content)
	case runner.EventFinished:
		if ev.Record == nil {
			return
		}
		if ev.Record.Status != string(multiagent.StatusCompleted) {
			fmt.Fprintf(p.w, "[%s] %s\n", tag, p.errorStyle.Render("Episode ended: "+ev.Record.Status))
			return
		}
		fmt.Fprintf(p.w, "[%s] %s\n", tag, p.resultStyle.Render(ev.Text))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
