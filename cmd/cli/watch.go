package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/nstogner/arena/pkg/models"
	"github.com/nstogner/arena/pkg/store"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)

	playerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("5")).
			Bold(true)

	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	phaseStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)

	cursorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	selectedItemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	errorStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true).Padding(0, 1)
)

func newWatchCmd(root *rootFlags) *cobra.Command {
	var (
		run         bool
		showPrompts bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Browse recorded episodes and follow running ones in a terminal UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			mgr, results, err := openStores(cfg.Store.Dir)
			if err != nil {
				return err
			}
			defer results.Close()

			// The UI owns the terminal, so logs go to a file.
			f, err := os.OpenFile(filepath.Join(cfg.Store.Dir, "arena.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return err
			}
			defer f.Close()
			setupLogging(f, cfg.LogLevel)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			var done <-chan error
			if run {
				provider, cleanup, err := newProvider(ctx, cfg)
				if err != nil {
					return err
				}
				defer cleanup()
				r := newRunner(cfg, provider, mgr, results)
				ch := make(chan error, 1)
				go func() {
					_, err := runTask(ctx, cfg, r)
					ch <- err
				}()
				done = ch
			}

			p := tea.NewProgram(initialModel(mgr, done, showPrompts), tea.WithAltScreen(), tea.WithContext(ctx))
			_, err = p.Run()
			return err
		},
	}
	cmd.Flags().BoolVar(&run, "run", true, "Play the configured episodes while watching")
	cmd.Flags().BoolVar(&showPrompts, "show-prompts", false, "Also show the prompts sent to players")
	return cmd
}

type state int

const (
	stateSelectingEpisode state = iota
	stateWatching
)

type errMsg struct{ err error }
type episodeUpdateMsg string
type runDoneMsg struct{ err error }

type episodesMsg []store.EpisodeInfo

type updateViewMsg struct {
	id      string
	content string
}

type model struct {
	manager     store.Manager
	updates     <-chan string
	runDone     <-chan error
	showPrompts bool

	state      state
	episodes   []store.EpisodeInfo
	currentID  string
	running    bool
	cursor     int
	listOffset int
	width      int
	height     int
	err        error

	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
}

func initialModel(manager store.Manager, runDone <-chan error, showPrompts bool) model {
	vp := viewport.New(80, 20)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = cursorStyle

	// A fixed style keeps glamour from querying the terminal.
	r, _ := glamour.NewTermRenderer(
		glamour.WithStandardStyle("light"),
		glamour.WithWordWrap(80),
	)

	return model{
		manager:     manager,
		updates:     manager.Subscribe(),
		runDone:     runDone,
		showPrompts: showPrompts,
		running:     runDone != nil,
		viewport:    vp,
		spinner:     sp,
		renderer:    r,
	}
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.listEpisodes(), waitForUpdate(m.updates)}
	if m.running {
		cmds = append(cmds, m.spinner.Tick, waitForRun(m.runDone))
	}
	return tea.Batch(cmds...)
}

func (m model) maxViewable() int {
	return max(m.height-7, 1)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	if m.state == stateWatching {
		var vpCmd tea.Cmd
		m.viewport, vpCmd = m.viewport.Update(msg)
		cmds = append(cmds, vpCmd)
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-4, 0)
		m.viewport.YPosition = 2
		m.renderer, _ = glamour.NewTermRenderer(
			glamour.WithStandardStyle("light"),
			glamour.WithWordWrap(max(m.width-4, 20)),
		)
		m.clampOffset()
		if m.state == stateWatching {
			cmds = append(cmds, m.reloadEntries(m.currentID))
		}

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEsc:
			if m.state == stateWatching {
				m.state = stateSelectingEpisode
				m.currentID = ""
				return m, m.listEpisodes()
			}
			return m, tea.Quit
		case tea.KeyEnter:
			if m.state == stateSelectingEpisode && m.cursor < len(m.episodes) {
				m.currentID = m.episodes[m.cursor].ID
				m.state = stateWatching
				m.viewport.SetContent("Loading...")
				return m, m.reloadEntries(m.currentID)
			}
		case tea.KeyUp:
			if m.state == stateSelectingEpisode && m.cursor > 0 {
				m.cursor--
				m.clampOffset()
			}
		case tea.KeyDown:
			if m.state == stateSelectingEpisode && m.cursor < len(m.episodes)-1 {
				m.cursor++
				m.clampOffset()
			}
		default:
			if msg.String() == "q" && m.state == stateSelectingEpisode {
				return m, tea.Quit
			}
		}

	case episodeUpdateMsg:
		slog.Debug("TUI received update for episode", "episodeID", string(msg))
		if m.state == stateWatching && string(msg) == m.currentID {
			cmds = append(cmds, m.reloadEntries(m.currentID))
		} else if m.state == stateSelectingEpisode {
			cmds = append(cmds, m.listEpisodes())
		}
		cmds = append(cmds, waitForUpdate(m.updates))

	case episodesMsg:
		m.episodes = msg
		if m.cursor >= len(m.episodes) {
			m.cursor = max(len(m.episodes)-1, 0)
		}
		m.clampOffset()

	case updateViewMsg:
		if msg.id == m.currentID {
			atBottom := m.viewport.AtBottom()
			m.viewport.SetContent(msg.content)
			if atBottom {
				m.viewport.GotoBottom()
			}
		}

	case runDoneMsg:
		m.running = false
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.err = msg.err
		}
		cmds = append(cmds, m.listEpisodes())

	case spinner.TickMsg:
		if m.running {
			var spCmd tea.Cmd
			m.spinner, spCmd = m.spinner.Update(msg)
			cmds = append(cmds, spCmd)
		}

	case errMsg:
		m.err = msg.err
	}

	return m, tea.Batch(cmds...)
}

func (m *model) clampOffset() {
	maxViewable := m.maxViewable()
	if m.cursor < m.listOffset {
		m.listOffset = m.cursor
	}
	if m.cursor >= m.listOffset+maxViewable {
		m.listOffset = m.cursor - maxViewable + 1
	}
	if m.listOffset < 0 {
		m.listOffset = 0
	}
}

func (m model) View() string {
	var errorView string
	if m.err != nil {
		errorView = errorStyle.Width(m.width).Render(fmt.Sprintf("\nError: %v", m.err))
	}
	var status string
	if m.running {
		status = m.spinner.View() + " Playing episodes..."
	}

	if m.state == stateWatching {
		return lipgloss.JoinVertical(
			lipgloss.Left,
			titleStyle.Render("Episode "+m.currentID),
			"",
			m.viewport.View(),
			status+"  Esc to go back.",
			errorView,
		)
	}

	header := titleStyle.Render("Episodes")
	if len(m.episodes) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, header, "", "No episodes recorded yet.", "", status, errorView)
	}

	start := m.listOffset
	end := min(start+m.maxViewable(), len(m.episodes))

	var optionsView []string
	for i := start; i < end; i++ {
		ep := m.episodes[i]
		cursor := " "
		line := fmt.Sprintf("%s  %-6s %-18s %s (%s)", ep.ID[:min(8, len(ep.ID))], ep.Task, ep.Status, ep.Model, ep.Modified.Format(time.RFC822))
		if m.cursor == i {
			cursor = ">"
			line = selectedItemStyle.Render(line)
		}
		optionsView = append(optionsView, fmt.Sprintf("%s %s", cursorStyle.Render(cursor), line))
	}

	list := lipgloss.JoinVertical(lipgloss.Left, optionsView...)
	footer := "Press Enter to watch, Esc to quit."
	return lipgloss.JoinVertical(lipgloss.Left, header, "", list, "", footer, status, errorView)
}

func (m model) listEpisodes() tea.Cmd {
	return func() tea.Msg {
		eps, err := m.manager.ListEpisodes()
		if err != nil {
			return errMsg{err}
		}
		return episodesMsg(eps)
	}
}

// reloadEntries reads the episode from disk, since it may be written by
// another process.
func (m model) reloadEntries(id string) tea.Cmd {
	renderer := m.renderer
	showPrompts := m.showPrompts
	return func() tea.Msg {
		ep, err := m.manager.LoadEpisode(id)
		if err != nil {
			return errMsg{err}
		}
		defer ep.Close()

		entries := ep.Entries()
		slog.Debug("Loaded entries from episode", "episodeID", id, "count", len(entries))
		return updateViewMsg{id: id, content: renderEntries(ep.Header(), entries, renderer, showPrompts)}
	}
}

func renderEntries(h store.Header, entries []store.Entry, renderer *glamour.TermRenderer, showPrompts bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s with %s, seats: %s\n\n", strings.ToUpper(h.Task), h.Model, strings.Join(h.Seats, ", "))
	for _, e := range entries {
		switch e.Type {
		case store.TypePhase:
			sb.WriteString(phaseStyle.Render(e.Phase.Line))
			sb.WriteString("\n")
		case store.TypeMessage:
			msg := e.Message
			if msg.Role == models.RoleUser {
				if showPrompts {
					sb.WriteString(promptStyle.Render(fmt.Sprintf("to Player %d: %s", msg.Player, msg.Content)))
					sb.WriteString("\n")
				}
				continue
			}
			sb.WriteString(playerStyle.Render(fmt.Sprintf("Player %d:", msg.Player)))
			sb.WriteString("\n")
			content := msg.Content
			if renderer != nil {
				if rendered, err := renderer.Render(content); err == nil {
					content = rendered
				}
			}
			sb.WriteString(content)
			sb.WriteString("\n")
		case store.TypeResult:
			r := e.Result
			sb.WriteString("\n")
			if r.GameResult != "" {
				sb.WriteString(phaseStyle.Render(r.GameResult))
			} else {
				sb.WriteString(errorStyle.Render(fmt.Sprintf("Episode ended: %s %s", r.Status, r.Error)))
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func waitForUpdate(sub <-chan string) tea.Cmd {
	return func() tea.Msg {
		id, ok := <-sub
		if !ok {
			return nil
		}
		return episodeUpdateMsg(id)
	}
}

func waitForRun(done <-chan error) tea.Cmd {
	return func() tea.Msg {
		return runDoneMsg{err: <-done}
	}
}
