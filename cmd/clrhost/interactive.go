package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wippyai/clr-host/config"
	"github.com/wippyai/clr-host/facade"
	"github.com/wippyai/clr-host/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	entryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

var isTerminal = func(fd int) bool { return term.IsTerminal(fd) }

func newInteractiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interactive",
		Short: "Drive a component instance from a terminal session",
		Long: `Start the runtime, create a component instance and feed it lines.

Each line entered is passed to Configure; ctrl+r runs Invoke and ctrl+n
replaces the instance with a fresh one.`,
		Args: cobra.NoArgs,
		RunE: runInteractive,
	}
	addHostFlags(cmd)
	addComponentFlags(cmd)
	return cmd
}

func runInteractive(cmd *cobra.Command, args []string) error {
	if !isTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("interactive mode needs a terminal on stdin")
	}
	p, err := loadProfile(cmd)
	if err != nil {
		return err
	}
	if p.Component == nil {
		return fmt.Errorf("no component: pass --assembly and --type or a profile with a component")
	}

	m := newInteractiveModel(cmd.Context(), p)
	defer m.close()
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

type interactiveModel struct {
	ctx     context.Context
	profile *config.Profile

	err     error
	rt      *runtime.Runtime
	table   *facade.Table
	session *facade.Session
	input   textinput.Model
	history []string
	status  string

	// busy is set while a call is in flight; calls on a session run
	// one at a time and in the order they were entered.
	busy bool
	// gen identifies the current session; results from a replaced
	// one are dropped.
	gen int
}

type loadedMsg struct {
	err   error
	rt    *runtime.Runtime
	table *facade.Table
}

type callResultMsg struct {
	gen     int
	err     error
	status  string
	session *facade.Session
	input   *string
}

func newInteractiveModel(ctx context.Context, p *config.Profile) *interactiveModel {
	ti := textinput.New()
	ti.Prompt = "configure> "
	ti.Placeholder = "input for Configure"
	ti.Width = 60
	ti.Focus()
	return &interactiveModel{ctx: ctx, profile: p, input: ti}
}

func (m *interactiveModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.load)
}

func (m *interactiveModel) load() tea.Msg {
	rt, err := startRuntime(m.ctx, m.profile)
	if err != nil {
		return loadedMsg{err: err}
	}
	table, err := m.profile.OpenComponent(rt)
	if err != nil {
		_ = rt.Close()
		return loadedMsg{err: err}
	}
	return loadedMsg{rt: rt, table: table}
}

func (m *interactiveModel) close() {
	if m.rt != nil {
		_ = m.rt.Close()
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "enter":
			if m.table == nil || m.busy {
				return m, nil
			}
			line := m.input.Value()
			m.input.Reset()
			m.busy = true
			return m, m.configure(line)

		case "ctrl+r":
			if m.table == nil || m.busy {
				return m, nil
			}
			m.busy = true
			return m, m.invoke()

		case "ctrl+n":
			if m.table == nil || m.busy {
				return m, nil
			}
			return m, m.create()
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.rt = msg.rt
		m.table = msg.table
		return m, m.create()

	case callResultMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		m.busy = false
		m.err = msg.err
		if msg.session != nil {
			m.session = msg.session
		}
		if msg.input != nil {
			m.history = append(m.history, *msg.input)
			msg.status = fmt.Sprintf("%d input(s) configured", len(m.history))
		}
		if msg.status != "" {
			m.status = msg.status
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// The commands below run off the update loop; they report back through
// callResultMsg and never touch the model. Update hands them everything
// they need and marks the model busy until the result arrives.

// create starts a new session generation.
func (m *interactiveModel) create() tea.Cmd {
	m.gen++
	m.busy = true
	m.session = nil
	m.history = nil
	gen, table := m.gen, m.table
	return func() tea.Msg {
		s, err := table.Create()
		if err != nil {
			return callResultMsg{gen: gen, err: err}
		}
		return callResultMsg{gen: gen, session: s, status: fmt.Sprintf("instance 0x%x created", s.Handle())}
	}
}

func (m *interactiveModel) configure(line string) tea.Cmd {
	gen, s := m.gen, m.session
	return func() tea.Msg {
		if s == nil {
			return callResultMsg{gen: gen, err: fmt.Errorf("no instance")}
		}
		if err := s.Configure(line); err != nil {
			return callResultMsg{gen: gen, err: err}
		}
		return callResultMsg{gen: gen, input: &line}
	}
}

func (m *interactiveModel) invoke() tea.Cmd {
	gen, s := m.gen, m.session
	invoke := m.table.Names().Invoke
	return func() tea.Msg {
		if s == nil {
			return callResultMsg{gen: gen, err: fmt.Errorf("no instance")}
		}
		if err := s.Invoke(); err != nil {
			return callResultMsg{gen: gen, err: err}
		}
		return callResultMsg{gen: gen, status: invoke + " returned"}
	}
}

func (m *interactiveModel) View() string {
	if m.table == nil {
		if m.err != nil {
			return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress esc to quit.", m.err))
		}
		return "Starting runtime..."
	}

	var b strings.Builder
	names := m.table.Names()
	b.WriteString(titleStyle.Render("clrhost"))
	b.WriteString(" ")
	b.WriteString(entryStyle.Render(names.TypeName))
	b.WriteString("\n\n")

	for _, line := range m.history {
		b.WriteString(helpStyle.Render(names.Configure + ": "))
		b.WriteString(line)
		b.WriteString("\n")
	}
	if len(m.history) > 0 {
		b.WriteString("\n")
	}

	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	} else if m.status != "" {
		b.WriteString(resultStyle.Render(m.status))
	}
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("enter configure • ctrl+r invoke • ctrl+n new instance • esc quit"))
	return b.String()
}
