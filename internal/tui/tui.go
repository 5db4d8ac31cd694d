// Package tui is the operator console: a live telemetry table plus the
// action keys of the bench.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"sapphire/internal/command"
	"sapphire/internal/ingest"
	"sapphire/internal/protocol"
)

// Device is what the console drives; *device.Session satisfies it.
type Device interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Connected() bool
	Stale() bool
	Submit(a command.Action) error
	Events() <-chan ingest.Event
	Intent() protocol.Intent
	ReadBack(g protocol.Group) error
	SaveSettings() ([]string, error)
}

const (
	tickEvery   = 500 * time.Millisecond
	eventsBatch = 64
)

type rowKey struct {
	group protocol.Group
	field string
}

type Model struct {
	dev  Device
	port string

	table table.Model
	keys  []rowKey
	index map[rowKey]int
	rows  []table.Row

	link   string
	status string
	err    error

	entering bool
	prompt   string
	input    textinput.Model
	action   string // "start", "general", "control", "profile", "ramp"
}

type tickMsg struct{}

type eventsMsg []ingest.Event

type connectMsg struct{ err error }

type doneMsg struct {
	what string
	err  error
}

type savedMsg struct {
	paths []string
	err   error
}

func New(dev Device, port string) Model {
	ti := textinput.New()
	ti.CharLimit = 256
	ti.Prompt = "> "

	columns := []table.Column{
		{Title: "Group", Width: 18},
		{Title: "Field", Width: 30},
		{Title: "Value", Width: 14},
	}
	m := Model{dev: dev, port: port, input: ti, index: map[rowKey]int{}, link: "disconnected"}
	for _, g := range protocol.Topics {
		for _, f := range protocol.FieldNames(g) {
			k := rowKey{g, f}
			m.index[k] = len(m.keys)
			m.keys = append(m.keys, k)
			m.rows = append(m.rows, table.Row{string(g), f, "-"})
		}
	}
	m.table = table.New(table.WithColumns(columns), table.WithRows(m.rows), table.WithHeight(16), table.WithFocused(true))
	m.table.SetStyles(defaultTableStyles())
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvents(m.dev.Events()), tick())
}

func tick() tea.Cmd {
	return tea.Tick(tickEvery, func(time.Time) tea.Msg { return tickMsg{} })
}

// waitForEvents blocks for one event then takes whatever else is queued.
func waitForEvents(ch <-chan ingest.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		batch := eventsMsg{e}
		for len(batch) < eventsBatch {
			select {
			case e, ok := <-ch:
				if !ok {
					return batch
				}
				batch = append(batch, e)
			default:
				return batch
			}
		}
		return batch
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.entering {
			switch msg.Type {
			case tea.KeyEnter:
				val := strings.TrimSpace(m.input.Value())
				m.entering = false
				m.status = ""
				a, err := m.parsePrompt(m.action, val)
				if err != nil {
					m.err = err
					return m, nil
				}
				return m, m.submit(a)
			case tea.KeyEsc:
				m.entering = false
				m.status = ""
				return m, nil
			}
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "c":
			m.status = "connecting to " + m.port
			return m, m.connect()
		case "x":
			return m, m.disconnect()
		case "m":
			return m, m.submit(command.SetMode{Mode: m.dev.Intent().Controls.Mode.Next()})
		case "s":
			return m.ask("start", "setpoint [abs|rel]: ", ""), nil
		case "t":
			c := m.dev.Intent().Controls
			return m, m.submit(command.StopMotion{Setpoint: c.Setpoint, Reference: c.Reference})
		case "e":
			return m, m.submit(command.ResetControlProtection{})
		case "i":
			return m, m.submit(command.ResetInterferometerProtection{})
		case "g":
			return m.ask("general", "general settings name=value ...: ", ""), nil
		case "k":
			return m.ask("control", "control settings name=value ...: ", ""), nil
		case "r":
			return m, m.readBack()
		case "p":
			id := strconv.Itoa(m.dev.Intent().ExpertProcedures.WaveformID)
			return m.ask("profile", "waveform id: ", id), nil
		case "P":
			return m, m.submit(command.StopProfileMotion{WaveformID: m.dev.Intent().ExpertProcedures.WaveformID})
		case "y":
			return m.ask("ramp", "cycles rate: ", ""), nil
		case "Y":
			e := m.dev.Intent().ExpertProcedures
			return m, m.submit(command.StopRampCycles{Cycles: e.NumberCycles, Rate: e.RampRate})
		case "l":
			return m, m.submit(command.TriggerLogging{})
		case "w":
			return m, m.save()
		}

	case eventsMsg:
		for _, e := range msg {
			if i, ok := m.index[rowKey{e.Group, e.Field}]; ok {
				m.rows[i][2] = strconv.FormatFloat(e.Value, 'g', 8, 64)
			}
		}
		m.table.SetRows(m.rows)
		return m, waitForEvents(m.dev.Events())

	case tickMsg:
		m.link = m.linkState()
		return m, tick()

	case connectMsg:
		m.link = m.linkState()
		if msg.err != nil {
			m.err = msg.err
			m.status = msg.err.Error()
			return m, nil
		}
		m.err = nil
		m.status = "connected to " + m.port
		return m, nil

	case doneMsg:
		if msg.err != nil {
			m.err = msg.err
			m.status = msg.err.Error()
			return m, nil
		}
		m.err = nil
		m.status = msg.what
		return m, nil

	case savedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.status = msg.err.Error()
			return m, nil
		}
		m.err = nil
		m.status = "saved " + strings.Join(msg.paths, ", ")
		return m, nil
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	cmds = append(cmds, cmd)
	if m.entering {
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) ask(action, prompt, value string) Model {
	m.entering = true
	m.action = action
	m.prompt = prompt
	m.input.SetValue(value)
	m.input.Focus()
	return m
}

func (m Model) linkState() string {
	switch {
	case !m.dev.Connected():
		return "disconnected"
	case m.dev.Stale():
		return "stale"
	}
	return "connected"
}

// parsePrompt turns the operator's answer into an action.
func (m Model) parsePrompt(action, val string) (command.Action, error) {
	in := m.dev.Intent()
	parts := strings.Fields(val)
	switch action {
	case "start":
		if len(parts) == 0 || len(parts) > 2 {
			return nil, errors.New("enter: <setpoint> [abs|rel]")
		}
		sp, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, fmt.Errorf("setpoint: %w", err)
		}
		ref := in.Controls.Reference
		if len(parts) == 2 {
			if ref, err = protocol.ParseReference(parts[1]); err != nil {
				return nil, err
			}
		}
		return command.StartMotion{Setpoint: sp, Reference: ref}, nil
	case "general":
		gs := in.GeneralSettings
		if err := assign(parts, gs.Set); err != nil {
			return nil, err
		}
		return command.WriteGeneralSettings{Settings: gs}, nil
	case "control":
		cs := in.ControlSettings
		if err := assign(parts, cs.Set); err != nil {
			return nil, err
		}
		return command.WriteControlSettings{Settings: cs}, nil
	case "profile":
		if len(parts) != 1 {
			return nil, errors.New("enter: <waveform id>")
		}
		id, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("waveform id: %w", err)
		}
		return command.StartProfileMotion{WaveformID: id}, nil
	case "ramp":
		if len(parts) != 2 {
			return nil, errors.New("enter: <cycles> <rate>")
		}
		n, err1 := strconv.Atoi(parts[0])
		rate, err2 := strconv.ParseFloat(parts[1], 64)
		if err1 != nil || err2 != nil {
			return nil, errors.New("invalid numbers")
		}
		return command.StartRampCycles{Cycles: n, Rate: rate}, nil
	}
	return nil, fmt.Errorf("unknown prompt %q", action)
}

// assign applies name=value pairs; an empty answer resends the record as is.
func assign(pairs []string, set func(string, float64) error) error {
	for _, p := range pairs {
		name, raw, ok := strings.Cut(p, "=")
		if !ok {
			return fmt.Errorf("%q: want name=value", p)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if err := set(name, v); err != nil {
			return err
		}
	}
	return nil
}

func (m Model) submit(a command.Action) tea.Cmd {
	dev := m.dev
	return func() tea.Msg {
		if err := dev.Submit(a); err != nil {
			return doneMsg{err: err}
		}
		return doneMsg{what: "sent: " + a.String()}
	}
}

func (m Model) connect() tea.Cmd {
	dev := m.dev
	return func() tea.Msg { return connectMsg{err: dev.Connect(context.Background())} }
}

func (m Model) disconnect() tea.Cmd {
	dev := m.dev
	return func() tea.Msg {
		if err := dev.Disconnect(); err != nil {
			return doneMsg{err: err}
		}
		return doneMsg{what: "disconnected"}
	}
}

func (m Model) readBack() tea.Cmd {
	dev := m.dev
	return func() tea.Msg {
		err := errors.Join(
			dev.ReadBack(protocol.GroupGeneralSettings),
			dev.ReadBack(protocol.GroupControlSettings),
		)
		if err != nil {
			return doneMsg{err: fmt.Errorf("read back: %w", err)}
		}
		return doneMsg{what: "settings read back from the bench"}
	}
}

func (m Model) save() tea.Cmd {
	dev := m.dev
	return func() tea.Msg {
		paths, err := dev.SaveSettings()
		return savedMsg{paths: paths, err: err}
	}
}

func (m Model) View() string {
	title := lipgloss.NewStyle().Bold(true).Render("sapphire: " + m.port)
	help := "c:connect x:disconnect m:mode s:start t:stop e/i:reset prot g/k:write settings r:read back p/P:profile y/Y:ramp l:logging w:save q:quit"

	c := m.dev.Intent().Controls
	linkStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	if m.link != "connected" {
		linkStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	}
	state := fmt.Sprintf("%s  mode %s  ref %s  setpoint %g %s",
		linkStyle.Render(m.link), c.Mode, c.Reference, c.Setpoint, c.Mode.Unit())

	var b strings.Builder
	b.WriteString(title + "\n")
	b.WriteString(state + "\n")
	b.WriteString(m.table.View() + "\n")
	if m.entering {
		b.WriteString("\n" + m.prompt + m.input.View() + "\n")
	}
	if m.err != nil {
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render("error: "+m.err.Error()) + "\n")
	}
	b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status) + "\n")
	b.WriteString(help)
	return b.String()
}

func defaultTableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).Bold(true)
	s.Selected = lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Bold(true)
	return s
}
