package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/moikas-code/script-sub002/asyncify"
	"github.com/moikas-code/script-sub002/executor"
	"github.com/moikas-code/script-sub002/ir"
)

type keyMap struct {
	Step key.Binding
	Run  key.Binding
	Quit key.Binding
}

func (k keyMap) ShortHelp() []key.Binding { return []key.Binding{k.Step, k.Run, k.Quit} }

func (k keyMap) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

var keys = keyMap{
	Step: key.NewBinding(key.WithKeys("n", " "), key.WithHelp("n/space", "poll once")),
	Run:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "run to completion")),
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// headerLines is the height of the title and status lines above the viewport.
const headerLines = 4

// runLimit caps the polls of one run-to-completion request.
const runLimit = 10_000

type stepModel struct {
	ctx     context.Context
	err     error
	ex      *executor.Executor
	fn      *ir.Function
	info    *asyncify.Info
	task    *executor.Task
	rec     *executor.Record
	args    []any
	history []string
	help    help.Model
	vp      viewport.Model
}

func newStepModel(ctx context.Context, ex *executor.Executor, fn *ir.Function, args []any, info *asyncify.Info) *stepModel {
	return &stepModel{
		ctx:  ctx,
		ex:   ex,
		fn:   fn,
		args: args,
		info: info,
		help: help.New(),
		vp:   viewport.New(defaultWidth, 20),
	}
}

type startedMsg struct {
	err   error
	value any
	task  *executor.Task
	rec   *executor.Record
}

type stepMsg struct {
	lines []string
}

func (m *stepModel) Init() tea.Cmd {
	return m.start
}

func (m *stepModel) start() tea.Msg {
	v, err := m.ex.Call(m.ctx, m.fn.Name, m.args...)
	if err != nil {
		return startedMsg{err: err}
	}
	rec, ok := v.(*executor.Record)
	if !ok {
		return startedMsg{value: v}
	}
	task, err := m.ex.Spawn(rec)
	if err != nil {
		return startedMsg{err: err}
	}
	return startedMsg{task: task, rec: rec}
}

// step polls the next woken task once; with all set it keeps going until
// the task settles or nothing is woken.
func (m *stepModel) step(all bool) tea.Cmd {
	return func() tea.Msg {
		var lines []string
		for range runLimit {
			t, res, ok := m.ex.Step(m.ctx)
			if !ok {
				return stepMsg{lines: append(lines, "no task is woken")}
			}
			lines = append(lines, m.describe(t, res))
			if !all || (t == m.task && res.Status != executor.StepPending) {
				return stepMsg{lines: lines}
			}
		}
		return stepMsg{lines: append(lines, fmt.Sprintf("stopped after %d polls", runLimit))}
	}
}

func (m *stepModel) describe(t *executor.Task, res executor.StepResult) string {
	line := fmt.Sprintf("task %d poll %d: %s", t.ID, t.Polls(), res.Status)
	switch {
	case res.Status == executor.StepDone:
		line += " " + formatValue(res.Value)
	case res.Status == executor.StepFailed:
		line += fmt.Sprintf(" (%s) %v", res.ErrorKind, res.Error)
	case res.Yielded:
		line += ", yielded"
	}
	if t == m.task && m.rec != nil {
		if s, err := m.rec.State(); err == nil {
			line += fmt.Sprintf(" [selector %d: %s]", s, m.stateName(s))
		}
	}
	return line
}

func (m *stepModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Step):
			if m.task != nil && !m.finished() {
				return m, m.step(false)
			}
		case key.Matches(msg, keys.Run):
			if m.task != nil && !m.finished() {
				return m, m.step(true)
			}
		}

	case tea.WindowSizeMsg:
		m.vp.Width = msg.Width
		m.vp.Height = max(msg.Height-headerLines-1, 3)
		m.help.Width = msg.Width

	case startedMsg:
		switch {
		case msg.err != nil:
			m.err = msg.err
		case msg.task == nil:
			m.history = append(m.history, "returned without suspending: "+formatValue(msg.value))
		default:
			m.task, m.rec = msg.task, msg.rec
			m.history = append(m.history, fmt.Sprintf("spawned task %d on %s", m.task.ID, m.rec))
		}

	case stepMsg:
		m.history = append(m.history, msg.lines...)
	}

	m.vp.SetContent(m.body())
	m.vp.GotoBottom()
	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(msg)
	return m, cmd
}

func (m *stepModel) finished() bool {
	_, done, _ := m.task.Result()
	return done
}

// stateName describes a selector value in terms of the lowered function.
func (m *stepModel) stateName(s uint32) string {
	if s == 0 {
		return "start"
	}
	if m.info == nil {
		return "unknown"
	}
	var maxID uint32
	for _, sp := range m.info.SuspendPoints {
		if sp.StateID == s {
			return fmt.Sprintf("suspended at await %d", s)
		}
		maxID = max(maxID, sp.StateID)
	}
	if s == maxID+1 {
		return "completed"
	}
	return "invalid"
}

func (m *stepModel) body() string {
	var b strings.Builder
	if m.rec != nil && m.info != nil {
		b.WriteString(typeStyle.Render(fmt.Sprintf("%8s %6s  %-24s %s", "offset", "size", "slot", "value")))
		b.WriteByte('\n')
		for _, s := range m.info.Slots {
			v, err := m.rec.Peek(s.Offset, s.Size)
			text := formatSlot(v)
			if err != nil {
				text = errorStyle.Render(err.Error())
			}
			fmt.Fprintf(&b, "%8d %6d  %-24s %s\n", s.Offset, s.Size, s.Name, text)
		}
		b.WriteByte('\n')
	}
	for _, line := range m.history {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func formatSlot(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case uint64:
		return fmt.Sprintf("%d (%#x)", x, x)
	case string:
		return fmt.Sprintf("%q", x)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprintf("%T", v)
}

func (m *stepModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Async Stepper"))
	b.WriteString(" ")
	b.WriteString(funcStyle.Render(m.fn.Name))
	b.WriteString(fmt.Sprintf("(%s)\n\n", formatArgs(m.args)))

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	case m.task == nil:
		b.WriteString("starting...")
	default:
		v, done, err := m.task.Result()
		switch {
		case done && err != nil:
			b.WriteString(errorStyle.Render(fmt.Sprintf("failed after %d polls: %v", m.task.Polls(), err)))
		case done:
			b.WriteString(resultStyle.Render(fmt.Sprintf("ready after %d polls: %s", m.task.Polls(), formatValue(v))))
		default:
			b.WriteString(selectedStyle.Render(fmt.Sprintf("pending, %d polls", m.task.Polls())))
		}
	}
	b.WriteString("\n\n")
	b.WriteString(m.vp.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(m.help.View(keys)))
	return b.String()
}

func formatArgs(args []any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = formatValue(a)
	}
	return strings.Join(parts, ", ")
}

func runInteractive(ctx context.Context, ex *executor.Executor, fn *ir.Function, args []any, info *asyncify.Info) error {
	p := tea.NewProgram(newStepModel(ctx, ex, fn, args, info), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
