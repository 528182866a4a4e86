// Package tui renders a live terminal monitor for a training run.
//
// The monitor is a pure observer: it subscribes to the event bus, mirrors
// the latest metrics, and never feeds anything back into the run. Headless
// runs simply never start it.
package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cadenza-ml/cadenza/internal/event"
)

const sparklineLen = 40

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))
	sparkStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))
	doneStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))
	errStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 2)
)

type scalarMsg struct {
	tag   string
	value float64
	step  int
}

type artifactMsg struct{}

type startedMsg struct {
	experiment string
	workers    int
	maxStep    int
}

type finishedMsg struct {
	iteration int
	err       error
}

// Monitor couples a bus subscription to a bubbletea program.
type Monitor struct {
	bus  *event.Bus
	prog *tea.Program
}

// NewMonitor creates a monitor fed by the given bus.
func NewMonitor(bus *event.Bus) *Monitor {
	return &Monitor{bus: bus}
}

// Run subscribes to the bus and blocks in the terminal UI until the run
// finishes or the user quits.
func (m *Monitor) Run() error {
	m.prog = tea.NewProgram(newModel())

	subID := m.bus.SubscribeAll(func(e event.Event) {
		switch ev := e.(type) {
		case event.MetricScalarEvent:
			m.prog.Send(scalarMsg{tag: ev.Tag, value: ev.Value, step: ev.Step})
		case event.MetricArtifactEvent:
			m.prog.Send(artifactMsg{})
		case event.RunStartedEvent:
			m.prog.Send(startedMsg{experiment: ev.Experiment, workers: ev.Workers, maxStep: ev.MaxStep})
		case event.RunFinishedEvent:
			m.prog.Send(finishedMsg{iteration: ev.Iteration, err: ev.Err})
		}
	})
	defer m.bus.Unsubscribe(subID)

	_, err := m.prog.Run()
	return err
}

type model struct {
	spin spinner.Model

	experiment string
	workers    int
	maxStep    int
	iteration  int
	started    bool

	trainLosses map[string]float64
	validLosses map[string]float64
	recent      []float64
	artifacts   int

	done    bool
	doneErr error
}

func newModel() model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	return model{
		spin:        s,
		trainLosses: make(map[string]float64),
		validLosses: make(map[string]float64),
	}
}

func (m model) Init() tea.Cmd {
	return m.spin.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		return m, nil

	case startedMsg:
		m.started = true
		m.experiment = msg.experiment
		m.workers = msg.workers
		m.maxStep = msg.maxStep
		return m, nil

	case scalarMsg:
		m = m.applyScalar(msg)
		return m, nil

	case artifactMsg:
		m.artifacts++
		return m, nil

	case finishedMsg:
		m.done = true
		m.doneErr = msg.err
		m.iteration = msg.iteration
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) applyScalar(msg scalarMsg) model {
	if msg.step+1 > m.iteration {
		m.iteration = msg.step + 1
	}
	switch {
	case strings.HasPrefix(msg.tag, "train_loss/"):
		name := strings.TrimPrefix(msg.tag, "train_loss/")
		m.trainLosses[name] = msg.value
		if name == "loss" {
			m.recent = append(m.recent, msg.value)
			if len(m.recent) > sparklineLen {
				m.recent = m.recent[len(m.recent)-sparklineLen:]
			}
		}
	case strings.HasPrefix(msg.tag, "valid/"):
		m.validLosses[strings.TrimPrefix(msg.tag, "valid/")] = msg.value
	}
	return m
}

func (m model) View() string {
	var b strings.Builder

	name := m.experiment
	if name == "" {
		name = "experiment"
	}
	b.WriteString(titleStyle.Render("cadenza · "+name) + "\n\n")

	if m.done {
		if m.doneErr != nil {
			b.WriteString(errStyle.Render(fmt.Sprintf("✗ failed at iteration %d: %v", m.iteration, m.doneErr)) + "\n")
		} else {
			b.WriteString(doneStyle.Render(fmt.Sprintf("✓ finished at iteration %d", m.iteration)) + "\n")
		}
	} else {
		progress := fmt.Sprintf("iteration %d", m.iteration)
		if m.maxStep > 0 {
			progress = fmt.Sprintf("iteration %d / %d", m.iteration, m.maxStep)
		}
		b.WriteString(fmt.Sprintf("%s training  %s\n", m.spin.View(), valueStyle.Render(progress)))
		if m.workers > 1 {
			b.WriteString(labelStyle.Render(fmt.Sprintf("  %d workers", m.workers)) + "\n")
		}
	}
	b.WriteString("\n")

	if len(m.recent) > 0 {
		b.WriteString(labelStyle.Render("loss ") + sparkStyle.Render(sparkline(m.recent)) + "\n\n")
	}

	if len(m.trainLosses) > 0 {
		b.WriteString(renderLosses("train", m.trainLosses))
	}
	if len(m.validLosses) > 0 {
		b.WriteString(renderLosses("valid", m.validLosses))
	}
	if m.artifacts > 0 {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%d alignment plots", m.artifacts)) + "\n")
	}

	if !m.done {
		b.WriteString("\n" + labelStyle.Render("press q to detach (training continues)"))
	}

	return boxStyle.Render(b.String()) + "\n"
}

func renderLosses(section string, losses map[string]float64) string {
	keys := make([]string, 0, len(losses))
	for k := range losses {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(labelStyle.Render(section) + "\n")
	for _, k := range keys {
		b.WriteString(fmt.Sprintf("  %s %s\n",
			labelStyle.Render(fmt.Sprintf("%-14s", k)),
			valueStyle.Render(fmt.Sprintf("%.6f", losses[k]))))
	}
	b.WriteString("\n")
	return b.String()
}

// sparkline maps the series onto block runes, normalized to its own range.
func sparkline(values []float64) string {
	min, max := values[0], values[0]
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	span := max - min
	var b strings.Builder
	for _, v := range values {
		idx := 0
		if span > 0 {
			idx = int((v - min) / span * float64(len(sparkRunes)-1))
		}
		b.WriteRune(sparkRunes[idx])
	}
	return b.String()
}
