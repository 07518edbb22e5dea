package viz

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/boldsim/internal/dynamo"
	"github.com/san-kum/boldsim/internal/geometry"
	"github.com/san-kum/boldsim/internal/sequence"
	"github.com/san-kum/boldsim/internal/vessel"
)

const (
	width     = 60
	height    = 24
	spinLimit = 3000
)

var (
	canvasStyle = lipgloss.NewStyle().Padding(1, 2)
	statsStyle  = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(lipgloss.Color("240")).Padding(1, 2).Width(58)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
)

type TickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Second/30, func(t time.Time) tea.Msg { return TickMsg(t) })
}

// Model steps a simulator a few indices per frame and shows the voxel, the
// spins of a Monte Carlo run and the signal curves so far.
type Model struct {
	title        string
	sim          *dynamo.Simulator
	voxel        *geometry.ContinuousVoxel
	canvas       *Canvas
	background   *Canvas
	camera       *Camera
	running      bool
	stepsPerTick int
	total        []float64
	ev           []float64
	iv           []float64
	playHead     int
	showHelp     bool
	err          error
}

// NewModel wraps an initialized simulator. voxel is drawn as the backdrop.
func NewModel(title string, sim *dynamo.Simulator, voxel *geometry.ContinuousVoxel) Model {
	m := Model{
		title:        title,
		sim:          sim,
		voxel:        voxel,
		canvas:       NewCanvas(width, height),
		background:   NewCanvas(width, height),
		camera:       NewCamera(),
		running:      true,
		stepsPerTick: 1,
		playHead:     -1,
	}
	m.drawBackground()
	return m
}

func (m Model) Init() tea.Cmd {
	return tick()
}

// Update handles input events and steps the simulation.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "r":
			m.reset()
		case "[":
			m.scrub(-1)
		case "]":
			m.scrub(1)
		case "+", "=":
			m.stepsPerTick = min(m.stepsPerTick*2, 64)
		case "-", "_":
			m.stepsPerTick = max(m.stepsPerTick/2, 1)
		case "?":
			m.showHelp = !m.showHelp
		case "t":
			NextTheme()
		case "x", "X", "y", "Y", "z", "Z", "i", "o":
			m.rotate(msg.String())
		}
	case TickMsg:
		if m.running && m.playHead == -1 {
			m.step()
		}
		return m, tick()
	}
	return m, nil
}

func (m *Model) step() {
	for i := 0; i < m.stepsPerTick; i++ {
		if m.sim.Status() == dynamo.StatusFinalized {
			m.running = false
			return
		}
		sig, err := m.sim.Step(context.Background())
		if err != nil {
			m.err = err
			m.running = false
			return
		}
		m.total = append(m.total, sig.Total)
		m.ev = append(m.ev, sig.EV)
		m.iv = append(m.iv, sig.IV)
	}
}

// scrub moves the inspected step through the recorded history.
func (m *Model) scrub(dir int) {
	if len(m.total) == 0 {
		return
	}
	if m.playHead == -1 {
		m.playHead = len(m.total) - 1
		m.running = false
	}
	m.playHead += dir
	if m.playHead < 0 {
		m.playHead = 0
	}
	if m.playHead >= len(m.total) {
		m.playHead = -1
	}
}

func (m *Model) reset() {
	if err := m.sim.Reset(); err != nil {
		m.err = err
		return
	}
	m.err = nil
	m.total, m.ev, m.iv = m.total[:0], m.ev[:0], m.iv[:0]
	m.playHead = -1
	m.running = true
}

func (m *Model) rotate(key string) {
	if m.voxel == nil || m.voxel.Dim() != 3 {
		return
	}
	delta := 0.1
	if strings.ToUpper(key) == key {
		delta = -0.1
	}
	switch strings.ToLower(key) {
	case "x":
		m.camera.RotateX(delta)
	case "y":
		m.camera.RotateY(delta)
	case "z":
		m.camera.RotateZ(delta)
	case "i":
		m.camera.ZoomIn()
	case "o":
		m.camera.ZoomOut()
	}
	m.drawBackground()
}

func (m *Model) drawBackground() {
	m.background.Clear()
	if m.voxel != nil {
		DrawVoxel(m.background, m.voxel, m.camera)
	}
}

// spinPositions returns the walker positions of a Monte Carlo propagator.
func (m *Model) spinPositions() []vessel.Vec {
	ss, ok := m.sim.Propagator().(*sequence.SpinSequence)
	if !ok {
		return nil
	}
	spins := ss.Ensemble().Spins()
	pos := make([]vessel.Vec, len(spins))
	for i, s := range spins {
		pos[i] = s.Position
	}
	return pos
}

func (m *Model) draw() {
	m.canvas.CopyFrom(m.background)
	if m.voxel != nil && m.voxel.Dim() == 2 {
		DrawSpins(m.canvas, m.spinPositions(), m.voxel.Size(), spinLimit)
	}
}

// View renders the TUI interface.
func (m Model) View() string {
	m.draw()
	canvasView := canvasStyle.Render(m.canvas.String())

	theme := CurrentTheme
	title := lipgloss.NewStyle().Foreground(theme.Primary).Bold(true)
	var s strings.Builder
	s.WriteString(title.Render(strings.ToUpper(m.title)) + "\n")

	n := len(m.total)
	idx := n - 1
	status := StatusRunning.Render("RUNNING")
	switch {
	case m.err != nil:
		status = StatusError.Render("ERROR " + m.err.Error())
	case m.playHead >= 0:
		idx = m.playHead
		status = StatusPaused.Render(fmt.Sprintf("REPLAY step %d/%d", m.playHead, n-1))
	case m.sim.Status() == dynamo.StatusFinalized:
		status = StatusPaused.Render("FINALIZED")
	case !m.running:
		status = StatusPaused.Render("PAUSED")
	}
	s.WriteString(status + "\n\n")

	shown := idx + 1
	if chart := PlotSignals(m.total[:shown], m.ev[:shown], m.iv[:shown], 40, 8, "total / EV / IV"); chart != "" {
		s.WriteString(chart + "\n\n")
	}

	s.WriteString(Metric("Step", fmt.Sprintf("%d / %d", shown, m.sim.NumSteps())) + "\n")
	s.WriteString(Metric("Steps/frame", m.stepsPerTick) + "\n")
	if idx >= 0 {
		s.WriteString(Metric("Total", fmt.Sprintf("%.5f", m.total[idx])) + "\n")
		s.WriteString(Metric("EV", fmt.Sprintf("%.5f", m.ev[idx])) + "\n")
		s.WriteString(Metric("IV", fmt.Sprintf("%.5f", m.iv[idx])) + "\n")
		s.WriteString(SparklineChart(m.total[:shown], 40) + "\n")
	}
	if m.voxel != nil {
		s.WriteString(Metric("Vessels", m.voxel.NumVessels()) + "\n")
		s.WriteString(Metric("CBV", fmt.Sprintf("%.4f", m.voxel.CBV())) + "\n")
	}
	s.WriteString(helpStyle.Render("SP:Pause R:Reset Q:Quit T:Theme ?:Help\n[ ]:Scrub +/-:Speed"))
	statsView := statsStyle.Render(s.String())
	mainView := lipgloss.JoinHorizontal(lipgloss.Top, canvasView, statsView)
	if m.showHelp {
		return `
╔══════════════════════════════════════╗
║           KEYBOARD SHORTCUTS         ║
╠══════════════════════════════════════╣
║  Space    - Pause/Resume simulation  ║
║  R        - Reset to step 0          ║
║  Q        - Quit                     ║
║  [ / ]    - Scrub recorded steps     ║
║  + / -    - Steps per frame          ║
║  x y z    - Rotate a 3D voxel        ║
║  i / o    - Zoom a 3D voxel          ║
║  T        - Cycle themes             ║
║  ?        - Toggle this help         ║
╚══════════════════════════════════════╝
` + "\n\n" + mainView
	}
	return mainView
}

// RunLive shows m full screen until the user quits.
func RunLive(m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
