package viz

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	cyan    = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	magenta = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
)

const (
	stateMenu = iota
	stateConfig
	stateSim
)

// Preset is one entry of the picker.
type Preset struct {
	Method string
	Name   string
}

// Launcher builds a live model for the chosen preset with the edited
// parameter overrides applied.
type Launcher func(p Preset, params map[string]float64) (Model, error)

// Param is an editable override shown on the config screen.
type Param struct {
	Name  string
	Value float64
	Step  float64
}

type picker struct {
	state       int
	cursor      int
	presets     []Preset
	paramsFor   func(Preset) []Param
	params      []Param
	paramCursor int
	editing     bool
	editBuf     string
	launch      Launcher
	err         error
	liveModel   Model
}

// NewInteractiveApp returns a picker over presets that starts a live view
// through launch. paramsFor seeds the config screen of the chosen preset.
func NewInteractiveApp(presets []Preset, paramsFor func(Preset) []Param, launch Launcher) tea.Model {
	return picker{
		presets:   presets,
		paramsFor: paramsFor,
		launch:    launch,
	}
}

func (m picker) Init() tea.Cmd { return nil }

func (m picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.state == stateSim {
		newLive, cmd := m.liveModel.Update(msg)
		m.liveModel = newLive.(Model)
		return m, cmd
	}
	if key, ok := msg.(tea.KeyMsg); ok {
		if m.state == stateMenu {
			return m.menuKey(key)
		}
		return m.configKey(key)
	}
	return m, nil
}

func (m picker) menuKey(msg tea.KeyMsg) (picker, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.presets)-1 {
			m.cursor++
		}
	case "enter", " ":
		if len(m.presets) > 0 {
			m.state, m.paramCursor, m.err = stateConfig, 0, nil
			m.params = m.paramsFor(m.presets[m.cursor])
		}
	}
	return m, nil
}

func (m picker) configKey(msg tea.KeyMsg) (picker, tea.Cmd) {
	if m.editing {
		switch msg.String() {
		case "enter":
			if v, err := strconv.ParseFloat(m.editBuf, 64); err == nil {
				m.params[m.paramCursor].Value = v
			}
			m.editing, m.editBuf = false, ""
		case "esc":
			m.editing, m.editBuf = false, ""
		case "backspace":
			if len(m.editBuf) > 0 {
				m.editBuf = m.editBuf[:len(m.editBuf)-1]
			}
		default:
			if len(msg.String()) == 1 {
				c := msg.String()[0]
				if (c >= '0' && c <= '9') || c == '.' || c == '-' || c == 'e' {
					m.editBuf += string(c)
				}
			}
		}
		return m, nil
	}
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "q", "esc":
		m.state = stateMenu
	case "up", "k":
		if m.paramCursor > 0 {
			m.paramCursor--
		}
	case "down", "j":
		if m.paramCursor < len(m.params)-1 {
			m.paramCursor++
		}
	case "enter", " ":
		if len(m.params) > 0 {
			m.editing, m.editBuf = true, strconv.FormatFloat(m.params[m.paramCursor].Value, 'g', -1, 64)
		}
	case "left", "h":
		if len(m.params) > 0 {
			m.params[m.paramCursor].Value -= m.params[m.paramCursor].Step
		}
	case "right", "l":
		if len(m.params) > 0 {
			m.params[m.paramCursor].Value += m.params[m.paramCursor].Step
		}
	case "s":
		return m.start()
	}
	return m, nil
}

func (m picker) start() (picker, tea.Cmd) {
	values := make(map[string]float64, len(m.params))
	for _, p := range m.params {
		values[p.Name] = p.Value
	}
	live, err := m.launch(m.presets[m.cursor], values)
	if err != nil {
		m.err = err
		return m, nil
	}
	m.liveModel, m.state = live, stateSim
	return m, m.liveModel.Init()
}

func (m picker) View() string {
	if m.state == stateSim {
		return m.liveModel.View()
	}
	var s strings.Builder
	s.WriteString(GradientText("BOLDSIM", CurrentTheme.Primary, CurrentTheme.Secondary) + "\n\n")
	switch m.state {
	case stateMenu:
		s.WriteString(white.Render("select a preset") + "\n\n")
		method := ""
		for i, p := range m.presets {
			if p.Method != method {
				method = p.Method
				s.WriteString(magenta.Render(method) + "\n")
			}
			line := fmt.Sprintf("  %s", p.Name)
			if i == m.cursor {
				line = cyan.Render("> " + p.Name)
			}
			s.WriteString(line + "\n")
		}
		s.WriteString("\n" + dim.Render("j/k move  enter select  q quit"))
	case stateConfig:
		p := m.presets[m.cursor]
		s.WriteString(white.Render(p.Method+" / "+p.Name) + "\n\n")
		for i, param := range m.params {
			value := strconv.FormatFloat(param.Value, 'g', 6, 64)
			if i == m.paramCursor && m.editing {
				value = m.editBuf + "_"
			}
			line := Metric(param.Name, value)
			if i == m.paramCursor {
				line = cyan.Render("> ") + line
			} else {
				line = "  " + line
			}
			s.WriteString(line + "\n")
		}
		if m.err != nil {
			s.WriteString("\n" + StatusError.Render(m.err.Error()) + "\n")
		}
		s.WriteString("\n" + dim.Render("enter edit  h/l adjust  s start  esc back"))
	}
	return s.String()
}

// RunInteractive runs the picker full screen.
func RunInteractive(presets []Preset, paramsFor func(Preset) []Param, launch Launcher) error {
	_, err := tea.NewProgram(NewInteractiveApp(presets, paramsFor, launch), tea.WithAltScreen()).Run()
	return err
}
