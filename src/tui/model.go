package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jinjor/lan-jam/src/audio"
	"github.com/jinjor/lan-jam/src/transport"
)

const (
	rows         = 12
	steps        = 16
	refreshEvery = 50 * time.Millisecond
	keyNoteHold  = 250 * time.Millisecond
	curvePoints  = 48
	bandCount    = 32
)

var degreeNames = [rows]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// pianoKeys maps the bottom keyboard row to scale degrees.
var pianoKeys = map[string]int{
	"z": 0, "s": 1, "x": 2, "d": 3, "c": 4, "v": 5,
	"g": 6, "b": 7, "h": 8, "n": 9, "j": 10, "m": 11,
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	activeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	cursorStyle = lipgloss.NewStyle().Reverse(true)
	playStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60")).Padding(0, 1)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("180"))
	sparkRunes  = []rune("▁▂▃▄▅▆▇█")
)

// Model is the terminal control surface. It only writes Params and issues
// requests; it never touches the engine directly.
type Model struct {
	Params     *audio.Params
	Stats      *audio.Stats
	Control    *transport.Control
	RxStats    *transport.Stats
	Scope      *audio.Scope
	SampleRate int
	Host       string

	row      int
	col      int
	osc      int
	quitting bool
	presses  [rows]uint64 // per-degree press count; a release only ends its own press
}

type tickMsg time.Time

type noteOffMsg struct {
	degree int
	press  uint64
}

func NewModel(params *audio.Params, stats *audio.Stats, control *transport.Control, rx *transport.Stats, scope *audio.Scope, sampleRate int, host string) Model {
	return Model{
		Params:     params,
		Stats:      stats,
		Control:    control,
		RxStats:    rx,
		Scope:      scope,
		SampleRate: sampleRate,
		Host:       host,
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func releaseAfter(degree int, press uint64) tea.Cmd {
	return tea.Tick(keyNoteHold, func(time.Time) tea.Msg {
		return noteOffMsg{degree: degree, press: press}
	})
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, tick()
	case noteOffMsg:
		if msg.press == m.presses[msg.degree] {
			m.Params.RequestNoteOff(msg.degree)
		}
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg.String())
	}
	return m, nil
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	p := m.Params
	if degree, ok := pianoKeys[key]; ok {
		p.RequestNoteOn(degree)
		m.presses[degree]++
		return m, releaseAfter(degree, m.presses[degree])
	}
	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	// grid
	case "up":
		m.row = (m.row + 1) % rows
	case "down":
		m.row = (m.row + rows - 1) % rows
	case "left":
		m.col = (m.col + steps - 1) % steps
	case "right":
		m.col = (m.col + 1) % steps
	case " ":
		p.ToggleCell(m.row, m.col)

	// transport
	case "p":
		if p.Playing() {
			p.SetPlaying(false)
		} else {
			p.Play()
		}
	case "P":
		p.Restart()
	case "0":
		p.Stop()
	case "+", "=":
		p.SetBPM(p.BPM() + 5)
	case "-", "_":
		p.SetBPM(p.BPM() - 5)

	// oscillators
	case "tab":
		m.osc = (m.osc + 1) % 3
	case "w":
		p.SetOscWave(m.osc, p.OscWave(m.osc).Next())
	case "o":
		p.SetOscOctave(m.osc, p.OscOctave(m.osc)+12)
	case "O":
		p.SetOscOctave(m.osc, p.OscOctave(m.osc)-12)
	case "e":
		p.SetOscDetune(m.osc, p.OscDetune(m.osc)+5)
	case "E":
		p.SetOscDetune(m.osc, p.OscDetune(m.osc)-5)

	// filter
	case "f":
		p.SetFilterType(p.FilterType().Next())
	case "]":
		p.SetCutoff(p.Cutoff() * 1.1)
	case "[":
		p.SetCutoff(p.Cutoff() / 1.1)
	case "}":
		p.SetResonance(p.Resonance() + 0.1)
	case "{":
		p.SetResonance(p.Resonance() - 0.1)
	case ".":
		p.SetSlope(p.Slope() + 1)
	case ",":
		p.SetSlope(p.Slope() - 1)

	// envelope
	case "t":
		p.SetAttack(p.Attack() + 0.01)
	case "T":
		p.SetAttack(p.Attack() - 0.01)
	case "y":
		p.SetDecay(p.Decay() + 0.02)
	case "Y":
		p.SetDecay(p.Decay() - 0.02)
	case "u":
		p.SetSustain(p.Sustain() + 0.05)
	case "U":
		p.SetSustain(p.Sustain() - 0.05)
	case "r":
		p.SetRelease(p.Release() + 0.05)
	case "R":
		p.SetRelease(p.Release() - 0.05)

	// performance
	case ">":
		p.SetOctave(p.Octave() + 1)
	case "<":
		p.SetOctave(p.Octave() - 1)
	case ")":
		p.SetPolyphony(p.Polyphony() + 1)
	case "(":
		p.SetPolyphony(p.Polyphony() - 1)

	// network
	case "C":
		if m.Control != nil && m.Host != "" {
			m.Control.RequestConnect(m.Host)
		}
	case "F":
		if m.Control != nil {
			m.Control.RequestDiscover()
		}
	}
	return m, nil
}

// ----- View ----- //

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	p := m.Params
	var b strings.Builder

	state := "stopped"
	if p.Playing() {
		state = playStyle.Render("playing")
	}
	fmt.Fprintf(&b, "%s  %s  %s %d  %s %d  %s %d\n\n",
		titleStyle.Render("LAN JAM"), state,
		labelStyle.Render("bpm"), p.BPM(),
		labelStyle.Render("octave"), p.Octave(),
		labelStyle.Render("poly"), p.Polyphony())

	b.WriteString(m.gridView())
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		panelStyle.Render(m.oscView()),
		panelStyle.Render(m.filterView()),
		panelStyle.Render(m.envelopeView()),
	))
	b.WriteString("\n")
	if m.Scope != nil {
		b.WriteString(labelStyle.Render("out "))
		b.WriteString(sparkline(m.Scope.Spectrum(m.SampleRate, bandCount), -72, 0))
		b.WriteString("\n")
	}
	b.WriteString(m.statusView())
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("arrows/space grid  p/P/0 play  +/- bpm  tab/w/o/e osc  f/[]/{}/,. filter  tyur adsr  zsxdcvgbhnjm keys  <> octave  () poly  C/F connect/find  q quit"))
	return b.String()
}

func (m Model) gridView() string {
	p := m.Params
	current := p.CurrentStep()
	playing := p.Playing()
	var b strings.Builder
	for row := rows - 1; row >= 0; row-- {
		fmt.Fprintf(&b, "%-3s", degreeNames[row])
		for step := 0; step < steps; step++ {
			cell := "·"
			if p.Cell(row, step) {
				cell = activeStyle.Render("●")
			} else if playing && step == current {
				cell = playStyle.Render("│")
			}
			if row == m.row && step == m.col {
				cell = cursorStyle.Render(cell)
			}
			b.WriteString(cell)
			if step%4 == 3 {
				b.WriteString("  ")
			} else {
				b.WriteString(" ")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) oscView() string {
	p := m.Params
	lines := make([]string, 0, 4)
	lines = append(lines, titleStyle.Render("osc"))
	for i := 0; i < 3; i++ {
		marker := " "
		if i == m.osc {
			marker = ">"
		}
		lines = append(lines, fmt.Sprintf("%s%d %-6s %+3d st %+4.0f ct", marker, i+1, p.OscWave(i), p.OscOctave(i), p.OscDetune(i)))
	}
	return strings.Join(lines, "\n")
}

func (m Model) filterView() string {
	p := m.Params
	return strings.Join([]string{
		titleStyle.Render("filter"),
		fmt.Sprintf("%-4s %6.0f Hz  q %.2f  x%d", p.FilterType(), p.Cutoff(), p.Resonance(), p.Slope()),
		sparkline(p.FilterShape(m.SampleRate, curvePoints), -48, 12),
	}, "\n")
}

func (m Model) envelopeView() string {
	p := m.Params
	return strings.Join([]string{
		titleStyle.Render("adsr"),
		fmt.Sprintf("a %.2fs  d %.2fs", p.Attack(), p.Decay()),
		fmt.Sprintf("s %.2f   r %.2fs", p.Sustain(), p.Release()),
	}, "\n")
}

func (m Model) statusView() string {
	parts := []string{}
	if m.Stats != nil {
		parts = append(parts, m.Stats.String())
	}
	if m.RxStats != nil {
		parts = append(parts, fmt.Sprintf("rx=%d malformed=%d welcomed=%v",
			m.RxStats.RxPackets.Load(), m.RxStats.Malformed.Load(), m.RxStats.Welcomed.Load()))
	}
	if m.Control != nil {
		parts = append(parts, m.Control.Status())
	}
	return statusStyle.Render(strings.Join(parts, "  "))
}

// sparkline draws values clamped to [lo,hi] with block characters.
func sparkline(values []float64, lo float64, hi float64) string {
	out := make([]rune, len(values))
	top := len(sparkRunes) - 1
	for i, v := range values {
		if v < lo {
			v = lo
		}
		if v > hi {
			v = hi
		}
		out[i] = sparkRunes[int((v-lo)/(hi-lo)*float64(top)+0.5)]
	}
	return string(out)
}
