package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"
)

var (
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	itemStyle     = lipgloss.NewStyle().PaddingLeft(2)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Quit   key.Binding
}

var keys = keyMap{
	Up:     key.NewBinding(key.WithKeys("up", "ctrl+p", "ctrl+k")),
	Down:   key.NewBinding(key.WithKeys("down", "ctrl+n", "ctrl+j")),
	Select: key.NewBinding(key.WithKeys("enter")),
	Quit:   key.NewBinding(key.WithKeys("esc", "ctrl+c")),
}

// picker is the built-in fuzzy list used when fzf is not installed.
type picker struct {
	prompt  string
	items   []string
	filter  textinput.Model
	matches []int // indexes into items, best match first
	cursor  int
	height  int

	chosen    int
	cancelled bool
}

func newPicker(prompt string, items []string) picker {
	ti := textinput.New()
	ti.Prompt = prompt + " > "
	ti.PromptStyle = promptStyle
	ti.Focus()

	p := picker{prompt: prompt, items: items, filter: ti, height: 15, chosen: -1}
	p.refilter()
	return p
}

func (p *picker) refilter() {
	q := strings.TrimSpace(p.filter.Value())
	p.matches = p.matches[:0]
	if q == "" {
		for i := range p.items {
			p.matches = append(p.matches, i)
		}
	} else {
		for _, m := range fuzzy.Find(q, p.items) {
			p.matches = append(p.matches, m.Index)
		}
	}
	if p.cursor >= len(p.matches) {
		p.cursor = max(len(p.matches)-1, 0)
	}
}

func (p picker) Init() tea.Cmd {
	return textinput.Blink
}

func (p picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.height = max(msg.Height-3, 1)
		return p, nil
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			p.cancelled = true
			return p, tea.Quit
		case key.Matches(msg, keys.Select):
			if len(p.matches) > 0 {
				p.chosen = p.matches[p.cursor]
				return p, tea.Quit
			}
			return p, nil
		case key.Matches(msg, keys.Up):
			if p.cursor > 0 {
				p.cursor--
			}
			return p, nil
		case key.Matches(msg, keys.Down):
			if p.cursor < len(p.matches)-1 {
				p.cursor++
			}
			return p, nil
		}
	}

	var cmd tea.Cmd
	before := p.filter.Value()
	p.filter, cmd = p.filter.Update(msg)
	if p.filter.Value() != before {
		p.cursor = 0
		p.refilter()
	}
	return p, cmd
}

func (p picker) View() string {
	var b strings.Builder
	b.WriteString(p.filter.View())
	b.WriteString("\n")

	start := 0
	if p.cursor >= p.height {
		start = p.cursor - p.height + 1
	}
	end := min(start+p.height, len(p.matches))
	for i := start; i < end; i++ {
		label := p.items[p.matches[i]]
		if i == p.cursor {
			b.WriteString(cursorStyle.Render("> ") + selectedStyle.Render(label))
		} else {
			b.WriteString(itemStyle.Render(label))
		}
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("  %d/%d", len(p.matches), len(p.items))))
	return b.String()
}

func runPicker(prompt string, items []string) (int, error) {
	m, err := tea.NewProgram(newPicker(prompt, items), tea.WithOutput(os.Stderr)).Run()
	if err != nil {
		return -1, fmt.Errorf("running picker: %w", err)
	}
	p := m.(picker)
	if p.cancelled || p.chosen < 0 {
		return -1, ErrCancelled
	}
	return p.chosen, nil
}
