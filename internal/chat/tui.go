package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	glam "github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// Asker sends one message and waits for its reply.
type Asker interface {
	Ask(ctx context.Context, message string, timeout time.Duration) (string, error)
}

type replyMsg struct {
	text string
	err  error
}

type itemKind int

const (
	itemUser itemKind = iota
	itemReply
	itemNotice
)

type transcriptItem struct {
	kind itemKind
	text string // replies are markdown
}

type model struct {
	ctx     context.Context
	asker   Asker
	timeout time.Duration

	vp      viewport.Model
	ti      textinput.Model
	spin    spinner.Model
	glam    *glam.TermRenderer
	width   int
	height  int
	ready   bool
	waiting bool

	border      lipgloss.Style
	userStyle   lipgloss.Style
	noticeStyle lipgloss.Style

	items []transcriptItem
}

func newModel(ctx context.Context, asker Asker, timeout time.Duration) *model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type a message… (Enter to send, Esc to quit)"
	ti.CharLimit = 0
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("129"))

	m := &model{
		ctx:     ctx,
		asker:   asker,
		timeout: timeout,
		ti:      ti,
		spin:    sp,
		border:  lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("240")),
		userStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("129")).
			Foreground(lipgloss.Color("252")).
			PaddingLeft(1).
			PaddingRight(1),
		noticeStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
	}
	_ = m.rebuildRenderer(80)
	m.items = append(m.items, transcriptItem{kind: itemNotice, text: "Welcome to grokrelay chat."})
	return m
}

// rebuildRenderer recreates the glamour renderer for the given wrap width.
func (m *model) rebuildRenderer(wrap int) error {
	if wrap < 10 {
		wrap = 10
	}
	r, err := glam.NewTermRenderer(
		glam.WithStylePath("dark"), // fixed style, no terminal queries
		glam.WithWordWrap(wrap),
	)
	if err != nil {
		return err
	}
	m.glam = r
	return nil
}

func (m *model) renderTranscript() string {
	var out strings.Builder
	userWidth := m.vp.Width - 4
	if userWidth < 1 {
		userWidth = 1
	}
	for _, it := range m.items {
		var block string
		switch it.kind {
		case itemUser:
			block = m.userStyle.Width(userWidth).Render(it.text)
		case itemReply:
			block = it.text
			if m.glam != nil {
				if rendered, err := m.glam.Render(it.text); err == nil {
					block = rendered
				}
			}
		default:
			block = m.noticeStyle.Render(it.text)
		}
		out.WriteString(block)
		if !strings.HasSuffix(block, "\n") {
			out.WriteString("\n")
		}
	}
	return out.String()
}

func (m *model) refresh() {
	m.vp.SetContent(m.renderTranscript())
	m.vp.GotoBottom()
}

func (m *model) recalcLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	m.ti.Width = m.width - 4
	vpH := m.height - 5
	if vpH < 3 {
		vpH = 3
	}
	m.vp.Width = m.width - 2
	m.vp.Height = vpH
	_ = m.rebuildRenderer(m.vp.Width - 2)
}

func (m *model) ask(text string) tea.Cmd {
	return func() tea.Msg {
		reply, err := m.asker.Ask(m.ctx, text, m.timeout)
		return replyMsg{text: reply, err: err}
	}
}

func (m *model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd
	if !m.waiting {
		m.ti, cmd = m.ti.Update(msg)
		cmds = append(cmds, cmd)
	}
	m.vp, cmd = m.vp.Update(msg)
	cmds = append(cmds, cmd)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		m.ready = true
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter && !m.waiting {
			text := strings.TrimSpace(m.ti.Value())
			if text != "" {
				m.items = append(m.items, transcriptItem{kind: itemUser, text: text})
				m.ti.Reset()
				m.waiting = true
				m.refresh()
				cmds = append(cmds, m.ask(text), m.spin.Tick)
			}
		}
		return m, tea.Batch(cmds...)

	case spinner.TickMsg:
		if m.waiting {
			m.spin, cmd = m.spin.Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)

	case replyMsg:
		m.waiting = false
		switch {
		case msg.err != nil:
			m.items = append(m.items, transcriptItem{kind: itemNotice, text: fmt.Sprintf("[error] %v", msg.err)})
		default:
			m.items = append(m.items, transcriptItem{kind: itemReply, text: msg.text})
		}
		m.refresh()
		return m, tea.Batch(cmds...)
	}

	return m, tea.Batch(cmds...)
}

func (m *model) View() string {
	if !m.ready {
		return "Initializing…"
	}
	top := m.border.Render(m.vp.View())
	bottom := m.ti.View()
	if m.waiting {
		bottom = m.spin.View() + " waiting for reply…"
	}
	return top + "\n" + m.border.Render(bottom)
}

// RunTUI runs the interactive chat until the user quits or ctx is done.
func RunTUI(ctx context.Context, asker Asker, timeout time.Duration) error {
	p := tea.NewProgram(newModel(ctx, asker, timeout), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("chat tui: %w", err)
	}
	return nil
}
