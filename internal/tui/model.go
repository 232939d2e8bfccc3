// Package tui is the interactive terminal chat window.
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"cleanse/internal/chat"
	"cleanse/internal/domain"
)

// ChannelID identifies the terminal conversation to the orchestrator.
const ChannelID = "tui"

type entry struct {
	role domain.Role
	text string
}

// answerMsg carries a finished answer back into the update loop.
type answerMsg struct {
	answer string
}

// Model is the Bubble Tea model for the chat window.
type Model struct {
	ctx        context.Context
	answerer   domain.Answerer
	input      textinput.Model
	viewport   viewport.Model
	transcript []entry
	subtitle   string
	status     string
	pending    bool
	ready      bool
}

// New creates a chat window that sends questions to answerer.
// subtitle describes the loaded index.
func New(ctx context.Context, answerer domain.Answerer, subtitle string) Model {
	ti := textinput.New()
	ti.Prompt = "Você: "
	ti.Placeholder = "Pergunte sobre League of Legends"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		ctx:      ctx,
		answerer: answerer,
		input:    ti,
		viewport: vp,
		subtitle: subtitle,
		status:   "Enter envia, sair ou Ctrl+C fecha.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around transcript and input boxes
		_, th := transcriptBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 2 + 1 + ih + 1 // header+subtitle, status, spacer
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil
	case answerMsg:
		m.pending = false
		m.transcript = append(m.transcript, entry{role: domain.RoleAssistant, text: msg.answer})
		m.status = "Pronto."
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter {
			return m.submit()
		}
		switch msg.String() {
		case "pgup":
			m.viewport.HalfViewUp()
			return m, nil
		case "pgdown":
			m.viewport.HalfViewDown()
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	q := strings.TrimSpace(m.input.Value())
	if q == "" {
		return m, nil
	}
	if chat.IsExit(q) {
		m.status = chat.Farewell
		return m, tea.Quit
	}
	if m.pending {
		m.status = "Aguarde a resposta anterior."
		return m, nil
	}
	m.input.Reset()
	m.pending = true
	m.status = Thinking
	m.transcript = append(m.transcript, entry{role: domain.RoleUser, text: q})
	m.refresh()

	ctx, answerer := m.ctx, m.answerer
	return m, func() tea.Msg {
		return answerMsg{answer: answerer.Answer(ctx, ChannelID, q)}
	}
}

// Thinking is shown while an answer is being computed.
const Thinking = "Analisando os dados do Reddit..."

// View renders the window.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Cleanse")
	subtitle := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.subtitle)
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	return header + "\n" + subtitle + "\n" + transcript + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.transcript) == 0 {
		return "Nenhuma pergunta ainda."
	}
	body := lipgloss.NewStyle().Width(max(10, m.viewport.Width-2))
	parts := make([]string, 0, len(m.transcript))
	for _, e := range m.transcript {
		label := assistantStyle.Render("Assistente:")
		if e.role == domain.RoleUser {
			label = userStyle.Render("Você:")
		}
		parts = append(parts, label+"\n"+body.Render(e.text))
	}
	return strings.Join(parts, "\n\n")
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)
