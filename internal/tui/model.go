package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// ---------- messages sent from the chat goroutine via program.Send() ----------

type readInputMsg struct{}

type inputResult struct {
	text string
	err  error
}

type userMsg struct{ text string }
type thinkingStartMsg struct{}
type textDeltaMsg struct{ delta string }
type textDoneMsg struct{ fullText string }
type systemMsg struct{ text string }
type errorMsg struct{ text string }
type tokensMsg struct{ n int }
type clearMsg struct{}
type chatDoneMsg struct{ err error }

// ---------- styles ----------

var (
	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")) // gray spinner

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

// ---------- Model ----------

const statusBarHeight = 1
const inputHeight = 1

// TUIConfig carries the labels shown in the status bar.
type TUIConfig struct {
	Provider string
	Model    string
	Profile  string
}

// Model is the bubbletea model managing the full TUI state.
type Model struct {
	viewport  viewport.Model
	textinput textinput.Model
	spinner   spinner.Model
	width     int
	height    int
	cfg       TUIConfig

	content   string // finished output
	live      string // raw text of the reply currently streaming
	streaming bool   // reply deltas are arriving
	thinking  bool   // waiting for the first delta
	inputMode bool   // text input is active (waiting for user)

	inputCh chan inputResult // send user input back to ReadInput()
	abortFn func() bool      // cancels the streaming reply

	quitting bool

	// status bar
	tokens int
}

// NewModel creates the initial bubbletea model.
func NewModel(inputCh chan inputResult, cfg TUIConfig) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 4096
	ti.Placeholder = "Send a message (/help for commands)"

	vp := viewport.New(80, 24)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return Model{
		viewport:  vp,
		textinput: ti,
		spinner:   sp,
		cfg:       cfg,
		inputCh:   inputCh,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := m.height - statusBarHeight - inputHeight
		if vpHeight < 1 {
			vpHeight = 1
		}
		m.viewport.Width = m.width
		m.viewport.Height = vpHeight
		m.textinput.Width = m.width - 4 // account for prompt

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
		if !m.thinking {
			return m, tea.Batch(cmds...)
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if m.inputMode {
				m.inputCh <- inputResult{err: fmt.Errorf("interrupted")}
				m.inputMode = false
				m.textinput.Blur()
			}
			m.quitting = true
			return m, tea.Quit
		case "enter":
			if m.inputMode {
				text := strings.TrimSpace(m.textinput.Value())
				m.textinput.SetValue("")
				m.inputCh <- inputResult{text: text}
				m.inputMode = false
				m.textinput.Blur()
			}
			return m, nil
		case "esc":
			if (m.thinking || m.streaming) && m.abortFn != nil {
				// Abort reports back through program.Send, which would
				// block if called from inside Update.
				go m.abortFn()
				return m, nil
			}
		}

		if m.inputMode {
			var cmd tea.Cmd
			m.textinput, cmd = m.textinput.Update(msg)
			cmds = append(cmds, cmd)
		}

	// ---------- custom messages from the chat goroutine ----------

	case readInputMsg:
		m.inputMode = true
		m.textinput.Focus()
		cmds = append(cmds, textinput.Blink)

	case userMsg:
		m.appendLine(userStyle.Render(m.wrap("You: " + msg.text)))

	case thinkingStartMsg:
		m.thinking = true
		m.streaming = false
		m.live = ""

	case textDeltaMsg:
		m.thinking = false
		m.streaming = true
		m.live += msg.delta

	case textDoneMsg:
		m.finishStream(msg.fullText)

	case systemMsg:
		m.appendLine(systemStyle.Render(m.wrap(msg.text)))

	case errorMsg:
		m.finishStream(m.live)
		m.appendLine(errorStyle.Render(m.wrap(msg.text)))

	case tokensMsg:
		m.tokens = msg.n

	case clearMsg:
		m.content = ""
		m.live = ""
		m.streaming = false
		m.thinking = false

	case chatDoneMsg:
		m.quitting = true
		return m, tea.Quit
	}

	// Update viewport
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoBottom()

	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, vpCmd)

	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	// Status bar
	status := fmt.Sprintf(" %s/%s | profile: %s | tokens: %d", m.cfg.Provider, m.cfg.Model, m.cfg.Profile, m.tokens)
	if m.thinking || m.streaming {
		status += " | esc to cancel"
	}
	bar := statusBarStyle.Width(m.width).Render(status)

	// Input line
	input := ""
	if m.inputMode {
		input = m.textinput.View()
	} else if m.thinking || m.streaming {
		input = hintStyle.Render("  waiting for reply…")
	}

	return m.viewport.View() + "\n" + bar + "\n" + input
}

// renderContent returns the viewport content, appending dynamic elements
// (live reply, spinner) that are not yet part of content.
func (m *Model) renderContent() string {
	out := m.content
	if m.live != "" {
		out += m.live + "\n"
	}
	if m.thinking {
		out += m.spinner.View() + " Thinking...\n"
	}
	return out
}

// ---------- markdown rendering ----------

// finishStream replaces the raw streamed text with glamour-rendered markdown.
func (m *Model) finishStream(fullText string) {
	m.thinking = false
	m.streaming = false
	m.live = ""
	if strings.TrimSpace(fullText) == "" {
		return
	}
	m.appendLine(renderMarkdown(fullText, m.width))
}

// renderMarkdown renders text for a terminal of the given width. On a
// renderer error the raw text is returned.
func renderMarkdown(text string, width int) string {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		return text
	}
	rendered, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(rendered, "\n")
}

// ---------- helpers ----------

func (m *Model) appendLine(text string) {
	m.content += text + "\n"
}

func (m *Model) wrap(text string) string {
	if m.width <= 0 {
		return text
	}
	return strings.Join(wrapByDisplayWidth(text, m.width-2), "\n")
}
