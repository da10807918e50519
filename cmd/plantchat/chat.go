package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/nstogner/plantchat/pkg/controller"
	"github.com/nstogner/plantchat/pkg/domain"
	"github.com/nstogner/plantchat/pkg/store"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)

	senderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("5")).
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")).
			Bold(true)

	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true).Padding(0, 1) // Red
)

var (
	chatConversation string
	chatContext      string
	chatLogFile      string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "chat in the terminal",
	Long: `Open a conversation in the terminal.

Enter sends, Esc stops the current answer, Ctrl+L clears the history and
Ctrl+C quits. Logs go to a file so they do not disturb the screen.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatConversation, "conversation", "default", "conversation id")
	chatCmd.Flags().StringVar(&chatContext, "context", "", "context hint sent with prompts, e.g. \"plant: Pothos\"")
	chatCmd.Flags().StringVar(&chatLogFile, "log-file", "plantchat.log", "log destination")
}

type snapshotMsg controller.Snapshot
type errMsg struct{ err error }

type model struct {
	ctx  context.Context
	ctrl *controller.Controller
	sub  <-chan controller.Snapshot
	hint string

	snap   controller.Snapshot
	width  int
	height int
	err    error

	// UI Components
	viewport viewport.Model
	textarea textarea.Model
	renderer *glamour.TermRenderer
}

func newRenderer(width int) *glamour.TermRenderer {
	// Use "light" style to avoid terminal queries that leak into input
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("light"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		slog.Warn("Markdown renderer unavailable", "error", err)
		return nil
	}
	return r
}

func initialModel(ctx context.Context, ctrl *controller.Controller, sub <-chan controller.Snapshot, hint string) model {
	ta := textarea.New()
	ta.Placeholder = "Ask about your plant..."
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 2000

	ta.SetWidth(80)
	ta.SetHeight(3)

	// Remove cursor line styling
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false

	vp := viewport.New(80, 20)

	return model{
		ctx:      ctx,
		ctrl:     ctrl,
		sub:      sub,
		hint:     hint,
		viewport: vp,
		textarea: ta,
		renderer: newRenderer(76),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, waitForSnapshot(m.sub))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	var tiCmd, vpCmd tea.Cmd
	m.textarea, tiCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, tiCmd, vpCmd)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.textarea.SetWidth(msg.Width)
		m.viewport.Height = msg.Height - m.textarea.Height() - 4 // Header, status, margins
		if m.viewport.Height < 0 {
			m.viewport.Height = 0
		}
		m.renderer = newRenderer(m.width - 4)
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEsc:
			m.ctrl.Cancel()
		case tea.KeyCtrlL:
			m.err = nil
			return m, m.clearCmd()
		case tea.KeyEnter:
			m.err = nil
			v := m.textarea.Value()
			m.textarea.Reset()
			return m, m.submitCmd(v)
		}

	case snapshotMsg:
		m.snap = controller.Snapshot(msg)
		m.refresh()
		cmds = append(cmds, waitForSnapshot(m.sub))

	case errMsg:
		m.err = msg.err
	}

	return m, tea.Batch(cmds...)
}

// refresh re-renders the transcript into the viewport.
func (m *model) refresh() {
	m.viewport.SetContent(m.transcript())
	m.viewport.GotoBottom()
}

func (m model) transcript() string {
	var sb strings.Builder
	for _, msg := range m.snap.Messages {
		if msg.Role == domain.RoleUser {
			sb.WriteString(userStyle.Render("You:"))
		} else {
			sb.WriteString(senderStyle.Render("Assistant:"))
		}
		sb.WriteString("\n")

		text := msg.Text
		if msg.IsDraft {
			// Drafts change on every delta; skip markdown until final.
			if text == "" {
				text = "..."
			}
			sb.WriteString(lipgloss.NewStyle().PaddingLeft(2).Render(text + " ▍"))
			sb.WriteString("\n\n")
			continue
		}
		if m.renderer != nil {
			if rendered, err := m.renderer.Render(text); err == nil {
				text = rendered
			}
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m model) status() string {
	switch m.snap.State {
	case controller.StateSending:
		return "Sending... (Esc to stop)"
	case controller.StateStreaming:
		return "Answering... (Esc to stop)"
	}
	return "Enter to send, Ctrl+L to clear, Ctrl+C to quit"
}

func (m model) View() string {
	var errorView string
	if m.err != nil {
		errorView = errorStyle.Width(m.width).Render(fmt.Sprintf("Error: %v", m.err))
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		titleStyle.Render("Plant Chat"),
		"",
		m.viewport.View(),
		statusStyle.Render(m.status()),
		errorView,
		m.textarea.View(),
	)
}

// Actions

func (m model) submitCmd(text string) tea.Cmd {
	ctrl, ctx, hint := m.ctrl, m.ctx, m.hint
	return func() tea.Msg {
		if err := ctrl.Submit(ctx, text, hint); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func (m model) clearCmd() tea.Cmd {
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		if err := ctrl.ClearHistory(ctx); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func waitForSnapshot(sub <-chan controller.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-sub
		if !ok {
			return nil
		}
		return snapshotMsg(snap)
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(chatLogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	setupLogging(f, cfg.LogLevel)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	kv, closeKV, err := openKV(cfg.Store)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer closeKV()

	t, err := newTransport(ctx, cfg.Remote)
	if err != nil {
		return fmt.Errorf("initialize transport: %w", err)
	}

	ctrl := controller.New(t, store.NewConversationStore(kv, chatConversation, cfg.Chat.Retention), controller.Options{
		ID:            chatConversation,
		HistoryWindow: cfg.Chat.HistoryWindow,
		Greeting:      cfg.Chat.Greeting,
	})
	// Dispose persists any partial answer; Wait lets that save finish
	// before the store closes.
	defer ctrl.Wait()
	defer ctrl.Dispose()

	if err := ctrl.Open(ctx, chatContext); err != nil {
		return err
	}
	sub, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	slog.Info("Chat started", "conversation", chatConversation, "transport", cfg.Remote.Transport)
	p := tea.NewProgram(initialModel(ctx, ctrl, sub, chatContext), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("terminal UI: %w", err)
	}
	return nil
}
