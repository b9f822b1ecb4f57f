package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/trakline/trakline/internal/config"
	"github.com/trakline/trakline/internal/protocol"
)

// App implements the bubbletea tea.Model interface for the terminal client.
type App struct {
	cfg      config.ClientConfig
	session  *Session
	token    string
	userID   string
	username string

	connected bool
	online    []string
	lines     []string
	logLine   string

	input    textinput.Model
	viewport viewport.Model
	width    int
	height   int
}

type envelopeMsg protocol.Envelope

type sessionClosedMsg struct{}

type connectResultMsg struct{ err error }

// NewApp returns a Bubble Tea model pre-populated with defaults.
func NewApp(cfg config.ClientConfig) tea.Model {
	input := textinput.New()
	input.Placeholder = "/login <user> <password>  —  /help for commands"
	input.Focus()
	return &App{
		cfg:      cfg,
		input:    input,
		viewport: viewport.New(0, 0),
		lines:    make([]string, 0, 128),
	}
}

// Init is part of the tea.Model interface.
func (a *App) Init() tea.Cmd {
	return a.connectCmd()
}

func (a *App) connectCmd() tea.Cmd {
	return func() tea.Msg {
		a.session = NewSession(a.cfg)
		return connectResultMsg{err: a.session.Connect(context.Background())}
	}
}

func (a *App) waitForEnvelope() tea.Cmd {
	return func() tea.Msg {
		env, ok := <-a.session.Incoming
		if !ok {
			return sessionClosedMsg{}
		}
		return envelopeMsg(env)
	}
}

// Update handles user input and internal events.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = m.Width, m.Height
		a.resize()
		return a, nil
	case tea.KeyMsg:
		switch m.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			if a.session != nil {
				_ = a.session.Close()
			}
			return a, tea.Quit
		case tea.KeyEnter:
			line := strings.TrimSpace(a.input.Value())
			a.input.SetValue("")
			if line != "" {
				a.handleInput(line)
			}
			return a, nil
		}
	case connectResultMsg:
		if m.err != nil {
			a.logLine = fmt.Sprintf("connect failed: %v", m.err)
			return a, nil
		}
		a.logLine = "connected to " + a.cfg.ServerAddr
		return a, a.waitForEnvelope()
	case envelopeMsg:
		a.handleEnvelope(protocol.Envelope(m))
		return a, a.waitForEnvelope()
	case sessionClosedMsg:
		a.connected = false
		a.logLine = "connection closed"
		return a, nil
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a *App) handleInput(line string) {
	if !strings.HasPrefix(line, "/") {
		a.logLine = "commands start with / — try /help"
		return
	}
	fields := strings.Fields(line)
	switch fields[0] {
	case "/help":
		a.appendLine(helpText)
	case "/login", "/register":
		if len(fields) < 3 {
			a.logLine = "usage: " + fields[0] + " <user> <password>"
			return
		}
		a.username = fields[1]
		a.sendAuth(strings.TrimPrefix(fields[0], "/"), fields[1], fields[2])
	case "/msg":
		if len(fields) < 3 {
			a.logLine = "usage: /msg <user-id> <text>"
			return
		}
		a.sendCommand("message_send", protocol.MessageSendRequest{
			ReceiverID: fields[1],
			Text:       strings.Join(fields[2:], " "),
		})
	case "/gmsg":
		if len(fields) < 3 {
			a.logLine = "usage: /gmsg <group-id> <text>"
			return
		}
		a.sendCommand("message_send", protocol.MessageSendRequest{
			GroupID: fields[1],
			Text:    strings.Join(fields[2:], " "),
		})
	case "/group":
		if len(fields) < 2 {
			a.logLine = "usage: /group <name> [member-id ...]"
			return
		}
		a.sendCommand("group_create", protocol.GroupCreateRequest{
			Name:      fields[1],
			MemberIDs: fields[2:],
		})
	case "/read":
		if len(fields) < 2 {
			a.logLine = "usage: /read <user-id>"
			return
		}
		a.sendCommand("conversation_read", protocol.ConversationReadRequest{PartnerID: fields[1]})
	case "/history":
		if len(fields) < 2 {
			a.logLine = "usage: /history <user-id>"
			return
		}
		a.sendCommand("history", protocol.HistoryRequest{PartnerID: fields[1]})
	case "/quit":
		if a.session != nil {
			_ = a.session.Close()
		}
	default:
		a.logLine = "unknown command — try /help"
	}
}

func (a *App) sendAuth(action, username, password string) {
	env := protocol.Envelope{
		Type: protocol.MessageTypeAuthRequest,
		Payload: protocol.AuthRequest{
			Action:   action,
			Username: username,
			Password: password,
		},
	}
	a.sendEnvelope(env)
}

func (a *App) sendCommand(action string, payload interface{}) {
	if a.token == "" {
		a.logLine = "log in first"
		return
	}
	env := protocol.Envelope{
		Type:     protocol.MessageTypeCommand,
		Token:    a.token,
		Metadata: map[string]interface{}{"action": action},
		Payload:  payload,
	}
	a.sendEnvelope(env)
}

func (a *App) sendEnvelope(env protocol.Envelope) {
	if a.session == nil {
		a.logLine = "not connected"
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.session.Send(ctx, env); err != nil {
		a.logLine = fmt.Sprintf("send failed: %v", err)
	}
}

func (a *App) handleEnvelope(env protocol.Envelope) {
	switch env.Type {
	case protocol.MessageTypeAck:
		var ack protocol.AckPayload
		if decode(env.Payload, &ack) == nil && ack.Status != "ok" {
			a.logLine = "server: " + ack.Reason
		}
	case protocol.MessageTypeAuthResponse:
		var resp protocol.AuthResponse
		if decode(env.Payload, &resp) != nil {
			return
		}
		a.token = resp.Token
		a.userID = resp.UserID
		a.connected = true
		a.logLine = "logged in as " + a.username
		a.sendCommand("connect", nil)
	case protocol.MessageTypeEvent:
		a.handleEvent(env)
	}
}

func (a *App) handleEvent(env protocol.Envelope) {
	event := ""
	if env.Metadata != nil {
		if s, ok := env.Metadata["event"].(string); ok {
			event = s
		}
	}
	switch event {
	case protocol.EventPresence:
		var p protocol.PresencePayload
		if decode(env.Payload, &p) == nil {
			a.online = p.Users
		}
	case protocol.EventMessageNew, protocol.EventGroupMessageNew:
		var m protocol.ChatMessage
		if decode(env.Payload, &m) == nil {
			a.appendLine(formatMessage(m))
			if m.SenderID != a.userID {
				a.sendCommand("message_delivered", protocol.DeliveredRequest{MessageID: m.ID})
			}
		}
	case protocol.EventMessageUpdated:
		var m protocol.ChatMessage
		if decode(env.Payload, &m) == nil {
			a.appendLine("(edited) " + formatMessage(m))
		}
	case protocol.EventMessageDeleted:
		var ref protocol.MessageRefPayload
		if decode(env.Payload, &ref) == nil {
			a.appendLine("message " + ref.MessageID + " deleted")
		}
	case protocol.EventMessageDelivered:
		var d protocol.DeliveredPayload
		if decode(env.Payload, &d) == nil {
			a.appendLine(fmt.Sprintf("✓ delivered to %s", d.UserID))
		}
	case protocol.EventConversationRead:
		var r protocol.ReadPayload
		if decode(env.Payload, &r) == nil {
			a.appendLine(fmt.Sprintf("✓✓ read by %s", r.UserID))
		}
	case protocol.EventStatusNew:
		var s protocol.StatusView
		if decode(env.Payload, &s) == nil {
			a.appendLine("new status from " + s.OwnerID)
		}
	case protocol.EventPostNew:
		var p protocol.PostView
		if decode(env.Payload, &p) == nil {
			a.appendLine("new post from " + p.OwnerID)
		}
	case protocol.EventCallUnavailable:
		var u protocol.CallUnavailablePayload
		if decode(env.Payload, &u) == nil {
			a.appendLine(u.ToUserID + " is unavailable")
		}
	case "history":
		var h protocol.ChatHistory
		if decode(env.Payload, &h) == nil {
			for _, m := range h.Messages {
				a.appendLine(formatMessage(m))
			}
		}
	case "group_created":
		var g protocol.GroupView
		if decode(env.Payload, &g) == nil {
			a.appendLine("group created: " + g.Name + " (" + g.ID + ")")
		}
	}
}

func (a *App) appendLine(line string) {
	a.lines = append(a.lines, line)
	a.refreshViewport()
}

func formatMessage(m protocol.ChatMessage) string {
	when := time.Unix(m.CreatedAt, 0).Format("15:04")
	scope := m.SenderID
	if m.GroupID != "" {
		scope = m.GroupID + "/" + m.SenderID
	}
	return fmt.Sprintf("[%s] %s: %s", when, scope, m.Text)
}

func decode(payload interface{}, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
