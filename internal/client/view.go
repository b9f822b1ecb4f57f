package client

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	figure "github.com/common-nighthawk/go-figure"
)

const helpText = `commands:
  /login <user> <password>     log in
  /register <user> <password>  create an account
  /msg <user-id> <text>        send a direct message
  /gmsg <group-id> <text>      send a group message
  /group <name> [member ...]   create a group
  /read <user-id>              mark a conversation read
  /history <user-id>           fetch recent messages
  /quit                        disconnect`

var (
	sidebarStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			PaddingLeft(1)
	logStyle    = lipgloss.NewStyle().Faint(true)
	onlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

var banner = buildBanner()

func buildBanner() string {
	fig := figure.NewColorFigure("TRAKLINE", "small", "cyan", true)
	return fig.String() + "\nrealtime presence, messages and traks\n"
}

func (a *App) View() string {
	var b strings.Builder

	if !a.connected {
		b.WriteString(banner)
		b.WriteString("\n")
	} else {
		content := a.viewport.View()
		sidebar := a.presenceView()
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, content, sidebar))
		b.WriteString("\n")
	}

	b.WriteString(a.input.View())
	b.WriteString("\n")
	b.WriteString(logStyle.Render(a.logLine))
	return b.String()
}

func (a *App) presenceView() string {
	var b strings.Builder
	b.WriteString("online\n")
	if len(a.online) == 0 {
		b.WriteString("nobody\n")
	}
	for _, id := range a.online {
		label := id
		if id == a.userID {
			label += " (you)"
		}
		b.WriteString(onlineStyle.Render("● ") + label + "\n")
	}
	return sidebarStyle.Render(b.String())
}

func (a *App) resize() {
	sidebarWidth := 28
	width := a.width - sidebarWidth
	if width < 20 {
		width = a.width
	}
	height := a.height - 3
	if height < 1 {
		height = 1
	}
	a.viewport.Width = width
	a.viewport.Height = height
	a.input.Width = a.width - 4
	a.refreshViewport()
}

func (a *App) refreshViewport() {
	a.viewport.SetContent(strings.Join(a.lines, "\n"))
	a.viewport.GotoBottom()
}
