// Package cli - терминальный вывод и разбор команд для paircall call.
package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/qrave1/PairCall/internal/domain/signaling"
	"github.com/qrave1/PairCall/internal/usecase"
)

var (
	primary = lipgloss.Color("#22d3ee")
	success = lipgloss.Color("#10B981")
	warning = lipgloss.Color("#F59E0B")
	failure = lipgloss.Color("#EF4444")
	muted   = lipgloss.Color("#6B7280")

	keyBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primary).
			Padding(0, 2).
			Bold(true)

	mutedStyle  = lipgloss.NewStyle().Foreground(muted)
	selfStyle   = lipgloss.NewStyle().Foreground(primary).Bold(true)
	peerStyle   = lipgloss.NewStyle().Foreground(success).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(failure).Bold(true)
	statusStyle = lipgloss.NewStyle().Padding(0, 1).Bold(true)
)

func statusColor(s usecase.Status) lipgloss.Color {
	switch s {
	case usecase.StatusConnected:
		return success
	case usecase.StatusPartnerDisconnected, usecase.StatusSignalingUnavailable:
		return failure
	case usecase.StatusAwaitingPartner:
		return warning
	default:
		return primary
	}
}

// Console печатает события сессии. Снапшоты чата приходят целиком, печатаются только новые сообщения.
type Console struct {
	mu       sync.Mutex
	out      io.Writer
	identity string
	printed  map[int64]struct{}
}

func NewConsole(out io.Writer, identity string) *Console {
	return &Console{out: out, identity: identity, printed: make(map[int64]struct{})}
}

func (c *Console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(c.out, s)
}

// Reset забывает напечатанные сообщения. Нужен при переходе к следующему собеседнику.
func (c *Console) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.printed = make(map[int64]struct{})
}

func (c *Console) Key(key string) {
	c.println(keyBoxStyle.Render("room " + key))
	c.println(mutedStyle.Render("share the key with your partner; /next finds a new one, /quit exits"))
}

func (c *Console) Status(s usecase.Status) {
	c.println(statusStyle.Foreground(statusColor(s)).Render("● " + s.Text()))
}

func (c *Console) Partner(ref string) {
	if ref == "" {
		return
	}

	c.println(mutedStyle.Render("partner: " + ref))
}

func (c *Console) Track(t usecase.RemoteTrack) {
	c.println(mutedStyle.Render(fmt.Sprintf("receiving %s (%s)", t.Kind, t.Codec)))
}

func (c *Console) Error(err error) {
	c.println(errorStyle.Render("✗ " + err.Error()))
}

func (c *Console) Messages(msgs []signaling.MessageRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range msgs {
		if _, ok := c.printed[m.ID]; ok {
			continue
		}
		c.printed[m.ID] = struct{}{}

		who := peerStyle.Render(m.SenderRef)
		if m.SenderRef == c.identity {
			who = selfStyle.Render("you")
		}

		fmt.Fprintf(c.out, "%s %s %s\n", mutedStyle.Render(m.Timestamp.Format("15:04")), who, m.Text)
	}
}

// Hooks связывает консоль с колбэками сессии
func (c *Console) Hooks() usecase.SessionHooks {
	return usecase.SessionHooks{
		OnStatus:      c.Status,
		OnPartner:     c.Partner,
		OnRemoteTrack: c.Track,
		OnMessages:    c.Messages,
		OnError:       c.Error,
	}
}

type Command int

const (
	CommandNone Command = iota
	CommandSay
	CommandNext
	CommandQuit
	CommandStatus
	CommandUnknown
)

// ParseLine разбирает строку stdin: команды начинаются со слеша, остальное - сообщение чата
func ParseLine(line string) (Command, string) {
	line = strings.TrimSpace(line)

	if line == "" {
		return CommandNone, ""
	}

	if !strings.HasPrefix(line, "/") {
		return CommandSay, line
	}

	switch strings.ToLower(strings.Fields(line)[0]) {
	case "/next", "/n":
		return CommandNext, ""
	case "/quit", "/q", "/exit":
		return CommandQuit, ""
	case "/status":
		return CommandStatus, ""
	default:
		return CommandUnknown, line
	}
}
