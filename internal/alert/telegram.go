package alert

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"hittracker/internal/events"
)

const parseModeMarkdown = "Markdown"

// Sender is the part of the Telegram bot API the alerter needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Alerter forwards sync events that need a human to a Telegram chat.
type Alerter struct {
	bot    Sender
	chatID int64
	logger *zerolog.Logger

	// run id последнего уведомления о потере сессии
	mu      sync.Mutex
	alerted string
}

func NewAlerter(bot Sender, chatID int64, logger *zerolog.Logger) *Alerter {
	return &Alerter{
		bot:    bot,
		chatID: chatID,
		logger: logger,
	}
}

// NewBot connects to Telegram with token.
func NewBot(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	return bot, nil
}

// Subscribe registers the alerter on bus.
func (a *Alerter) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventAuthLost, a.onAuthLost)
	bus.Subscribe(events.EventRunFinished, a.onRunFinished)
}

func (a *Alerter) onAuthLost(e *events.Event) error {
	var p events.AuthLostPayload
	if err := e.Decode(&p); err != nil {
		return err
	}

	a.mu.Lock()
	if a.alerted == p.RunID {
		a.mu.Unlock()
		return nil
	}
	a.alerted = p.RunID
	a.mu.Unlock()

	text := fmt.Sprintf("*Marketplace session expired*\nSync run `%s` stopped at %s.\nLog in again and update the cookie, then run `hittracker sync resume`.",
		p.RunID, p.At.Format(time.RFC3339))
	return a.SendMarkdown(text)
}

func (a *Alerter) onRunFinished(e *events.Event) error {
	var p events.RunPayload
	if err := e.Decode(&p); err != nil {
		return err
	}

	a.mu.Lock()
	if a.alerted == p.RunID {
		a.alerted = ""
	}
	a.mu.Unlock()

	// auth_lost уже отправлен отдельно
	if p.Status != "failed" {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*Sync run failed*\nKind: %s\n", p.Kind)
	if p.Date != "" {
		fmt.Fprintf(&b, "Date: %s\n", p.Date)
	}
	if p.Failed > 0 {
		fmt.Fprintf(&b, "Failed days: %d, synced: %d\n", p.Failed, p.Synced)
	}
	if p.Error != "" {
		fmt.Fprintf(&b, "Error: `%s`", truncate(p.Error, 300))
	}
	return a.SendMarkdown(b.String())
}

// SendMessage sends plain text to the alert chat.
func (a *Alerter) SendMessage(text string) error {
	return a.send(tgbotapi.NewMessage(a.chatID, text))
}

// SendMarkdown sends Markdown text to the alert chat.
func (a *Alerter) SendMarkdown(text string) error {
	msg := tgbotapi.NewMessage(a.chatID, text)
	msg.ParseMode = parseModeMarkdown
	return a.send(msg)
}

func (a *Alerter) send(msg tgbotapi.MessageConfig) error {
	if _, err := a.bot.Send(msg); err != nil {
		a.logger.Error().Err(err).Int64("chat_id", a.chatID).Msg("Failed to send alert")
		return fmt.Errorf("send alert: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
