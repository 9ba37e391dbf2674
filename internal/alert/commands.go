package alert

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hittracker/internal/domain"
	"hittracker/internal/models"
	"hittracker/internal/overview"
	"hittracker/internal/service"
)

const helpText = `Commands:
/status - current sync progress
/today, /week, /month - overview of the period
/totals - pending, awaiting and transferable totals
/sync - sync every unsettled dashboard day
/synctoday - resync the business date
/resume - retry days left pending`

// Updater is the bot API the command loop needs.
type Updater interface {
	Sender
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Overviews serves period rollups and standing totals.
type Overviews interface {
	Period(ctx context.Context, period string) (*overview.Overview, error)
	Totals(ctx context.Context) (*overview.Totals, error)
}

// Commands answers chat commands from the alert chat.
type Commands struct {
	bot       Updater
	chatID    int64
	runner    domain.SyncRunner
	overviews Overviews
	logger    *zerolog.Logger
}

func NewCommands(bot Updater, chatID int64, runner domain.SyncRunner, overviews Overviews, logger *zerolog.Logger) *Commands {
	return &Commands{bot: bot, chatID: chatID, runner: runner, overviews: overviews, logger: logger}
}

// Start polls updates until ctx is done.
func (c *Commands) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			c.bot.StopReceivingUpdates()
			c.logger.Info().Msg("Command loop stopping")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			c.processUpdate(ctx, update)
		}
	}
}

func (c *Commands) processUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || !msg.IsCommand() {
		return
	}
	// только чат оповещений
	if msg.Chat.ID != c.chatID {
		c.logger.Warn().Int64("chat_id", msg.Chat.ID).Msg("Ignoring command from unknown chat")
		return
	}

	updateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	l := c.logger.With().Str("request_id", uuid.NewString()).Str("command", msg.Command()).Logger()
	c.withRecovery(&l, func() {
		reply := c.handle(updateCtx, msg.Command())
		if err := c.reply(reply); err != nil {
			l.Error().Err(err).Msg("Failed to answer command")
		}
	})
}

func (c *Commands) handle(ctx context.Context, command string) string {
	switch strings.ToLower(command) {
	case "status":
		return c.status(ctx)
	case "today", "week", "month":
		return c.overview(ctx, command)
	case "totals":
		return c.totals(ctx)
	case "sync":
		return c.start(models.SyncKindLast45)
	case "synctoday":
		return c.start(models.SyncKindDay)
	case "resume":
		return c.start(models.SyncKindResume)
	default:
		return helpText
	}
}

func (c *Commands) status(ctx context.Context) string {
	p, err := c.runner.Progress(ctx)
	if err != nil {
		return "Failed to load progress: " + err.Error()
	}
	if p == nil {
		return "No sync has run yet."
	}

	var b strings.Builder
	state := "finished"
	if p.Running {
		state = "running"
	}
	fmt.Fprintf(&b, "Sync %s (%s), %s\n", p.RunID, p.Kind, state)
	if p.Message != "" {
		fmt.Fprintf(&b, "%s\n", p.Message)
	}
	if len(p.Days) > 0 {
		fmt.Fprintf(&b, "Days touched: %d\n", len(p.Days))
	}
	if p.AuthLost {
		b.WriteString("Marketplace session expired.\n")
	}
	if p.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", truncate(p.Error, 300))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Commands) overview(ctx context.Context, period string) string {
	o, err := c.overviews.Period(ctx, period)
	if err != nil {
		return "Failed to build overview: " + err.Error()
	}

	counts := o.Counts
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s - %s)\n", o.Window.Label, o.Window.Start, o.Window.End)
	fmt.Fprintf(&b, "Submitted: %d ($%s)\n", counts.Submitted.Count, counts.Submitted.Value.StringFixed(2))
	fmt.Fprintf(&b, "Approved: %d ($%s)\n", counts.Approved.Count, counts.Approved.Value.StringFixed(2))
	fmt.Fprintf(&b, "Pending: %d ($%s)\n", counts.Pending.Count, counts.Pending.Value.StringFixed(2))
	fmt.Fprintf(&b, "Returned: %d, rejected: %d", counts.Returned.Count, counts.Rejected.Count)
	if len(o.Requesters) > 0 {
		top := o.Requesters[0]
		fmt.Fprintf(&b, "\nTop requester: %s, %d ($%s)", top.Name, top.Count, top.Value.StringFixed(2))
	}
	return b.String()
}

func (c *Commands) totals(ctx context.Context) string {
	t, err := c.overviews.Totals(ctx)
	if err != nil {
		return "Failed to load totals: " + err.Error()
	}
	text := fmt.Sprintf("Pending: %d ($%s)\nAwaiting payment: %d ($%s)",
		t.Pending.Count, t.Pending.Value.StringFixed(2),
		t.Awaiting.Count, t.Awaiting.Value.StringFixed(2))
	if t.Transferable.Valid {
		text += fmt.Sprintf("\nTransferable: $%s", t.Transferable.Decimal.StringFixed(2))
	}
	return text
}

func (c *Commands) start(kind string) string {
	runID, err := c.runner.Start(kind, "")
	if errors.Is(err, service.ErrSyncInProgress) {
		return "A sync is already running, see /status."
	}
	if err != nil {
		return "Failed to start sync: " + err.Error()
	}
	return fmt.Sprintf("Sync %s started (%s).", runID, kind)
}

func (c *Commands) reply(text string) error {
	_, err := c.bot.Send(tgbotapi.NewMessage(c.chatID, text))
	return err
}

func (c *Commands) withRecovery(l *zerolog.Logger, handler func()) {
	defer func() {
		if r := recover(); r != nil {
			l.Error().Interface("panic", r).Msg("Recovered from panic in command handler")
		}
	}()
	handler()
}
