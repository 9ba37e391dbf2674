package alert

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"hittracker/internal/models"
	"hittracker/internal/overview"
	"hittracker/internal/service"
)

type mockUpdater struct {
	mock.Mock
}

func (m *mockUpdater) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func (m *mockUpdater) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	args := m.Called(config)
	return args.Get(0).(tgbotapi.UpdatesChannel)
}

func (m *mockUpdater) StopReceivingUpdates() {
	m.Called()
}

type stubRunner struct {
	mu       sync.Mutex
	err      error
	progress *models.SyncProgress
	kinds    []string
}

func (s *stubRunner) Start(kind, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.kinds = append(s.kinds, kind)
	return "run-9", nil
}

func (s *stubRunner) Running() bool { return false }

func (s *stubRunner) Progress(context.Context) (*models.SyncProgress, error) {
	return s.progress, nil
}

type stubOverviews struct{}

func (stubOverviews) Period(_ context.Context, period string) (*overview.Overview, error) {
	if period != "week" {
		return nil, overview.ErrUnknownPeriod
	}
	return &overview.Overview{
		Window: models.Window{Start: "20240114", End: "20240120", Label: "This Week"},
		Counts: overview.Counts{
			Submitted: overview.Tally{Count: 3, Value: decimal.RequireFromString("1.5")},
		},
		Requesters: []overview.Requester{{ID: "R1", Name: "Lab", Count: 3, Value: decimal.RequireFromString("1.5")}},
	}, nil
}

func (stubOverviews) Totals(context.Context) (*overview.Totals, error) {
	return &overview.Totals{
		Pending:      overview.Tally{Count: 1, Value: decimal.RequireFromString("0.1")},
		Transferable: decimal.NewNullDecimal(decimal.RequireFromString("7")),
	}, nil
}

func newCommands(runner *stubRunner) (*Commands, *mockUpdater) {
	logger := zerolog.New(io.Discard)
	bot := new(mockUpdater)
	return NewCommands(bot, 42, runner, stubOverviews{}, &logger), bot
}

func command(chatID int64, text string) tgbotapi.Update {
	cmd, _, _ := strings.Cut(text, " ")
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: chatID},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func TestCommands_Handle(t *testing.T) {
	runner := &stubRunner{progress: &models.SyncProgress{
		RunID: "run-1", Kind: models.SyncKindLast45, Running: true, Message: "checking last 45 days",
		Days: map[string]string{"20240115": "fetching queue"}, AuthLost: true,
	}}
	c, _ := newCommands(runner)
	ctx := context.Background()

	status := c.handle(ctx, "status")
	assert.Contains(t, status, "run-1")
	assert.Contains(t, status, "running")
	assert.Contains(t, status, "Days touched: 1")
	assert.Contains(t, status, "session expired")

	week := c.handle(ctx, "week")
	assert.Contains(t, week, "This Week (20240114 - 20240120)")
	assert.Contains(t, week, "Submitted: 3 ($1.50)")
	assert.Contains(t, week, "Top requester: Lab")

	totals := c.handle(ctx, "totals")
	assert.Contains(t, totals, "Pending: 1 ($0.10)")
	assert.Contains(t, totals, "Transferable: $7.00")

	assert.Contains(t, c.handle(ctx, "month"), "Failed to build overview")
	assert.Equal(t, helpText, c.handle(ctx, "help"))

	assert.Contains(t, c.handle(ctx, "sync"), "run-9")
	assert.Contains(t, c.handle(ctx, "synctoday"), "run-9")
	assert.Contains(t, c.handle(ctx, "resume"), "run-9")
	assert.Equal(t, []string{models.SyncKindLast45, models.SyncKindDay, models.SyncKindResume}, runner.kinds)
}

func TestCommands_StatusWithoutRuns(t *testing.T) {
	c, _ := newCommands(&stubRunner{})
	assert.Equal(t, "No sync has run yet.", c.handle(context.Background(), "status"))
}

func TestCommands_SyncBusy(t *testing.T) {
	c, _ := newCommands(&stubRunner{err: service.ErrSyncInProgress})
	assert.Contains(t, c.handle(context.Background(), "sync"), "already running")

	c, _ = newCommands(&stubRunner{err: errors.New("boom")})
	assert.Contains(t, c.handle(context.Background(), "sync"), "boom")
}

func TestCommands_ProcessUpdate(t *testing.T) {
	c, bot := newCommands(&stubRunner{})
	ctx := context.Background()

	bot.On("Send", mock.MatchedBy(func(ch tgbotapi.Chattable) bool {
		msg, ok := ch.(tgbotapi.MessageConfig)
		return ok && msg.ChatID == 42 && msg.Text == "No sync has run yet."
	})).Return(tgbotapi.Message{}, nil).Once()

	c.processUpdate(ctx, command(42, "/status"))
	c.processUpdate(ctx, command(7, "/status"))
	c.processUpdate(ctx, tgbotapi.Update{Message: &tgbotapi.Message{Text: "hello", Chat: &tgbotapi.Chat{ID: 42}}})
	c.processUpdate(ctx, tgbotapi.Update{})

	bot.AssertExpectations(t)
	bot.AssertNumberOfCalls(t, "Send", 1)
}

func TestCommands_Start(t *testing.T) {
	c, bot := newCommands(&stubRunner{})

	updates := make(chan tgbotapi.Update, 1)
	bot.On("GetUpdatesChan", mock.Anything).Return(tgbotapi.UpdatesChannel(updates)).Once()
	bot.On("StopReceivingUpdates").Return().Once()
	sent := make(chan struct{})
	bot.On("Send", mock.Anything).Run(func(mock.Arguments) { close(sent) }).Return(tgbotapi.Message{}, nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()

	updates <- command(42, "/help")
	select {
	case <-sent:
	case <-time.After(2 * time.Second):
		t.Fatal("command was not answered")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("command loop did not stop")
	}
	bot.AssertExpectations(t)
}
