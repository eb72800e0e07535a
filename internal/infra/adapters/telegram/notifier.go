package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"longform-scriptgen/internal/domain/model"
	"longform-scriptgen/internal/domain/ports/adapter"
)

var (
	_ adapter.Notifier = (*Notifier)(nil)
	_ adapter.Notifier = (*NoopNotifier)(nil)
)

// sender is the part of *tgbotapi.BotAPI the notifier uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier posts job results to a single Telegram chat.
type Notifier struct {
	bot    sender
	chatID int64
	log    *zerolog.Logger
}

func NewNotifier(token string, chatID int64, logger *zerolog.Logger) (*Notifier, error) {
	if token == "" {
		return nil, errors.New("telegram token is empty")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newNotifier(bot, chatID, logger), nil
}

func newNotifier(bot sender, chatID int64, logger *zerolog.Logger) *Notifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "telegram_notifier").Int64("chat_id", chatID).Logger()
	return &Notifier{bot: bot, chatID: chatID, log: &l}
}

func (n *Notifier) NotifyJob(ctx context.Context, job *model.Job) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	msg := tgbotapi.NewMessage(n.chatID, FormatJob(job))
	msg.DisableWebPagePreview = true
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("send job notification: %w", err)
	}
	n.log.Debug().Str("job_id", job.ID).Str("status", string(job.Status)).Msg("job notification sent")
	return nil
}

// FormatJob renders the notification text for a finished or failed job.
func FormatJob(job *model.Job) string {
	title := job.DisplayTitle()
	var b strings.Builder
	switch job.Status {
	case model.JobStatusDone:
		fmt.Fprintf(&b, "Script ready: %s\n", title)
		fmt.Fprintf(&b, "Chapters: %d, words: %d\n", len(job.ChaptersContent), job.WordsWritten)
	case model.JobStatusFailed:
		fmt.Fprintf(&b, "Script failed: %s\n", title)
		fmt.Fprintf(&b, "Error: %s\n", job.Error)
		fmt.Fprintf(&b, "Progress kept: %d of %d chapters\n", len(job.ChaptersContent), job.ChapterCount())
	default:
		fmt.Fprintf(&b, "Script %s: %s\n", strings.ToLower(string(job.Status)), title)
	}
	fmt.Fprintf(&b, "Job: %s", job.ID)
	return b.String()
}

// NoopNotifier logs notifications instead of sending them.
type NoopNotifier struct {
	log *zerolog.Logger
}

func NewNoopNotifier(logger *zerolog.Logger) *NoopNotifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "noop_notifier").Logger()
	return &NoopNotifier{log: &l}
}

func (n *NoopNotifier) NotifyJob(ctx context.Context, job *model.Job) error {
	n.log.Info().Str("job_id", job.ID).Str("status", string(job.Status)).Msg(FormatJob(job))
	return nil
}
