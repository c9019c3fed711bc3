package delivery

import (
	"context"
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

const telegramTextLimit = 4000

// TelegramConfig targets one chat (optionally a forum thread).
type TelegramConfig struct {
	Token    string
	ChatID   int64
	ThreadID int
	// Offline skips the getMe round-trip at startup.
	Offline bool
}

// sender is the part of *tele.Bot the sink uses.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// TelegramSink posts fired notifications to a Telegram chat.
type TelegramSink struct {
	bot      sender
	chat     *tele.Chat
	threadID int
}

func NewTelegramSink(cfg TelegramConfig) (*TelegramSink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is required")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Offline: cfg.Offline,
		Client:  nil,
	})
	if err != nil {
		return nil, err
	}
	return newTelegramSink(b, cfg.ChatID, cfg.ThreadID), nil
}

func newTelegramSink(bot sender, chatID int64, threadID int) *TelegramSink {
	return &TelegramSink{bot: bot, chat: &tele.Chat{ID: chatID}, threadID: threadID}
}

func (s *TelegramSink) Deliver(ctx context.Context, d Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.bot.Send(s.chat, formatText(d), &tele.SendOptions{
		DisableWebPagePreview: true,
		ThreadID:              s.threadID,
	})
	return err
}

func formatText(d Delivery) string {
	c := d.Request.Content
	var b strings.Builder
	b.WriteString(c.Title)
	if c.Subtitle != "" {
		b.WriteString("\n")
		b.WriteString(c.Subtitle)
	}
	if c.Body != "" {
		b.WriteString("\n\n")
		b.WriteString(c.Body)
	}
	if !d.FiredAt.IsZero() {
		b.WriteString("\n\n")
		b.WriteString(d.FiredAt.Format(time.RFC1123))
	}
	return truncate(b.String(), telegramTextLimit)
}

func truncate(s string, maxN int) string {
	rs := []rune(s)
	if maxN <= 0 || len(rs) <= maxN {
		return s
	}
	return string(rs[:maxN-3]) + "..."
}
