// Package telegram delivers notification messages as Telegram DMs.
// Outbound only; this process never polls for updates.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"taskping/internal/notify"
	"taskping/pkg/logx"
)

type Config struct {
	Token string
}

type Channel struct {
	bot *tele.Bot
	log logx.Logger
}

var _ notify.Channel = (*Channel)(nil)

func New(cfg Config, log logx.Logger) (*Channel, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	return &Channel{bot: b, log: log}, nil
}

func (c *Channel) Deliver(ctx context.Context, chatID int64, msg notify.Message) error {
	text := render(msg)

	type result struct{ err error }
	done := make(chan result, 1)
	go func() {
		_, err := c.bot.Send(tele.ChatID(chatID), text, &tele.SendOptions{
			ParseMode:             tele.ModeHTML,
			DisableWebPagePreview: true,
		})
		done <- result{err: err}
	}()

	// telebot's Send has no context support; honor the caller's deadline
	// ourselves and let the orphaned send finish in the background.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-done:
		return r.err
	}
}

func render(msg notify.Message) string {
	var b strings.Builder
	if msg.Title != "" {
		fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(msg.Title))
	}
	if msg.Body != "" {
		b.WriteString(html.EscapeString(msg.Body))
		b.WriteString("\n")
	}
	for _, f := range msg.Fields {
		fmt.Fprintf(&b, "\n<b>%s</b>\n%s\n", html.EscapeString(f.Name), html.EscapeString(f.Value))
	}
	if msg.Footer != "" {
		fmt.Fprintf(&b, "\n<i>%s</i>", html.EscapeString(msg.Footer))
	}
	if !msg.Timestamp.IsZero() {
		fmt.Fprintf(&b, "\n<i>%s</i>", msg.Timestamp.UTC().Format(time.RFC1123))
	}
	return strings.TrimRight(b.String(), "\n")
}
