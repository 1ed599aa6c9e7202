package alert

import (
	"context"
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "metasbot/pkg/logx"
)

// Telegram sends alerts to a fixed chat. The bot runs in send-only mode, no
// poller is started.
type Telegram struct {
	bot    *tele.Bot
	chatID int64
	log    logx.Logger
}

type TelegramConfig struct {
	Token  string
	ChatID int64
}

func NewTelegram(cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token, Offline: false})
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: b, chatID: cfg.ChatID, log: log}, nil
}

func (t *Telegram) Notify(ctx context.Context, message string) {
	if t == nil || t.bot == nil {
		return
	}
	done := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(tele.ChatID(t.chatID), message)
		done <- err
	}()
	select {
	case <-ctx.Done():
		t.log.Warn("admin alert abandoned", logx.Err(ctx.Err()))
	case err := <-done:
		if err != nil {
			t.log.Warn("admin alert failed", logx.Err(err))
		}
	case <-time.After(10 * time.Second):
		t.log.Warn("admin alert timed out")
	}
}
