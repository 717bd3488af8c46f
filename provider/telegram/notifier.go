package telegram

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type messageSender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// Notifier mirrors log entries into a chat. Entries are queued without
// blocking and dropped when the queue is full.
type Notifier struct {
	api    messageSender
	chatID string
	queue  chan string
	logger *zap.Logger
}

// NewNotifier takes the hook-free base logger, so its own failures are never
// mirrored back into the queue.
func NewNotifier(api messageSender, chatID string, size int, logger *zap.Logger) *Notifier {
	return &Notifier{
		api:    api,
		chatID: chatID,
		queue:  make(chan string, size),
		logger: logger.Named("telegram.notifier"),
	}
}

// Hook is meant for zap.Hooks.
func (n *Notifier) Hook(entry zapcore.Entry) error {
	text := fmt.Sprintf("%s %s\n%s", entry.Level.CapitalString(), entry.LoggerName, entry.Message)
	select {
	case n.queue <- text:
	default:
	}
	return nil
}

func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case text := <-n.queue:
			if err := n.api.SendMessage(ctx, n.chatID, text); err != nil && ctx.Err() == nil {
				n.logger.Warn("failed to forward log entry", zap.Error(err))
			}
		}
	}
}
