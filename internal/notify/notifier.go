// Package notify pushes fill notifications to operator channels. Senders are
// best-effort: a delivery failure is logged and reported but never stops the
// driver loop.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tradeforge/robotengine/internal/domain"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier formats trade events into messages and dispatches them to every
// registered sender.
type Notifier struct {
	senders []Sender
	logger  *slog.Logger
}

// NewNotifier creates a Notifier over the given senders. With no senders it
// is a no-op.
func NewNotifier(senders []Sender, logger *slog.Logger) *Notifier {
	return &Notifier{
		senders: senders,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is registered.
func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

// NotifyTrades sends one message per confirmed fill. Sender errors are
// combined; delivery to the remaining senders continues past a failure.
func (n *Notifier) NotifyTrades(ctx context.Context, robotID string, events []domain.SignalEvent) error {
	if len(n.senders) == 0 || len(events) == 0 {
		return nil
	}
	var errs []string
	for _, event := range events {
		title := fmt.Sprintf("%s fill on %s", event.Action, robotID)
		message := fmt.Sprintf("position %s: %s %s at %g (candle %s)",
			event.PositionCode, event.Action, event.OrderType, event.Price, event.CandleTimestamp)
		for _, sender := range n.senders {
			if err := sender.Send(ctx, title, message); err != nil {
				n.logger.ErrorContext(ctx, "sender failed",
					slog.String("sender", sender.Name()),
					slog.String("error", err.Error()),
				)
				errs = append(errs, fmt.Sprintf("%s: %v", sender.Name(), err))
				continue
			}
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", sender.Name()),
				slog.String("position", event.PositionCode),
			)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d delivery failure(s): %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
