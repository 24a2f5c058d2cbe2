// Package notify pushes urgent alerts to Kafka and to websocket subscribers.
package notify

import (
	"context"
	"log/slog"
	"time"

	"farmwatch/internal/model"
)

// Publisher delivers one alert to a downstream channel.
type Publisher interface {
	Publish(ctx context.Context, a model.Alert) error
	Name() string
}

type Notifier struct {
	sinks    []Publisher
	cooldown *Cooldown
	window   time.Duration
	logger   *slog.Logger
}

// New builds a Notifier. window is the per sensor and title quiet period.
func New(window time.Duration, logger *slog.Logger, sinks ...Publisher) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		sinks:    sinks,
		cooldown: NewCooldown(),
		window:   window,
		logger:   logger.With("component", "notify"),
	}
}

// Notify fans a high or critical alert out to every sink and reports whether
// it was sent. Lower priorities and alerts inside the cooldown are skipped.
// Sink failures are logged; the alert is already stored by then.
func (n *Notifier) Notify(ctx context.Context, a model.Alert) bool {
	if n == nil || !a.Priority.Urgent() {
		return false
	}
	if !n.cooldown.Allow(a.Source+"|"+a.Title, n.window) {
		n.logger.Debug("notification suppressed", "alert_id", a.ID, "source", a.Source)
		return false
	}
	for _, s := range n.sinks {
		if err := s.Publish(ctx, a); err != nil {
			n.logger.Error("notification failed", "sink", s.Name(), "alert_id", a.ID, "error", err)
		}
	}
	return true
}
