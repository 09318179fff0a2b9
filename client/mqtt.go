package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/absmach/fledge/engine"
	"github.com/absmach/fledge/pkg/fl"
	"github.com/absmach/fledge/pkg/mqtt"
)

const (
	progressTopicTemplate = "fledge/%s/progress"
	roundsTopicTemplate   = "fledge/%s/rounds"
	stopTopicTemplate     = "fledge/%s/control/stop"
)

func ProgressTopic(clientID string) string {
	return fmt.Sprintf(progressTopicTemplate, clientID)
}

func RoundsTopic(clientID string) string {
	return fmt.Sprintf(roundsTopicTemplate, clientID)
}

func StopTopic(clientID string) string {
	return fmt.Sprintf(stopTopicTemplate, clientID)
}

// Publisher mirrors round progress to the MQTT broker.
type Publisher struct {
	clientID string
	pubsub   mqtt.PubSub
	logger   *slog.Logger
}

var _ Observer = (*Publisher)(nil)

func NewPublisher(clientID string, ps mqtt.PubSub, logger *slog.Logger) *Publisher {
	return &Publisher{
		clientID: clientID,
		pubsub:   ps,
		logger:   logger,
	}
}

func (p *Publisher) EpochCompleted(ctx context.Context, roundID string, pr engine.Progress) {
	payload := map[string]any{
		"client_id": p.clientID,
		"round_id":  roundID,
		"epoch":     pr.Epoch + 1,
		"epochs":    pr.Epochs,
		"loss":      pr.Loss,
		"timestamp": time.Now(),
	}
	if err := p.pubsub.Publish(ctx, ProgressTopic(p.clientID), payload); err != nil {
		p.logger.Warn("failed to publish progress", slog.String("round_id", roundID), slog.Any("error", err))
	}
}

func (p *Publisher) RoundCompleted(ctx context.Context, r fl.Round) {
	if err := p.pubsub.Publish(ctx, RoundsTopic(p.clientID), r); err != nil {
		p.logger.Warn("failed to publish round", slog.String("round_id", r.ID), slog.Any("error", err))
	}
}

// Stopper is what a stop command acts on.
type Stopper interface {
	Stop(ctx context.Context) error
}

// SubscribeStop makes a message on the client's stop topic stop the runner.
func SubscribeStop(ctx context.Context, ps mqtt.PubSub, clientID string, s Stopper, logger *slog.Logger) error {
	topic := StopTopic(clientID)

	return ps.Subscribe(ctx, topic, func(_ string, msg map[string]any) error {
		logger.Info("stop command received", slog.String("topic", topic), slog.Any("command", msg))

		return s.Stop(ctx)
	})
}

// UnsubscribeStop removes the stop command subscription.
func UnsubscribeStop(ctx context.Context, ps mqtt.PubSub, clientID string) error {
	return ps.Unsubscribe(ctx, StopTopic(clientID))
}
