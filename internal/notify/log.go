package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tophand/backend/internal/models"
)

// LogChannel stands in for a transport that has no gateway configured. It
// writes the message to the log and reports it delivered.
type LogChannel struct {
	ChannelName string
	Logger      zerolog.Logger
}

func (l LogChannel) Name() string { return l.ChannelName }

func (l LogChannel) Send(ctx context.Context, recipientID, message string, data map[string]any) (Delivery, error) {
	l.Logger.Info().
		Str("channel", l.ChannelName).
		Str("recipient_id", recipientID).
		Interface("data", data).
		Msg(message)
	now := time.Now().UTC()
	return Delivery{Status: models.AttemptDelivered, DeliveredAt: &now}, nil
}
