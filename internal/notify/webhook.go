package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tophand/backend/internal/models"
)

// WebhookChannel hands a message to an HTTP gateway (SMS or voice-call
// provider bridge) and trusts the gateway's reported status.
type WebhookChannel struct {
	ChannelName string
	BaseURL     string
	Client      *http.Client
}

type webhookRequest struct {
	Channel     string         `json:"channel"`
	RecipientID string         `json:"recipient_id"`
	Contact     string         `json:"contact,omitempty"`
	Message     string         `json:"message"`
	Data        map[string]any `json:"data,omitempty"`
}

type webhookResponse struct {
	Status      string     `json:"status"`
	DeliveredAt *time.Time `json:"delivered_at"`
	Error       string     `json:"error"`
}

func (w WebhookChannel) Name() string { return w.ChannelName }

func (w WebhookChannel) Send(ctx context.Context, recipientID, message string, data map[string]any) (Delivery, error) {
	client := w.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	contact, _ := data["contact"].(string)
	payload := webhookRequest{
		Channel:     w.ChannelName,
		RecipientID: recipientID,
		Contact:     contact,
		Message:     message,
		Data:        data,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Delivery{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(w.BaseURL, "/")+"/send", bytes.NewBuffer(b))
	if err != nil {
		return Delivery{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return Delivery{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Delivery{}, fmt.Errorf("gateway returned %d", resp.StatusCode)
	}

	var r webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return Delivery{}, fmt.Errorf("decode gateway response: %w", err)
	}

	status := strings.ToLower(strings.TrimSpace(r.Status))
	switch status {
	case "delivered", "sent", "queued", "accepted":
		status = models.AttemptDelivered
	default:
		status = models.AttemptFailed
	}
	return Delivery{Status: status, DeliveredAt: r.DeliveredAt, Error: r.Error}, nil
}
