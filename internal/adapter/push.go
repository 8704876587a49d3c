package adapter

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/voxhub/notify-engine/internal/domain"
)

const defaultPushTimeout = 5 * time.Second

type pushMessage struct {
	RecipientID string         `json:"recipientId"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Data        map[string]any `json:"data,omitempty"`
}

type pushSendResponse struct {
	MessageID string `json:"messageId"`
}

// PushAdapter delivers notifications through an external push gateway.
// The gateway resolves the recipient's registered devices; this side
// only knows the recipient id.
type PushAdapter struct {
	client   *resty.Client
	endpoint string
}

func NewPushAdapter(endpoint, apiKey string) (*PushAdapter, error) {
	client := resty.New()
	client.SetTimeout(defaultPushTimeout)
	client.SetRetryCount(0)
	client.SetHeader("Authorization", "Bearer "+apiKey)

	return NewPushAdapterWithClient(endpoint, apiKey, client)
}

func NewPushAdapterWithClient(endpoint, apiKey string, client *resty.Client) (*PushAdapter, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("push gateway endpoint is required")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("push gateway api key is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultPushTimeout)
	}
	client.SetRetryCount(0)

	return &PushAdapter{
		client:   client,
		endpoint: strings.TrimRight(trimmed, "/"),
	}, nil
}

func (a *PushAdapter) Channel() domain.Channel { return domain.ChannelPush }

func (a *PushAdapter) SupportsBatch() bool { return false }

func (a *PushAdapter) SendBatch(ctx context.Context, notifications []domain.Notification) ([]Result, error) {
	return nil, fmt.Errorf("push channel does not support batching")
}

func (a *PushAdapter) Send(ctx context.Context, n domain.Notification) Result {
	msg := pushMessage{
		RecipientID: n.RecipientID,
		Title:       n.Title,
		Body:        n.Body,
		Data: map[string]any{
			"notificationId": n.ID,
			"category":       strings.ToLower(n.Category.String()),
		},
	}
	if n.Link != nil {
		msg.Data["link"] = *n.Link
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(msg).
		SetResult(&pushSendResponse{}).
		Post(a.endpoint + "/v1/push")
	if err != nil {
		return classifyTransportError(err)
	}

	statusCode := resp.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		messageID := ""
		if parsed, ok := resp.Result().(*pushSendResponse); ok {
			messageID = parsed.MessageID
		}
		return Success(messageID)
	}

	// Gone means every device token for the recipient is dead.
	if statusCode == http.StatusGone || statusCode == http.StatusNotFound {
		return PermanentFailure(fmt.Sprintf("no deliverable device for recipient: status %d", statusCode))
	}

	return classifyStatus(statusCode, strings.TrimSpace(resp.String()))
}
