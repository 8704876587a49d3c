package adapter

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/voxhub/notify-engine/internal/domain"
)

const defaultEmailTimeout = 10 * time.Second

// emailTemplate renders the notification body shipped to the relay.
var emailTemplate = template.Must(template.New("notification").Parse(`<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6;">
  <div style="padding: 20px; background-color: #f5f5f5; border-radius: 5px; max-width: 600px; margin: 20px auto;">
    <h2 style="color: #333;">{{.Title}}</h2>
    <div style="color: #666;">{{.Body}}</div>
    {{if .Link}}<p><a href="{{.Link}}" style="display: inline-block; padding: 10px 20px; background-color: #007bff; color: white; text-decoration: none; border-radius: 3px;">View Details</a></p>{{end}}
  </div>
</body>
</html>`))

type emailMessage struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	HTMLBody  string `json:"htmlBody"`
	Reference string `json:"reference"`
}

type emailSendResponse struct {
	MessageID string `json:"messageId"`
}

type emailBulkResponse struct {
	Results []emailBulkItem `json:"results"`
}

type emailBulkItem struct {
	Reference string `json:"reference"`
	Status    int    `json:"status"`
	MessageID string `json:"messageId"`
	Error     string `json:"error"`
}

// EmailAdapter delivers notifications through an HTTP mail relay. The
// relay exposes a bulk endpoint, so the channel is batchable.
type EmailAdapter struct {
	client   *resty.Client
	endpoint string
}

func NewEmailAdapter(endpoint, apiKey string) (*EmailAdapter, error) {
	client := resty.New()
	client.SetTimeout(defaultEmailTimeout)
	client.SetRetryCount(0)
	client.SetHeader("Authorization", "Bearer "+apiKey)

	return NewEmailAdapterWithClient(endpoint, apiKey, client)
}

func NewEmailAdapterWithClient(endpoint, apiKey string, client *resty.Client) (*EmailAdapter, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("email relay endpoint is required")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("email relay api key is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultEmailTimeout)
	}
	client.SetRetryCount(0)

	return &EmailAdapter{
		client:   client,
		endpoint: strings.TrimRight(trimmed, "/"),
	}, nil
}

func (a *EmailAdapter) Channel() domain.Channel { return domain.ChannelEmail }

func (a *EmailAdapter) SupportsBatch() bool { return true }

func (a *EmailAdapter) Send(ctx context.Context, n domain.Notification) Result {
	msg, err := a.buildMessage(n)
	if err != nil {
		return PermanentFailure(err.Error())
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(msg).
		SetResult(&emailSendResponse{}).
		Post(a.endpoint + "/v1/messages")
	if err != nil {
		return classifyTransportError(err)
	}

	if resp.StatusCode() >= http.StatusOK && resp.StatusCode() < http.StatusMultipleChoices {
		messageID := ""
		if parsed, ok := resp.Result().(*emailSendResponse); ok {
			messageID = parsed.MessageID
		}
		return Success(messageID)
	}

	return classifyStatus(resp.StatusCode(), strings.TrimSpace(resp.String()))
}

// SendBatch posts all messages in one relay call. The relay reports a
// per-message status list which is decomposed back into one result per
// input; a malformed or missing list is a non-decomposable failure.
func (a *EmailAdapter) SendBatch(ctx context.Context, notifications []domain.Notification) ([]Result, error) {
	if len(notifications) == 0 {
		return nil, nil
	}

	messages := make([]emailMessage, 0, len(notifications))
	results := make([]Result, len(notifications))
	indexByRef := make(map[string]int, len(notifications))
	for i, n := range notifications {
		msg, err := a.buildMessage(n)
		if err != nil {
			results[i] = PermanentFailure(err.Error())
			continue
		}
		indexByRef[msg.Reference] = i
		messages = append(messages, msg)
	}
	if len(messages) == 0 {
		return results, nil
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{"messages": messages}).
		SetResult(&emailBulkResponse{}).
		Post(a.endpoint + "/v1/messages/bulk")
	if err != nil {
		return nil, fmt.Errorf("bulk send failed: %w", err)
	}

	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		bulk := classifyStatus(resp.StatusCode(), strings.TrimSpace(resp.String()))
		if bulk.ConfigError {
			// Uniform credential rejection is decomposable: every item
			// fails the same way and the channel gets disabled.
			for i := range results {
				if results[i].Outcome == "" {
					results[i] = bulk
				}
			}
			return results, nil
		}
		return nil, fmt.Errorf("bulk send rejected with status %d", resp.StatusCode())
	}

	parsed, ok := resp.Result().(*emailBulkResponse)
	if !ok || len(parsed.Results) == 0 {
		return nil, fmt.Errorf("bulk response is not decomposable")
	}

	for _, item := range parsed.Results {
		idx, found := indexByRef[item.Reference]
		if !found {
			continue
		}
		if item.Status >= http.StatusOK && item.Status < http.StatusMultipleChoices {
			results[idx] = Success(item.MessageID)
			continue
		}
		results[idx] = classifyStatus(item.Status, item.Error)
	}

	// Items the relay did not report on are treated as retryable.
	for i := range results {
		if results[i].Outcome == "" {
			results[i] = TransientFailure("missing from bulk response")
		}
	}

	return results, nil
}

func (a *EmailAdapter) buildMessage(n domain.Notification) (emailMessage, error) {
	var rendered strings.Builder
	data := struct {
		Title string
		Body  string
		Link  *string
	}{Title: n.Title, Body: n.Body, Link: n.Link}
	if err := emailTemplate.Execute(&rendered, data); err != nil {
		return emailMessage{}, fmt.Errorf("failed to render email template: %w", err)
	}

	return emailMessage{
		Recipient: n.RecipientID,
		Subject:   n.Title,
		HTMLBody:  rendered.String(),
		Reference: n.ID,
	}, nil
}
