package queue

import (
	"fmt"
	"strings"

	"github.com/voxhub/notify-engine/internal/domain"
)

// DispatchMessage is the broker payload that triggers one dispatch of
// one notification. Channel resolution happens at dispatch time, so
// the message carries no channel set.
type DispatchMessage struct {
	NotificationID string          `json:"notificationId"`
	EventID        string          `json:"eventId,omitempty"`
	Category       domain.Category `json:"category"`
}

func (m DispatchMessage) Validate() error {
	if strings.TrimSpace(m.NotificationID) == "" {
		return fmt.Errorf("notificationId is required")
	}
	if !m.Category.IsValid() {
		return fmt.Errorf("invalid category %q", m.Category)
	}
	return nil
}
