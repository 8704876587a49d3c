package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a notification.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSending   Status = "SENDING"
	StatusDelivered Status = "DELIVERED"
	StatusRetrying  Status = "RETRYING"
	StatusFailed    Status = "FAILED"
	StatusCanceled  Status = "CANCELED"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusSending, StatusDelivered, StatusRetrying, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// IsTerminal reports whether no further delivery work is allowed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// statusTransitions is the allowed state machine. Transitions are
// monotonic: once terminal, a notification never moves again.
var statusTransitions = map[Status][]Status{
	StatusPending:  {StatusSending, StatusCanceled},
	StatusSending:  {StatusDelivered, StatusRetrying, StatusFailed},
	StatusRetrying: {StatusSending, StatusFailed, StatusCanceled},
}

// CanTransition reports whether the state machine permits moving from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// Channel represents the delivery medium.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelPush  Channel = "PUSH"
	ChannelInApp Channel = "IN_APP"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelPush, ChannelInApp:
		return true
	}
	return false
}

// DefaultEnabled is the channel default applied when no preference row
// exists: in-app is on, email and push are opt-in.
func (c Channel) DefaultEnabled() bool {
	return c == ChannelInApp
}

// AllChannels returns the closed channel set in a stable order.
func AllChannels() []Channel {
	return []Channel{ChannelEmail, ChannelPush, ChannelInApp}
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToUpper(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// Category classifies the domain event a notification derives from.
type Category string

const (
	CategoryMention    Category = "MENTION"
	CategoryReaction   Category = "REACTION"
	CategoryMessage    Category = "MESSAGE"
	CategoryModeration Category = "MODERATION"
	CategorySystem     Category = "SYSTEM"
	CategoryScheduled  Category = "SCHEDULED"
)

func (c Category) String() string { return string(c) }

func (c Category) IsValid() bool {
	switch c {
	case CategoryMention, CategoryReaction, CategoryMessage, CategoryModeration, CategorySystem, CategoryScheduled:
		return true
	}
	return false
}

// QueuePriority maps a category to the work queue priority. Direct
// interactions beat background noise; no ordering guarantee is implied
// across categories beyond broker preference.
func (c Category) QueuePriority() uint8 {
	switch c {
	case CategoryMessage, CategoryModeration:
		return 3
	case CategoryMention, CategoryReaction:
		return 2
	default:
		return 1
	}
}

func ParseCategoryFromString(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: invalid category %q", ErrValidation, s)
	}
	return c, nil
}

const (
	MaxTitleLength = 255
	MaxBodyLength  = 10000
)

// Notification is the core entity tracked through the delivery state machine.
type Notification struct {
	ID             string          `gorm:"type:uuid;primaryKey"`
	EventID        string          `gorm:"type:varchar(36);not null"`
	IdempotencyKey *string         `gorm:"type:varchar(255)"`
	RecipientID    string          `gorm:"type:varchar(64);not null"`
	Category       Category        `gorm:"type:varchar(16);not null"`
	Title          string          `gorm:"type:varchar(255);not null"`
	Body           string          `gorm:"type:text;not null"`
	Link           *string         `gorm:"type:varchar(512)"`
	Payload        json.RawMessage `gorm:"type:jsonb"`
	Status         Status          `gorm:"type:varchar(16);not null"`
	Suppressed     bool            `gorm:"not null;default:false"`
	RetryCount     int             `gorm:"not null;default:0"`
	MaxRetries     int             `gorm:"not null;default:5"`
	LastError      *string         `gorm:"type:text"`
	ScheduledAt    *time.Time      `gorm:"type:timestamptz"`
	QueuedAt       *time.Time      `gorm:"type:timestamptz"`
	NextRetryAt    *time.Time      `gorm:"type:timestamptz"`
	DeliveredAt    *time.Time      `gorm:"type:timestamptz"`
	ReadAt         *time.Time      `gorm:"type:timestamptz"`
	ArchivedAt     *time.Time      `gorm:"type:timestamptz"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (n *Notification) Validate() error {
	if strings.TrimSpace(n.RecipientID) == "" {
		return fmt.Errorf("%w: recipient id is required", ErrValidation)
	}
	if !n.Category.IsValid() {
		return fmt.Errorf("%w: invalid category %q", ErrValidation, n.Category)
	}
	if n.Title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if len([]rune(n.Title)) > MaxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters", ErrValidation, MaxTitleLength)
	}
	if len([]rune(n.Body)) > MaxBodyLength {
		return fmt.Errorf("%w: body exceeds %d characters", ErrValidation, MaxBodyLength)
	}
	if len(n.Payload) > 0 && !json.Valid(n.Payload) {
		return fmt.Errorf("%w: payload must be valid JSON", ErrValidation)
	}
	return nil
}

// IsRead reports whether the recipient has read the notification.
func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}
