package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const maxEventRecipients = 10000

// Event is a raw domain event submitted by a producer (posting,
// messaging, moderation). The orchestrator expands it into one
// notification per recipient.
type Event struct {
	ID           string
	Category     Category
	RecipientIDs []string
	Title        string
	Body         string
	Link         *string
	Payload      json.RawMessage
	// DedupeKey suppresses duplicate notifications for the same logical
	// event: the per-recipient idempotency key is derived from it.
	DedupeKey *string
	// ScheduledAt defers delivery; nil means deliver now.
	ScheduledAt *time.Time
	MaxRetries  int
}

func (e *Event) Validate() error {
	if !e.Category.IsValid() {
		return fmt.Errorf("%w: invalid category %q", ErrValidation, e.Category)
	}
	if len(e.RecipientIDs) == 0 {
		return fmt.Errorf("%w: at least one recipient is required", ErrValidation)
	}
	if len(e.RecipientIDs) > maxEventRecipients {
		return fmt.Errorf("%w: recipient count exceeds %d", ErrValidation, maxEventRecipients)
	}
	for _, id := range e.RecipientIDs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: recipient id must not be empty", ErrValidation)
		}
	}
	if e.Title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if len(e.Payload) > 0 && !json.Valid(e.Payload) {
		return fmt.Errorf("%w: payload must be valid JSON", ErrValidation)
	}
	return nil
}

// RecipientIdempotencyKey derives the per-recipient dedupe key, or nil
// when the event carries no dedupe key.
func (e *Event) RecipientIdempotencyKey(recipientID string) *string {
	if e.DedupeKey == nil || strings.TrimSpace(*e.DedupeKey) == "" {
		return nil
	}
	key := fmt.Sprintf("%s:%s", strings.TrimSpace(*e.DedupeKey), recipientID)
	return &key
}
