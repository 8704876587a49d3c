package domain

import (
	"fmt"
	"strings"
	"time"
)

// NotificationPreference is a per-recipient, per-category, per-channel
// enable flag. Absence of a row falls back to Channel.DefaultEnabled.
type NotificationPreference struct {
	RecipientID string   `gorm:"type:varchar(64);primaryKey"`
	Category    Category `gorm:"type:varchar(16);primaryKey"`
	Channel     Channel  `gorm:"type:varchar(16);primaryKey"`
	Enabled     bool     `gorm:"not null"`
	UpdatedAt   time.Time
}

func (p *NotificationPreference) Validate() error {
	if strings.TrimSpace(p.RecipientID) == "" {
		return fmt.Errorf("%w: recipient id is required", ErrValidation)
	}
	if !p.Category.IsValid() {
		return fmt.Errorf("%w: invalid category %q", ErrValidation, p.Category)
	}
	if !p.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, p.Channel)
	}
	return nil
}

// ResolveChannels computes the enabled channel set for a recipient and
// category from explicit preference rows plus per-channel defaults.
func ResolveChannels(prefs []NotificationPreference) []Channel {
	explicit := make(map[Channel]bool, len(prefs))
	for _, p := range prefs {
		explicit[p.Channel] = p.Enabled
	}

	var enabled []Channel
	for _, ch := range AllChannels() {
		on, ok := explicit[ch]
		if !ok {
			on = ch.DefaultEnabled()
		}
		if on {
			enabled = append(enabled, ch)
		}
	}
	return enabled
}
