package domain

import (
	"fmt"
	"strings"
	"time"
)

// Outcome classifies the result of one delivery attempt on one channel.
type Outcome string

const (
	OutcomeSuccess          Outcome = "SUCCESS"
	OutcomeTransientFailure Outcome = "TRANSIENT_FAILURE"
	OutcomePermanentFailure Outcome = "PERMANENT_FAILURE"
)

func (o Outcome) String() string { return string(o) }

func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeSuccess, OutcomeTransientFailure, OutcomePermanentFailure:
		return true
	}
	return false
}

func ParseOutcomeFromString(s string) (Outcome, error) {
	o := Outcome(strings.ToUpper(strings.TrimSpace(s)))
	if !o.IsValid() {
		return "", fmt.Errorf("%w: invalid outcome %q", ErrValidation, s)
	}
	return o, nil
}

// DeliveryAttempt is the append-only record of one try to deliver a
// notification on one channel. Rows are never mutated; retention
// cleanup is the only deletion path.
type DeliveryAttempt struct {
	ID             string  `gorm:"type:uuid;primaryKey"`
	NotificationID string  `gorm:"type:uuid;not null"`
	Channel        Channel `gorm:"type:varchar(16);not null"`
	AttemptNumber  int     `gorm:"not null"`
	Outcome        Outcome `gorm:"type:varchar(24);not null"`
	ErrorDetail    *string `gorm:"type:text"`
	CreatedAt      time.Time
}
