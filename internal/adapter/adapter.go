// Package adapter contains the outbound delivery ports. Every channel
// implements the same contract; the orchestrator never branches on
// concrete adapter types.
package adapter

import (
	"context"

	"github.com/voxhub/notify-engine/internal/domain"
)

// Result is the classified outcome of a delivery attempt. Adapter
// failures are values, not errors: transport errors are caught and
// classified at the adapter boundary.
type Result struct {
	Outcome domain.Outcome
	Detail  string
	// ProviderMessageID is the external reference returned by the
	// transport, when one exists.
	ProviderMessageID string
	// ConfigError marks credential/configuration rejections. The
	// orchestrator disables the channel process-wide until corrected.
	ConfigError bool
}

func Success(messageID string) Result {
	return Result{Outcome: domain.OutcomeSuccess, ProviderMessageID: messageID}
}

func TransientFailure(detail string) Result {
	return Result{Outcome: domain.OutcomeTransientFailure, Detail: detail}
}

func PermanentFailure(detail string) Result {
	return Result{Outcome: domain.OutcomePermanentFailure, Detail: detail}
}

// Adapter delivers notifications over one channel.
type Adapter interface {
	Channel() domain.Channel
	Send(ctx context.Context, n domain.Notification) Result
	// SupportsBatch reports whether SendBatch accepts multiple
	// notifications in one transport call.
	SupportsBatch() bool
	// SendBatch delivers many notifications in one call and returns one
	// result per input, index-aligned. A non-nil error means the bulk
	// call failed in a way that cannot be decomposed per item; the
	// caller falls back to individual sends.
	SendBatch(ctx context.Context, notifications []domain.Notification) ([]Result, error)
}
