// Package adminmsg implements operator-to-participant messaging: direct
// messages and broadcast fan-out with per-recipient delivery accounting.
// Authorization stays with the caller; this service is authorization-agnostic.
package adminmsg

import (
	"context"
	"fmt"
	"time"

	"tradebot/core/logger"
	"tradebot/internal/directory"

	"github.com/samber/lo"
	"log/slog"
)

// Courier is the messaging-platform boundary used for outbound delivery.
type Courier interface {
	SendText(ctx context.Context, recipientID int64, text string) error
}

// DeliveryError is a typed per-recipient delivery failure. The reason is
// surfaced to the operator; there is no automatic retry.
type DeliveryError struct {
	RecipientID int64
	Err         error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %d failed: %v", e.RecipientID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// BroadcastResult accumulates per-recipient outcomes for one fan-out.
type BroadcastResult struct {
	Succeeded int
	Failed    int
}

// Service delivers operator messages through a Courier, resolving default
// broadcast recipients from the participant directory.
type Service struct {
	directory *directory.Directory
	courier   Courier
}

// New wires the service.
func New(dir *directory.Directory, courier Courier) *Service {
	return &Service{directory: dir, courier: courier}
}

// SendDirect makes exactly one delivery attempt to the recipient and returns
// a *DeliveryError on failure.
func (s *Service) SendDirect(ctx context.Context, recipientID int64, text string) error {
	start := time.Now()
	if err := s.courier.SendText(ctx, recipientID, text); err != nil {
		logger.Warn(ctx, "service.adminmsg", "adminmsg.direct",
			slog.String("status", "fail"),
			slog.Int64("participant_id", recipientID),
			slog.String("err", err.Error()),
		)
		return &DeliveryError{RecipientID: recipientID, Err: err}
	}
	logger.Info(ctx, "service.adminmsg", "adminmsg.direct",
		slog.String("status", "ok"),
		slog.Int64("participant_id", recipientID),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

// Broadcast delivers text to every recipient independently: one attempt per
// recipient, a failure never aborts the rest of the batch. A nil recipients
// slice broadcasts to the directory's active snapshot. Zero recipients is a
// valid no-op, not an error.
func (s *Service) Broadcast(ctx context.Context, text string, recipients []directory.Participant) (BroadcastResult, error) {
	if recipients == nil {
		var err error
		recipients, err = s.directory.ListActive(ctx)
		if err != nil {
			return BroadcastResult{}, fmt.Errorf("broadcast recipients: %w", err)
		}
	}

	start := time.Now()
	var res BroadcastResult
	for _, p := range recipients {
		if err := s.courier.SendText(ctx, p.ID, text); err != nil {
			res.Failed++
			logger.Warn(ctx, "service.adminmsg", "adminmsg.broadcast.send",
				slog.String("status", "fail"),
				slog.Int64("participant_id", p.ID),
				slog.String("err", err.Error()),
			)
			continue
		}
		res.Succeeded++
	}

	logger.Info(ctx, "service.adminmsg", "adminmsg.broadcast",
		slog.String("status", "ok"),
		slog.Int("recipients", len(recipients)),
		slog.Int("succeeded", res.Succeeded),
		slog.Int("failed", res.Failed),
		slog.Any("recipient_ids", lo.Map(recipients, func(p directory.Participant, _ int) int64 { return p.ID })),
		slog.Duration("duration", logger.Took(start)),
	)
	return res, nil
}
