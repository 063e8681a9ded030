package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradebot/core/logger"

	"github.com/shopspring/decimal"
	"log/slog"
)

var (
	// ErrAlreadyRegistered reports that the identifier already appears in the
	// pending or active collection. Callers treat it as a recoverable signal.
	ErrAlreadyRegistered = errors.New("directory: participant already registered")
	// ErrNotPending reports that an approval targeted an identifier absent
	// from the pending collection.
	ErrNotPending = errors.New("directory: participant is not pending approval")
)

// Store owns the two disjoint participant collections. An identifier appears
// in at most one collection at any time; Approve must be atomic with respect
// to concurrent approvals of the same identifier.
type Store interface {
	Register(ctx context.Context, p Participant) error
	Approve(ctx context.Context, id int64) (Participant, error)
	Find(ctx context.Context, id int64) (Participant, bool, error)
	ListPending(ctx context.Context) ([]Participant, error)
	ListActive(ctx context.Context) ([]Participant, error)
	Counts(ctx context.Context) (pending, active int, err error)
}

// Directory is the service facade over a Store. All mutation goes through it
// so the disjointness invariant stays with the store implementations.
type Directory struct {
	store           Store
	startingBalance decimal.Decimal
}

// New wires a Directory around the provided store. startingBalance seeds the
// portfolio stub of every newly registered participant.
func New(store Store, startingBalance decimal.Decimal) *Directory {
	return &Directory{store: store, startingBalance: startingBalance}
}

// Register inserts a participant into the pending collection. Returns
// ErrAlreadyRegistered when the identifier is already known.
func (d *Directory) Register(ctx context.Context, p Participant) error {
	p.Status = StatusPending
	p.Portfolio.TradingEnabled = false
	p.Portfolio.Balance = d.startingBalance
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	start := time.Now()
	err := d.store.Register(ctx, p)
	if err != nil {
		if errors.Is(err, ErrAlreadyRegistered) {
			logger.Info(ctx, "service.directory", "directory.register",
				slog.String("status", "skip"),
				slog.Int64("participant_id", p.ID),
				slog.String("cause", "already_registered"),
			)
			return err
		}
		logger.Error(ctx, "service.directory", "directory.register",
			slog.String("status", "fail"),
			slog.Int64("participant_id", p.ID),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("directory register: %w", err)
	}

	logger.Info(ctx, "service.directory", "directory.register",
		slog.String("status", "ok"),
		slog.Int64("participant_id", p.ID),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

// Approve moves a pending participant to the active collection and enables
// trading on its portfolio stub. Returns ErrNotPending when the identifier is
// not awaiting approval; exactly one of two concurrent approvals succeeds.
func (d *Directory) Approve(ctx context.Context, id int64) (Participant, error) {
	start := time.Now()
	p, err := d.store.Approve(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotPending) {
			logger.Info(ctx, "service.directory", "directory.approve",
				slog.String("status", "skip"),
				slog.Int64("participant_id", id),
				slog.String("cause", "not_pending"),
			)
			return Participant{}, err
		}
		logger.Error(ctx, "service.directory", "directory.approve",
			slog.String("status", "fail"),
			slog.Int64("participant_id", id),
			slog.String("err", err.Error()),
		)
		return Participant{}, fmt.Errorf("directory approve: %w", err)
	}

	logger.Info(ctx, "service.directory", "directory.approve",
		slog.String("status", "ok"),
		slog.Int64("participant_id", id),
		slog.Duration("duration", logger.Took(start)),
	)
	return p, nil
}

// Find returns the participant for the identifier regardless of collection.
func (d *Directory) Find(ctx context.Context, id int64) (Participant, bool, error) {
	return d.store.Find(ctx, id)
}

// ListPending returns a snapshot of pending participants in registration order.
func (d *Directory) ListPending(ctx context.Context) ([]Participant, error) {
	return d.store.ListPending(ctx)
}

// ListActive returns a snapshot of active participants in registration order.
func (d *Directory) ListActive(ctx context.Context) ([]Participant, error) {
	return d.store.ListActive(ctx)
}

// Counts reports the sizes of both collections for the operator dashboard.
func (d *Directory) Counts(ctx context.Context) (pending, active int, err error) {
	return d.store.Counts(ctx)
}
