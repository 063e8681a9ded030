package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// postgresStore persists participants in Postgres. Sessions stay in memory;
// only the directory gains restart durability.
type postgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an sqlx handle as a durable participant Store.
// The participants table is created by the migrations under migrations/.
func NewPostgresStore(db *sqlx.DB) Store {
	return &postgresStore{db: db}
}

type participantRow struct {
	ID             int64           `db:"id"`
	Name           string          `db:"name"`
	Username       sql.NullString  `db:"username"`
	Email          sql.NullString  `db:"email"`
	Balance        decimal.Decimal `db:"balance"`
	TradingEnabled bool            `db:"trading_enabled"`
	Status         string          `db:"status"`
	CreatedAt      time.Time       `db:"created_at"`
	ApprovedAt     sql.NullTime    `db:"approved_at"`
}

func (r participantRow) toParticipant() Participant {
	p := Participant{
		ID:        r.ID,
		Name:      r.Name,
		Username:  r.Username.String,
		Email:     r.Email.String,
		Status:    Status(r.Status),
		CreatedAt: r.CreatedAt,
		Portfolio: Portfolio{
			Balance:        r.Balance,
			TradingEnabled: r.TradingEnabled,
		},
	}
	if r.ApprovedAt.Valid {
		p.ApprovedAt = r.ApprovedAt.Time
	}
	return p
}

const participantColumns = "id, name, username, email, balance, trading_enabled, status, created_at, approved_at"

func (s *postgresStore) Register(ctx context.Context, p Participant) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO participants (id, name, username, email, balance, trading_enabled, status, created_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Name, p.Username, p.Email,
		p.Portfolio.Balance, p.Portfolio.TradingEnabled, string(p.Status), p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	if affected == 0 {
		return ErrAlreadyRegistered
	}
	return nil
}

// Approve flips status and trading flag in a single statement so that two
// concurrent approvals of the same identifier cannot both succeed.
func (s *postgresStore) Approve(ctx context.Context, id int64) (Participant, error) {
	var row participantRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE participants
		SET status = $1, trading_enabled = TRUE, approved_at = NOW()
		WHERE id = $2 AND status = $3
		RETURNING `+participantColumns,
		string(StatusActive), id, string(StatusPending),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Participant{}, ErrNotPending
	}
	if err != nil {
		return Participant{}, fmt.Errorf("approve participant: %w", err)
	}
	return row.toParticipant(), nil
}

func (s *postgresStore) Find(ctx context.Context, id int64) (Participant, bool, error) {
	var row participantRow
	err := s.db.GetContext(ctx, &row,
		"SELECT "+participantColumns+" FROM participants WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return Participant{}, false, nil
	}
	if err != nil {
		return Participant{}, false, fmt.Errorf("find participant: %w", err)
	}
	return row.toParticipant(), true, nil
}

func (s *postgresStore) ListPending(ctx context.Context) ([]Participant, error) {
	return s.list(ctx, StatusPending)
}

func (s *postgresStore) ListActive(ctx context.Context) ([]Participant, error) {
	return s.list(ctx, StatusActive)
}

func (s *postgresStore) list(ctx context.Context, status Status) ([]Participant, error) {
	var rows []participantRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT "+participantColumns+" FROM participants WHERE status = $1 ORDER BY seq", string(status))
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	out := make([]Participant, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toParticipant())
	}
	return out, nil
}

func (s *postgresStore) Counts(ctx context.Context) (int, int, error) {
	var counts struct {
		Pending int `db:"pending"`
		Active  int `db:"active"`
	}
	err := s.db.GetContext(ctx, &counts, `
		SELECT
			COUNT(*) FILTER (WHERE status = $1) AS pending,
			COUNT(*) FILTER (WHERE status = $2) AS active
		FROM participants`,
		string(StatusPending), string(StatusActive),
	)
	if err != nil {
		return 0, 0, fmt.Errorf("count participants: %w", err)
	}
	return counts.Pending, counts.Active, nil
}
