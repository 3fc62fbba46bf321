package dal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Billy-Davies-2/flashdraft/internal/logger"
	"github.com/Billy-Davies-2/flashdraft/internal/models"
)

// PostgresStore implements DraftStore using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to PostgreSQL, retrying the first ping while
// cluster DNS settles
func NewPostgresStore(connString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, err
	}

	// CloudNativePG default max_connections is 100
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	maxRetries := 5
	retryDelay := 5 * time.Second
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		lastErr = db.PingContext(ctx)
		cancel()
		if lastErr == nil {
			break
		}
		logger.Warn("Postgres ping failed", "attempt", i+1, "error", lastErr)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	if lastErr != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres after %d retries: %w", maxRetries, lastErr)
	}

	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (p *PostgresStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS drafts (
		draft_id TEXT PRIMARY KEY,
		set_code TEXT NOT NULL,
		status TEXT NOT NULL,
		player_count INTEGER NOT NULL,
		current_round INTEGER NOT NULL,
		current_pick INTEGER NOT NULL,
		action_count INTEGER NOT NULL,
		state JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_drafts_updated_at ON drafts(updated_at DESC);
	CREATE INDEX IF NOT EXISTS idx_drafts_set_code ON drafts(set_code);
	`
	if _, err := p.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create drafts schema: %w", err)
	}
	return nil
}

func (p *PostgresStore) Save(ctx context.Context, state *models.DraftState) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO drafts (draft_id, set_code, status, player_count, current_round, current_pick, action_count, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (draft_id) DO UPDATE SET
			set_code = EXCLUDED.set_code,
			status = EXCLUDED.status,
			player_count = EXCLUDED.player_count,
			current_round = EXCLUDED.current_round,
			current_pick = EXCLUDED.current_pick,
			action_count = EXCLUDED.action_count,
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at
		WHERE EXCLUDED.action_count >= drafts.action_count
	`, state.DraftID, state.SetCode, string(state.Status), state.PlayerCount, state.CurrentRound, state.CurrentPick,
		len(state.ActionHistory), string(data), state.CreatedAt, state.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save draft %s: %w", state.DraftID, err)
	}
	return nil
}

func (p *PostgresStore) Load(ctx context.Context, draftID string) (*models.DraftState, error) {
	var data []byte
	err := p.db.QueryRowContext(ctx, `SELECT state FROM drafts WHERE draft_id = $1`, draftID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load draft %s: %w", draftID, err)
	}
	return decodeState(data)
}

func (p *PostgresStore) Delete(ctx context.Context, draftID string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM drafts WHERE draft_id = $1`, draftID)
	if err != nil {
		return fmt.Errorf("delete draft %s: %w", draftID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context) ([]models.DraftSummary, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT draft_id, set_code, status, player_count, current_round, current_pick, action_count, created_at, updated_at
		FROM drafts
		ORDER BY updated_at DESC, draft_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	var out []models.DraftSummary
	for rows.Next() {
		var sum models.DraftSummary
		var status string
		if err := rows.Scan(&sum.DraftID, &sum.SetCode, &status, &sum.PlayerCount, &sum.CurrentRound,
			&sum.CurrentPick, &sum.ActionCount, &sum.CreatedAt, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan draft summary: %w", err)
		}
		sum.Status = models.DraftStatus(status)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Stats(ctx context.Context) (StoreStats, error) {
	var stats StoreStats
	var oldest, newest sql.NullTime
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(pg_column_size(state)), 0), MIN(updated_at), MAX(updated_at) FROM drafts
	`).Scan(&stats.Drafts, &stats.TotalBytes, &oldest, &newest)
	if err != nil {
		return StoreStats{}, fmt.Errorf("draft stats: %w", err)
	}
	if oldest.Valid {
		stats.Oldest = oldest.Time
	}
	if newest.Valid {
		stats.Newest = newest.Time
	}
	return stats, nil
}

func (p *PostgresStore) Cleanup(ctx context.Context, policy RetentionPolicy) (int, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	removed := 0
	if cutoff, ok := policy.cutoff(); ok {
		res, err := tx.ExecContext(ctx, `DELETE FROM drafts WHERE updated_at < $1`, cutoff)
		if err != nil {
			return 0, fmt.Errorf("cleanup by age: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += int(n)
	}
	if policy.MaxCount > 0 {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM drafts WHERE draft_id NOT IN (
				SELECT draft_id FROM drafts ORDER BY updated_at DESC, draft_id ASC LIMIT $1
			)
		`, policy.MaxCount)
		if err != nil {
			return 0, fmt.Errorf("cleanup by count: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return removed, nil
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}
