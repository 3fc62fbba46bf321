package dal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Billy-Davies-2/flashdraft/internal/models"
)

// SQLiteStore implements DraftStore using SQLite. Timestamps are stored as
// unix nanoseconds so ordering and retention stay numeric.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer at a time
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS drafts (
		draft_id TEXT PRIMARY KEY,
		set_code TEXT NOT NULL,
		status TEXT NOT NULL,
		player_count INTEGER NOT NULL,
		current_round INTEGER NOT NULL,
		current_pick INTEGER NOT NULL,
		action_count INTEGER NOT NULL,
		state TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_drafts_updated_at ON drafts(updated_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create drafts schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, state *models.DraftState) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO drafts (draft_id, set_code, status, player_count, current_round, current_pick, action_count, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(draft_id) DO UPDATE SET
			set_code = excluded.set_code,
			status = excluded.status,
			player_count = excluded.player_count,
			current_round = excluded.current_round,
			current_pick = excluded.current_pick,
			action_count = excluded.action_count,
			state = excluded.state,
			updated_at = excluded.updated_at
		WHERE excluded.action_count >= drafts.action_count
	`, state.DraftID, state.SetCode, string(state.Status), state.PlayerCount, state.CurrentRound, state.CurrentPick,
		len(state.ActionHistory), string(data), state.CreatedAt.UnixNano(), state.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save draft %s: %w", state.DraftID, err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, draftID string) (*models.DraftState, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM drafts WHERE draft_id = ?`, draftID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load draft %s: %w", draftID, err)
	}
	return decodeState([]byte(data))
}

func (s *SQLiteStore) Delete(ctx context.Context, draftID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE draft_id = ?`, draftID)
	if err != nil {
		return fmt.Errorf("delete draft %s: %w", draftID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]models.DraftSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
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
		var created, updated int64
		if err := rows.Scan(&sum.DraftID, &sum.SetCode, &status, &sum.PlayerCount, &sum.CurrentRound,
			&sum.CurrentPick, &sum.ActionCount, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan draft summary: %w", err)
		}
		sum.Status = models.DraftStatus(status)
		sum.CreatedAt = time.Unix(0, created).UTC()
		sum.UpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Stats(ctx context.Context) (StoreStats, error) {
	var stats StoreStats
	var oldest, newest sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(LENGTH(state)), 0), MIN(updated_at), MAX(updated_at) FROM drafts
	`).Scan(&stats.Drafts, &stats.TotalBytes, &oldest, &newest)
	if err != nil {
		return StoreStats{}, fmt.Errorf("draft stats: %w", err)
	}
	if oldest.Valid {
		stats.Oldest = time.Unix(0, oldest.Int64).UTC()
	}
	if newest.Valid {
		stats.Newest = time.Unix(0, newest.Int64).UTC()
	}
	return stats, nil
}

func (s *SQLiteStore) Cleanup(ctx context.Context, policy RetentionPolicy) (int, error) {
	removed := 0
	if cutoff, ok := policy.cutoff(); ok {
		res, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE updated_at < ?`, cutoff.UnixNano())
		if err != nil {
			return removed, fmt.Errorf("cleanup by age: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += int(n)
	}
	if policy.MaxCount > 0 {
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM drafts WHERE draft_id NOT IN (
				SELECT draft_id FROM drafts ORDER BY updated_at DESC, draft_id ASC LIMIT ?
			)
		`, policy.MaxCount)
		if err != nil {
			return removed, fmt.Errorf("cleanup by count: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += int(n)
	}
	return removed, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
