package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// PickRecord is one card taken by one seat
type PickRecord struct {
	DraftID    string
	SetCode    string
	Round      int
	PickNumber int
	Seat       int
	CardID     string
	Human      bool
	At         time.Time
}

// CardStat aggregates the picks of one card
type CardStat struct {
	CardID  string  `json:"cardId"`
	Picks   uint64  `json:"picks"`
	AvgPick float64 `json:"avgPick"`
}

// PickSink stores pick records for analytics
type PickSink interface {
	RecordPicks(ctx context.Context, picks []PickRecord) error
	CardStats(ctx context.Context, setCode string) ([]CardStat, error)
	Close() error
}

// Client writes draft picks to ClickHouse
type Client struct {
	conn driver.Conn
}

// NewClient creates a new ClickHouse client
func NewClient(addr, database, username, password string) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		DialTimeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &Client{conn: conn}, nil
}

// EnsureSchema creates the picks table
func (c *Client) EnsureSchema(ctx context.Context) error {
	err := c.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS draft_picks (
			draft_id String,
			set_code LowCardinality(String),
			round UInt8,
			pick_number UInt8,
			seat UInt8,
			card_id String,
			human Bool,
			event_time DateTime64(3, 'UTC')
		)
		ENGINE = MergeTree
		ORDER BY (set_code, card_id, event_time)
	`)
	if err != nil {
		return fmt.Errorf("create draft_picks: %w", err)
	}
	return nil
}

// RecordPicks writes picks in one batch
func (c *Client) RecordPicks(ctx context.Context, picks []PickRecord) error {
	if len(picks) == 0 {
		return nil
	}
	batch, err := c.conn.PrepareBatch(ctx, "INSERT INTO draft_picks")
	if err != nil {
		return fmt.Errorf("prepare pick batch: %w", err)
	}
	for _, p := range picks {
		if err := batch.Append(p.DraftID, p.SetCode, uint8(p.Round), uint8(p.PickNumber), uint8(p.Seat), p.CardID, p.Human, p.At); err != nil {
			batch.Abort()
			return fmt.Errorf("append pick %s/%s: %w", p.DraftID, p.CardID, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send pick batch: %w", err)
	}
	return nil
}

// CardStats returns pick counts and average pick number per card in a set,
// most picked first
func (c *Client) CardStats(ctx context.Context, setCode string) ([]CardStat, error) {
	rows, err := c.conn.Query(ctx, `
		SELECT
			card_id,
			count() AS picks,
			avg(pick_number) AS avg_pick
		FROM draft_picks
		WHERE set_code = ?
		GROUP BY card_id
		ORDER BY picks DESC, card_id ASC
	`, setCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CardStat
	for rows.Next() {
		var s CardStat
		if err := rows.Scan(&s.CardID, &s.Picks, &s.AvgPick); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Close closes the ClickHouse connection
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
