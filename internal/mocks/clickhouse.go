package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/Billy-Davies-2/flashdraft/internal/clickhouse"
	"github.com/Billy-Davies-2/flashdraft/internal/logger"
)

// MockClickHouseClient keeps pick records in memory for local development
type MockClickHouseClient struct {
	mu    sync.Mutex
	picks []clickhouse.PickRecord
	err   error
}

// NewMockClickHouseClient creates an empty mock pick sink
func NewMockClickHouseClient() *MockClickHouseClient {
	logger.Info("Using MOCK ClickHouse client for local development")
	return &MockClickHouseClient{}
}

// FailWith makes subsequent writes return err; nil restores normal behavior
func (m *MockClickHouseClient) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *MockClickHouseClient) RecordPicks(ctx context.Context, picks []clickhouse.PickRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.picks = append(m.picks, picks...)
	return nil
}

func (m *MockClickHouseClient) CardStats(ctx context.Context, setCode string) ([]clickhouse.CardStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type acc struct {
		picks uint64
		sum   int
	}
	byCard := make(map[string]*acc)
	for _, p := range m.picks {
		if p.SetCode != setCode {
			continue
		}
		a, ok := byCard[p.CardID]
		if !ok {
			a = &acc{}
			byCard[p.CardID] = a
		}
		a.picks++
		a.sum += p.PickNumber
	}

	out := make([]clickhouse.CardStat, 0, len(byCard))
	for id, a := range byCard {
		out = append(out, clickhouse.CardStat{CardID: id, Picks: a.picks, AvgPick: float64(a.sum) / float64(a.picks)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Picks != out[j].Picks {
			return out[i].Picks > out[j].Picks
		}
		return out[i].CardID < out[j].CardID
	})
	return out, nil
}

// Picks returns a copy of every recorded pick
func (m *MockClickHouseClient) Picks() []clickhouse.PickRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]clickhouse.PickRecord(nil), m.picks...)
}

func (m *MockClickHouseClient) Close() error {
	return nil
}
