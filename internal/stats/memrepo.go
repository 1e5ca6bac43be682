package stats

import (
	"context"
	"sync"
)

// MemRepository keeps records in memory. It backs the bot when no database
// is configured and the service tests.
type MemRepository struct {
	mu   sync.Mutex
	rows map[Key]*Row
}

func NewMemRepository() *MemRepository {
	return &MemRepository{rows: make(map[Key]*Row)}
}

func (m *MemRepository) Increment(ctx context.Context, key Key, playerName string, d Delta) error {
	if d.zero() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[key]
	if !ok {
		row = &Row{PlayerID: key.PlayerID, ServerID: key.ServerID, GameTypeID: key.GameTypeID}
		m.rows[key] = row
	}
	if playerName != "" {
		row.PlayerName = playerName
	}
	row.Wins += d.Wins
	row.Losses += d.Losses
	row.Draws += d.Draws
	row.Abandons += d.Abandons
	return nil
}

func (m *MemRepository) ListForRanking(ctx context.Context, gameTypeID int, scope Scope) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !scope.Global {
		var out []Row
		for k, r := range m.rows {
			if k.GameTypeID == gameTypeID && k.ServerID == scope.ServerID {
				out = append(out, *r)
			}
		}
		return out, nil
	}

	agg := make(map[string]*Row)
	for k, r := range m.rows {
		if k.GameTypeID != gameTypeID {
			continue
		}
		a, ok := agg[k.PlayerID]
		if !ok {
			a = &Row{PlayerID: k.PlayerID, GameTypeID: gameTypeID}
			agg[k.PlayerID] = a
		}
		if r.PlayerName != "" {
			a.PlayerName = r.PlayerName
		}
		a.Wins += r.Wins
		a.Losses += r.Losses
		a.Draws += r.Draws
		a.Abandons += r.Abandons
	}
	out := make([]Row, 0, len(agg))
	for _, a := range agg {
		out = append(out, *a)
	}
	return out, nil
}

func (m *MemRepository) PlayerTotals(ctx context.Context, playerID string, gameTypeID int, scope Scope) (Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := Row{PlayerID: playerID, GameTypeID: gameTypeID, ServerID: scope.ServerID}
	for k, r := range m.rows {
		if k.PlayerID != playerID || k.GameTypeID != gameTypeID {
			continue
		}
		if !scope.Global && k.ServerID != scope.ServerID {
			continue
		}
		if r.PlayerName != "" {
			total.PlayerName = r.PlayerName
		}
		total.Wins += r.Wins
		total.Losses += r.Losses
		total.Draws += r.Draws
		total.Abandons += r.Abandons
	}
	return total, nil
}

func (m *MemRepository) Close() error { return nil }
