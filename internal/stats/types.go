package stats

import "errors"

var (
	ErrInvalidPage            = errors.New("leaderboard page out of range")
	ErrPersistenceUnavailable = errors.New("stats persistence is not configured")
)

// Key identifies one leaderboard row: a player's record for one game type in
// one room (server_id keeps the original column name).
type Key struct {
	PlayerID   string
	ServerID   string
	GameTypeID int
}

// Delta is the increment one finished session books for one player.
type Delta struct {
	Wins     int
	Losses   int
	Draws    int
	Abandons int
}

func (d Delta) zero() bool {
	return d.Wins == 0 && d.Losses == 0 && d.Draws == 0 && d.Abandons == 0
}

// Row is one stored record.
type Row struct {
	PlayerID   string
	PlayerName string
	ServerID   string
	GameTypeID int
	Wins       int
	Losses     int
	Draws      int
	Abandons   int
}

// Scope selects between a per-room ranking and the global one aggregated
// across rooms.
type Scope struct {
	Global   bool
	ServerID string
}
