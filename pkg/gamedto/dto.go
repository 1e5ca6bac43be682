// Package gamedto holds the transport-facing result shapes of the stats
// service.
package gamedto

// LeaderboardRow is one ranked player.
type LeaderboardRow struct {
	Rank       int     `json:"rank"`
	PlayerID   string  `json:"player_id"`
	PlayerName string  `json:"player_name,omitempty"`
	Wins       int     `json:"wins"`
	Losses     int     `json:"losses"`
	Draws      int     `json:"draws"`
	Abandons   int     `json:"abandons"`
	WinRate    float64 `json:"win_rate"`
}

// LeaderboardPage is one page of the ranking.
type LeaderboardPage struct {
	Rows         []LeaderboardRow `json:"rows"`
	Page         int              `json:"page"`
	PageSize     int              `json:"page_size"`
	TotalPages   int              `json:"total_pages"`
	TotalPlayers int              `json:"total_players"`
}

// PlayerStats is the per-player record for one game type.
type PlayerStats struct {
	PlayerID   string  `json:"player_id"`
	PlayerName string  `json:"player_name,omitempty"`
	GameTypeID int     `json:"game_type_id"`
	Wins       int     `json:"wins"`
	Losses     int     `json:"losses"`
	Draws      int     `json:"draws"`
	Abandons   int     `json:"abandons"`
	Played     int     `json:"played"`
	WinRate    float64 `json:"win_rate"`
}
