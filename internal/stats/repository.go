package stats

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Repository stores per-player win/loss records.
type Repository interface {
	Increment(ctx context.Context, key Key, playerName string, d Delta) error
	ListForRanking(ctx context.Context, gameTypeID int, scope Scope) ([]Row, error)
	PlayerTotals(ctx context.Context, playerID string, gameTypeID int, scope Scope) (Row, error)
	Close() error
}

// SQLRepository persists records to postgres, one row per
// (player, room, game type).
type SQLRepository struct {
	db *sql.DB
}

func NewSQLRepository(databaseURL string) (*SQLRepository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	r := &SQLRepository{db: db}
	if err := r.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLRepository) ensureSchema(ctx context.Context) error {
	q := `CREATE TABLE IF NOT EXISTS leaderboard (
        player_id   TEXT NOT NULL,
        player_name TEXT NOT NULL DEFAULT '',
        server_id   TEXT NOT NULL,
        game_id     INT  NOT NULL,
        wins        INT  NOT NULL DEFAULT 0,
        losses      INT  NOT NULL DEFAULT 0,
        draws       INT  NOT NULL DEFAULT 0,
        abandons    INT  NOT NULL DEFAULT 0,
        updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (player_id, server_id, game_id)
    )`
	_, err := r.db.ExecContext(ctx, q)
	return err
}

func (r *SQLRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *SQLRepository) Increment(ctx context.Context, key Key, playerName string, d Delta) error {
	if d.zero() {
		return nil
	}
	q := `INSERT INTO leaderboard (
        player_id, player_name, server_id, game_id, wins, losses, draws, abandons
      ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
      ON CONFLICT (player_id, server_id, game_id) DO UPDATE SET
        player_name=EXCLUDED.player_name,
        wins=leaderboard.wins+EXCLUDED.wins,
        losses=leaderboard.losses+EXCLUDED.losses,
        draws=leaderboard.draws+EXCLUDED.draws,
        abandons=leaderboard.abandons+EXCLUDED.abandons,
        updated_at=now()`
	_, err := r.db.ExecContext(ctx, q,
		key.PlayerID, strings.TrimSpace(playerName), key.ServerID, key.GameTypeID,
		d.Wins, d.Losses, d.Draws, d.Abandons,
	)
	return err
}

func (r *SQLRepository) ListForRanking(ctx context.Context, gameTypeID int, scope Scope) ([]Row, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if scope.Global {
		// aggregate a player's records across rooms
		q := `SELECT player_id, MAX(player_name),
                SUM(wins), SUM(losses), SUM(draws), SUM(abandons)
              FROM leaderboard WHERE game_id=$1
              GROUP BY player_id`
		rows, err = r.db.QueryContext(ctx, q, gameTypeID)
	} else {
		q := `SELECT player_id, player_name, wins, losses, draws, abandons
              FROM leaderboard WHERE game_id=$1 AND server_id=$2`
		rows, err = r.db.QueryContext(ctx, q, gameTypeID, scope.ServerID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row := Row{GameTypeID: gameTypeID, ServerID: scope.ServerID}
		if err := rows.Scan(&row.PlayerID, &row.PlayerName, &row.Wins, &row.Losses, &row.Draws, &row.Abandons); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *SQLRepository) PlayerTotals(ctx context.Context, playerID string, gameTypeID int, scope Scope) (Row, error) {
	row := Row{PlayerID: playerID, GameTypeID: gameTypeID, ServerID: scope.ServerID}
	var (
		name string
		err  error
	)
	if scope.Global {
		q := `SELECT COALESCE(MAX(player_name),''),
                COALESCE(SUM(wins),0), COALESCE(SUM(losses),0),
                COALESCE(SUM(draws),0), COALESCE(SUM(abandons),0)
              FROM leaderboard WHERE player_id=$1 AND game_id=$2`
		err = r.db.QueryRowContext(ctx, q, playerID, gameTypeID).
			Scan(&name, &row.Wins, &row.Losses, &row.Draws, &row.Abandons)
	} else {
		q := `SELECT COALESCE(MAX(player_name),''),
                COALESCE(SUM(wins),0), COALESCE(SUM(losses),0),
                COALESCE(SUM(draws),0), COALESCE(SUM(abandons),0)
              FROM leaderboard WHERE player_id=$1 AND game_id=$2 AND server_id=$3`
		err = r.db.QueryRowContext(ctx, q, playerID, gameTypeID, scope.ServerID).
			Scan(&name, &row.Wins, &row.Losses, &row.Draws, &row.Abandons)
	}
	if err != nil {
		return Row{}, err
	}
	row.PlayerName = name
	return row, nil
}
