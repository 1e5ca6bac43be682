package stats

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/Minigame-KakaoTalk-bot/internal/arena"
	"github.com/park285/Minigame-KakaoTalk-bot/internal/obslog"
	"github.com/park285/Minigame-KakaoTalk-bot/pkg/gamedto"
)

const (
	recordGuardPrefix = "stats:done:"
	recordGuardTTL    = 24 * time.Hour
	recordAttempts    = 3
)

// Service books session outcomes into the repository and serves the
// leaderboard queries. It implements the arena result recorder.
type Service struct {
	repo          Repository
	rdb           *redis.Client
	abandonIsLoss bool
	pageSize      int

	mu   sync.Mutex
	seen map[string]struct{} // session ids, used when redis is absent
}

type ServiceOption func(*Service)

// WithGuard enables the redis duplicate-record guard.
func WithGuard(rdb *redis.Client) ServiceOption {
	return func(s *Service) { s.rdb = rdb }
}

// WithAbandonAsLoss books abandons into the loss column.
func WithAbandonAsLoss(on bool) ServiceOption {
	return func(s *Service) { s.abandonIsLoss = on }
}

func WithPageSize(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

func NewService(repo Repository, opts ...ServiceOption) *Service {
	s := &Service{
		repo:     repo,
		pageSize: 10,
		seen:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record books one outcome exactly once per session id.
func (s *Service) Record(ctx context.Context, out arena.Outcome) error {
	if s.repo == nil {
		return nil
	}
	fresh, err := s.claim(ctx, out.SessionID)
	if err != nil {
		return err
	}
	if !fresh {
		obslog.L().Debug("stats_duplicate_outcome", zap.String("session_id", out.SessionID))
		return nil
	}

	applied := 0
	for i := 0; i < 2; i++ {
		d := s.delta(out.Credits[i])
		if d.zero() {
			continue
		}
		key := Key{PlayerID: out.Players[i].ID, ServerID: out.Room, GameTypeID: out.GameTypeID}
		if err := s.incrementWithRetry(ctx, key, out.Players[i].Name, d); err != nil {
			// Release only when nothing was booked. After a partial write
			// the claim stays held so a redelivery cannot double-count the
			// player whose counters already landed.
			if applied == 0 {
				s.release(ctx, out.SessionID)
			}
			return err
		}
		applied++
	}
	return nil
}

func (s *Service) delta(c arena.Credit) Delta {
	switch c {
	case arena.CreditWin:
		return Delta{Wins: 1}
	case arena.CreditLoss:
		return Delta{Losses: 1}
	case arena.CreditDraw:
		return Delta{Draws: 1}
	case arena.CreditAbandon:
		if s.abandonIsLoss {
			return Delta{Losses: 1}
		}
		return Delta{Abandons: 1}
	}
	return Delta{}
}

func (s *Service) claim(ctx context.Context, sessionID string) (bool, error) {
	if s.rdb != nil {
		ok, err := s.rdb.SetNX(ctx, recordGuardPrefix+sessionID, "1", recordGuardTTL).Result()
		if err == nil {
			return ok, nil
		}
		obslog.L().Warn("stats_guard_error", zap.Error(err))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[sessionID]; dup {
		return false, nil
	}
	s.seen[sessionID] = struct{}{}
	return true, nil
}

// release undoes a claim so a failed write can be retried by a later replay.
func (s *Service) release(ctx context.Context, sessionID string) {
	if s.rdb != nil {
		if err := s.rdb.Del(ctx, recordGuardPrefix+sessionID).Err(); err != nil {
			obslog.L().Warn("stats_guard_release_error", zap.Error(err))
		}
	}
	s.mu.Lock()
	delete(s.seen, sessionID)
	s.mu.Unlock()
}

func (s *Service) incrementWithRetry(ctx context.Context, key Key, name string, d Delta) error {
	var err error
	for attempt := 1; attempt <= recordAttempts; attempt++ {
		if err = s.repo.Increment(ctx, key, name, d); err == nil {
			return nil
		}
		obslog.L().Warn("stats_increment_retry",
			zap.String("player_id", key.PlayerID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}
	return err
}

// Leaderboard returns one ranked page. Ranking order: wins, then win rate,
// then player id for a stable tail.
func (s *Service) Leaderboard(ctx context.Context, gameTypeID int, scope Scope, page int) (gamedto.LeaderboardPage, error) {
	if s.repo == nil {
		return gamedto.LeaderboardPage{}, ErrPersistenceUnavailable
	}
	if page < 1 {
		return gamedto.LeaderboardPage{}, ErrInvalidPage
	}
	rows, err := s.repo.ListForRanking(ctx, gameTypeID, scope)
	if err != nil {
		return gamedto.LeaderboardPage{}, err
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Wins != rows[j].Wins {
			return rows[i].Wins > rows[j].Wins
		}
		ri, rj := winRate(rows[i]), winRate(rows[j])
		if ri != rj {
			return ri > rj
		}
		return rows[i].PlayerID < rows[j].PlayerID
	})

	total := len(rows)
	totalPages := (total + s.pageSize - 1) / s.pageSize
	if totalPages > 0 && page > totalPages {
		return gamedto.LeaderboardPage{}, ErrInvalidPage
	}

	out := gamedto.LeaderboardPage{
		Page:         page,
		PageSize:     s.pageSize,
		TotalPages:   totalPages,
		TotalPlayers: total,
	}
	start := (page - 1) * s.pageSize
	end := start + s.pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	for i, r := range rows[start:end] {
		out.Rows = append(out.Rows, gamedto.LeaderboardRow{
			Rank:       start + i + 1,
			PlayerID:   r.PlayerID,
			PlayerName: r.PlayerName,
			Wins:       r.Wins,
			Losses:     r.Losses,
			Draws:      r.Draws,
			Abandons:   r.Abandons,
			WinRate:    winRate(r),
		})
	}
	return out, nil
}

// PlayerStats returns a player's record; a player with no games gets a zero
// record, not an error.
func (s *Service) PlayerStats(ctx context.Context, playerID, playerName string, gameTypeID int, scope Scope) (gamedto.PlayerStats, error) {
	if s.repo == nil {
		return gamedto.PlayerStats{}, ErrPersistenceUnavailable
	}
	row, err := s.repo.PlayerTotals(ctx, playerID, gameTypeID, scope)
	if err != nil {
		return gamedto.PlayerStats{}, err
	}
	name := row.PlayerName
	if name == "" {
		name = playerName
	}
	return gamedto.PlayerStats{
		PlayerID:   playerID,
		PlayerName: name,
		GameTypeID: gameTypeID,
		Wins:       row.Wins,
		Losses:     row.Losses,
		Draws:      row.Draws,
		Abandons:   row.Abandons,
		Played:     row.Wins + row.Losses + row.Draws + row.Abandons,
		WinRate:    winRate(row),
	}, nil
}

// winRate is wins over wins+losses+draws; abandons only count when the
// abandon-as-loss policy folded them into losses.
func winRate(r Row) float64 {
	played := r.Wins + r.Losses + r.Draws
	if played == 0 {
		return 0
	}
	return float64(r.Wins) / float64(played)
}
