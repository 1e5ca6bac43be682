package arena

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	snapshotKeyPrefix = "arena:session:"
	snapshotIndexKey  = "arena:index:user:"
	snapshotTTL       = 24 * time.Hour
)

var ErrSnapshotNotFound = errors.New("session snapshot not found")

// SessionRecord is the persisted shape of a session. The game state is kept
// as raw JSON; its concrete type belongs to the rules plugin.
type SessionRecord struct {
	ID             string          `json:"id"`
	Room           string          `json:"room"`
	GameTypeID     int             `json:"game_type_id"`
	Players        [2]PlayerRef    `json:"players"`
	CurrentTurn    int             `json:"current_turn"`
	Status         SessionStatus   `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	LastActivityAt time.Time       `json:"last_activity_at"`
	EndRequest     *EndRequest     `json:"end_request,omitempty"`
	State          json.RawMessage `json:"state"`
	Submitted      [2]bool         `json:"submitted"`
}

// Snapshots persists session documents to redis so a restart leaves a trail
// of what was in flight. Keys carry a TTL; terminal sessions are deleted.
type Snapshots struct {
	rdb *redis.Client
}

func NewSnapshots(rdb *redis.Client) *Snapshots {
	return &Snapshots{rdb: rdb}
}

func (s *Snapshots) Save(ctx context.Context, sess *Session) error {
	stateJSON, err := json.Marshal(sess.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	rec := SessionRecord{
		ID:             sess.ID,
		Room:           sess.Room,
		GameTypeID:     sess.GameTypeID,
		Players:        sess.Players,
		CurrentTurn:    sess.CurrentTurn,
		Status:         sess.Status,
		CreatedAt:      sess.CreatedAt,
		LastActivityAt: sess.LastActivityAt,
		EndRequest:     sess.EndRequest,
		State:          stateJSON,
		Submitted:      sess.Submitted,
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, snapshotKeyPrefix+sess.ID, payload, snapshotTTL)
	for _, p := range sess.Players {
		key := snapshotIndexKey + p.ID
		pipe.SAdd(ctx, key, sess.ID)
		pipe.Expire(ctx, key, snapshotTTL)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Snapshots) Load(ctx context.Context, sessionID string) (*SessionRecord, error) {
	raw, err := s.rdb.Get(ctx, snapshotKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec SessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &rec, nil
}

// SessionIDsFor lists session ids indexed for a player.
func (s *Snapshots) SessionIDsFor(ctx context.Context, playerID string) ([]string, error) {
	return s.rdb.SMembers(ctx, snapshotIndexKey+playerID).Result()
}

func (s *Snapshots) Delete(ctx context.Context, sessionID string, players [2]PlayerRef) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, snapshotKeyPrefix+sessionID)
	for _, p := range players {
		pipe.SRem(ctx, snapshotIndexKey+p.ID, sessionID)
	}
	_, err := pipe.Exec(ctx)
	return err
}
