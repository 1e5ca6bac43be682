package arena

import (
	"errors"
	"time"

	"github.com/park285/Minigame-KakaoTalk-bot/internal/gamekit"
)

var (
	ErrInvalidArgs        = errors.New("invalid arguments")
	ErrSelfChallenge      = errors.New("cannot challenge yourself")
	ErrScopeBusy          = errors.New("player already has a challenge or game in this room")
	ErrNoPendingChallenge = errors.New("no pending challenge for that user")
	ErrNotChallenged      = errors.New("challenge is addressed to the other player")
	ErrNoActiveSession    = errors.New("no active game for that user in this room")
	ErrNotYourTurn        = errors.New("not your turn")
	ErrEndAlreadyAsked    = errors.New("you already asked to end this game")
	ErrNoEndRequest       = errors.New("no end-game request is pending")
	ErrOwnEndRequest      = errors.New("the other player has to answer this request")
	ErrEndConfirmPending  = errors.New("an end-game request is pending; answer it first")
)

// PlayerRef identifies a chat-platform user.
type PlayerRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ChallengeStatus string

const (
	ChallengePending  ChallengeStatus = "PENDING"
	ChallengeAccepted ChallengeStatus = "ACCEPTED"
	ChallengeDeclined ChallengeStatus = "DECLINED"
	ChallengeExpired  ChallengeStatus = "EXPIRED"
)

type SessionStatus string

const (
	StatusActive     SessionStatus = "ACTIVE"
	StatusEndConfirm SessionStatus = "END_CONFIRM"
	StatusCompleted  SessionStatus = "COMPLETED"
	StatusAbandoned  SessionStatus = "ABANDONED"
)

// Challenge is a pending game proposal. It occupies both players' scopes
// until it resolves or expires.
type Challenge struct {
	ID         string          `json:"id"`
	Room       string          `json:"room"`
	GameTypeID int             `json:"game_type_id"`
	Category   string          `json:"category,omitempty"`
	Challenger PlayerRef       `json:"challenger"`
	Challenged PlayerRef       `json:"challenged"`
	CreatedAt  time.Time       `json:"created_at"`
	Status     ChallengeStatus `json:"status"`

	gen uint64
}

// EndRequest is the transient mutual-end sub-state of an active session.
type EndRequest struct {
	ID          string    `json:"id"`
	RequestedBy int       `json:"requested_by"` // player index
	RequestedAt time.Time `json:"requested_at"`
}

// Session is one running game between two players in a room. All fields are
// guarded by the manager's lock; the rule-plugin state is owned exclusively
// by the session.
type Session struct {
	ID             string        `json:"id"`
	Room           string        `json:"room"`
	GameTypeID     int           `json:"game_type_id"`
	Players        [2]PlayerRef  `json:"players"` // index 0 is the challenger
	CurrentTurn    int           `json:"current_turn"`
	Status         SessionStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	LastActivityAt time.Time     `json:"last_activity_at"`
	EndRequest     *EndRequest   `json:"end_request,omitempty"`
	State          gamekit.State `json:"state"`
	// Submitted tracks per-round submissions for simultaneous games.
	Submitted [2]bool `json:"submitted,omitempty"`

	rules gamekit.Rules
	gen   uint64
}

func (s *Session) playerIndex(userID string) int {
	for i, p := range s.Players {
		if p.ID == userID {
			return i
		}
	}
	return -1
}

// Credit is what a terminal session books for one player.
type Credit string

const (
	CreditWin     Credit = "win"
	CreditLoss    Credit = "loss"
	CreditDraw    Credit = "draw"
	CreditAbandon Credit = "abandon"
)

// Outcome describes a terminal session for the statistics store.
type Outcome struct {
	SessionID  string
	GameTypeID int
	Room       string
	Players    [2]PlayerRef
	Credits    [2]Credit
	// Winner is a player index, -1 when nobody won.
	Winner  int
	Draw    bool
	EndedAt time.Time
}

// ChallengeView is an immutable copy handed to the presentation sink.
type ChallengeView struct {
	ID         string
	Room       string
	GameTypeID int
	GameName   string
	Challenger PlayerRef
	Challenged PlayerRef
	ExpiresIn  time.Duration
}

// SessionView is an immutable render-ready copy of a session.
type SessionView struct {
	ID          string
	Room        string
	GameTypeID  int
	GameName    string
	Players     [2]PlayerRef
	CurrentTurn int
	Status      SessionStatus
	Board       string
	Note        string
}

func (v SessionView) TurnPlayer() PlayerRef { return v.Players[v.CurrentTurn] }
