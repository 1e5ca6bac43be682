package arena

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/Minigame-KakaoTalk-bot/internal/gamekit"
	"github.com/park285/Minigame-KakaoTalk-bot/internal/obslog"
)

// Config holds the timer windows of the session lifecycle.
type Config struct {
	ChallengeTimeout   time.Duration
	EndConfirmTimeout  time.Duration
	AFKTimeout         time.Duration
	SweepInterval      time.Duration
	AllowUnilateralEnd bool
}

// Manager is the session store and state machine. Every mutation — challenge
// responses, moves, end confirmations, timer fires — runs under one mutex, so
// no two transitions for the same session can interleave. Timer callbacks
// re-validate status and a per-entity generation counter before acting;
// stale fires are silent no-ops.
type Manager struct {
	mu    sync.Mutex
	cfg   Config
	reg   *gamekit.Registry
	sink  Sink
	rec   Recorder
	snaps *Snapshots
	rng   *rand.Rand

	challenges map[string]*Challenge // by id
	sessions   map[string]*Session   // by id
	byScope    map[string]string     // (room, player) -> "c:<id>" | "s:<id>"

	stopCh   chan struct{}
	stopOnce sync.Once
}

type Option func(*Manager)

func WithSink(s Sink) Option           { return func(m *Manager) { m.sink = s } }
func WithRecorder(r Recorder) Option   { return func(m *Manager) { m.rec = r } }
func WithSnapshots(s *Snapshots) Option { return func(m *Manager) { m.snaps = s } }

// WithRand fixes the rng used for initial states; tests use it for
// deterministic boards.
func WithRand(r *rand.Rand) Option { return func(m *Manager) { m.rng = r } }

func NewManager(cfg Config, reg *gamekit.Registry, opts ...Option) *Manager {
	m := &Manager{
		cfg:        cfg,
		reg:        reg,
		sink:       NopSink{},
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		challenges: make(map[string]*Challenge),
		sessions:   make(map[string]*Session),
		byScope:    make(map[string]string),
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the AFK sweep. Call Close to stop it.
func (m *Manager) Start() {
	if m.cfg.AFKTimeout <= 0 || m.cfg.SweepInterval <= 0 {
		return
	}
	go m.sweepLoop()
}

func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func scopeKey(room, userID string) string { return room + "|" + userID }

// Challenge creates a pending challenge and arms its expiry timer.
func (m *Manager) Challenge(ctx context.Context, room string, challenger, challenged PlayerRef, gameTypeID int, category string) error {
	if strings.TrimSpace(room) == "" || challenger.ID == "" || challenged.ID == "" {
		return ErrInvalidArgs
	}
	if challenger.ID == challenged.ID {
		return ErrSelfChallenge
	}
	rules, err := m.reg.Get(gameTypeID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if _, busy := m.byScope[scopeKey(room, challenger.ID)]; busy {
		m.mu.Unlock()
		return ErrScopeBusy
	}
	if _, busy := m.byScope[scopeKey(room, challenged.ID)]; busy {
		m.mu.Unlock()
		return ErrScopeBusy
	}
	// Validate game options up front so a bad category fails the challenge,
	// not the accept. The shared rng is only touched under the lock.
	if _, err := rules.New(gamekit.Options{Rand: m.rng, Category: category}); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %v", gamekit.ErrIllegalMove, err)
	}

	ch := &Challenge{
		ID:         uuid.NewString(),
		Room:       room,
		GameTypeID: gameTypeID,
		Category:   strings.ToLower(strings.TrimSpace(category)),
		Challenger: challenger,
		Challenged: challenged,
		CreatedAt:  time.Now(),
		Status:     ChallengePending,
	}
	m.challenges[ch.ID] = ch
	m.byScope[scopeKey(room, challenger.ID)] = "c:" + ch.ID
	m.byScope[scopeKey(room, challenged.ID)] = "c:" + ch.ID

	gen := ch.gen
	time.AfterFunc(m.cfg.ChallengeTimeout, func() { m.expireChallenge(ch.ID, gen) })

	view := m.challengeViewLocked(ch)
	m.mu.Unlock()

	obslog.L().Info("challenge_issued",
		zap.String("challenge_id", ch.ID),
		zap.String("room", room),
		zap.Int("game_type", gameTypeID),
		zap.String("challenger", challenger.ID),
		zap.String("challenged", challenged.ID),
	)
	m.sink.ChallengeIssued(view)
	return nil
}

// Respond resolves the pending challenge addressed to userID in room.
func (m *Manager) Respond(ctx context.Context, room, userID string, accept bool) error {
	m.mu.Lock()
	ref, ok := m.byScope[scopeKey(room, userID)]
	if !ok || !strings.HasPrefix(ref, "c:") {
		m.mu.Unlock()
		return ErrNoPendingChallenge
	}
	ch := m.challenges[strings.TrimPrefix(ref, "c:")]
	if ch == nil || ch.Status != ChallengePending {
		m.mu.Unlock()
		return ErrNoPendingChallenge
	}
	if ch.Challenged.ID != userID {
		m.mu.Unlock()
		return ErrNotChallenged
	}

	ch.gen++ // cancels the expiry timer logically
	delete(m.challenges, ch.ID)

	if !accept {
		ch.Status = ChallengeDeclined
		delete(m.byScope, scopeKey(room, ch.Challenger.ID))
		delete(m.byScope, scopeKey(room, ch.Challenged.ID))
		view := m.challengeViewLocked(ch)
		m.mu.Unlock()
		obslog.L().Info("challenge_declined", zap.String("challenge_id", ch.ID), zap.String("room", room))
		m.sink.ChallengeDeclined(view)
		return nil
	}

	rules, err := m.reg.Get(ch.GameTypeID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	st, err := rules.New(gamekit.Options{Rand: m.rng, Category: ch.Category})
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %v", gamekit.ErrIllegalMove, err)
	}

	ch.Status = ChallengeAccepted
	now := time.Now()
	sess := &Session{
		ID:             uuid.NewString(),
		Room:           room,
		GameTypeID:     ch.GameTypeID,
		Players:        [2]PlayerRef{ch.Challenger, ch.Challenged},
		CurrentTurn:    0, // challenger opens
		Status:         StatusActive,
		CreatedAt:      now,
		LastActivityAt: now,
		State:          st,
		rules:          rules,
	}
	m.sessions[sess.ID] = sess
	m.byScope[scopeKey(room, ch.Challenger.ID)] = "s:" + sess.ID
	m.byScope[scopeKey(room, ch.Challenged.ID)] = "s:" + sess.ID

	view := m.sessionViewLocked(sess, "")
	snap := m.snapshotLocked(sess)
	m.mu.Unlock()

	obslog.L().Info("session_started",
		zap.String("session_id", sess.ID),
		zap.String("room", room),
		zap.Int("game_type", sess.GameTypeID),
		zap.String("player0", sess.Players[0].ID),
		zap.String("player1", sess.Players[1].ID),
	)
	m.saveSnapshot(snap)
	m.sink.SessionStarted(view)
	return nil
}

// Submit is the turn engine: it validates whose turn it is, applies the move
// through the rules plugin, and drives terminal detection.
func (m *Manager) Submit(ctx context.Context, room, userID, move string) error {
	m.mu.Lock()
	sess, idx, err := m.sessionForLocked(room, userID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if sess.Status == StatusEndConfirm {
		m.mu.Unlock()
		return ErrEndConfirmPending
	}
	if !sess.rules.Simultaneous() && idx != sess.CurrentTurn {
		m.mu.Unlock()
		return ErrNotYourTurn
	}
	if sess.rules.Simultaneous() && sess.Submitted[idx] {
		m.mu.Unlock()
		return gamekit.ErrAlreadySubmitted
	}

	step, err := safeApply(sess.rules, sess.State, idx, move)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	sess.State = step.State
	sess.LastActivityAt = time.Now()
	if sess.rules.Simultaneous() {
		sess.Submitted[idx] = true
	} else {
		sess.CurrentTurn = step.NextTurn
	}

	res := sess.rules.Terminal(sess.State)
	if res.Finished {
		view, out := m.completeLocked(sess, res)
		snapID := sess.ID
		players := sess.Players
		m.mu.Unlock()
		m.deleteSnapshot(snapID, players)
		m.sink.SessionCompleted(view, out)
		m.record(out)
		return nil
	}

	view := m.sessionViewLocked(sess, step.Note)
	snap := m.snapshotLocked(sess)
	m.mu.Unlock()

	m.saveSnapshot(snap)
	m.sink.StateUpdated(view)
	return nil
}

// RequestEnd starts the mutual-end handshake, or finishes it when the other
// player already asked. With the unilateral-end policy the session is
// abandoned immediately, crediting the opponent.
func (m *Manager) RequestEnd(ctx context.Context, room, userID string) error {
	m.mu.Lock()
	sess, idx, err := m.sessionForLocked(room, userID)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	if sess.Status == StatusEndConfirm {
		if sess.EndRequest != nil && sess.EndRequest.RequestedBy == idx {
			m.mu.Unlock()
			return ErrEndAlreadyAsked
		}
		// Both players want out: resolve as an accepted mutual end.
		return m.acceptEndLocked(sess)
	}

	if m.cfg.AllowUnilateralEnd {
		return m.abandonLocked(sess, idx)
	}

	sess.Status = StatusEndConfirm
	sess.EndRequest = &EndRequest{ID: uuid.NewString(), RequestedBy: idx, RequestedAt: time.Now()}
	sess.LastActivityAt = time.Now()
	sess.gen++
	gen := sess.gen
	time.AfterFunc(m.cfg.EndConfirmTimeout, func() { m.expireEndRequest(sess.ID, gen) })

	view := m.sessionViewLocked(sess, "")
	by := sess.Players[idx]
	snap := m.snapshotLocked(sess)
	m.mu.Unlock()

	obslog.L().Info("end_confirm_requested", zap.String("session_id", view.ID), zap.String("user_id", userID))
	m.saveSnapshot(snap)
	m.sink.EndConfirmationRequested(view, by)
	return nil
}

// RespondEnd answers a pending end-game request.
func (m *Manager) RespondEnd(ctx context.Context, room, userID string, accept bool) error {
	m.mu.Lock()
	sess, idx, err := m.sessionForLocked(room, userID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if sess.Status != StatusEndConfirm || sess.EndRequest == nil {
		m.mu.Unlock()
		return ErrNoEndRequest
	}
	if sess.EndRequest.RequestedBy == idx {
		m.mu.Unlock()
		return ErrOwnEndRequest
	}

	if accept {
		return m.acceptEndLocked(sess)
	}
	return m.declineEndLocked(sess, false)
}

// Resign abandons the caller's session, crediting the opponent with a win.
func (m *Manager) Resign(ctx context.Context, room, userID string) error {
	m.mu.Lock()
	sess, idx, err := m.sessionForLocked(room, userID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	return m.abandonLocked(sess, idx)
}

// SessionFor returns a view of the caller's active session.
func (m *Manager) SessionFor(room, userID string) (SessionView, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, _, err := m.sessionForLocked(room, userID)
	if err != nil {
		return SessionView{}, false
	}
	return m.sessionViewLocked(sess, ""), true
}

// ActiveSessions lists running sessions, oldest first.
func (m *Manager) ActiveSessions() []SessionView {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SessionView, 0, len(m.sessions))
	order := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		order = append(order, s)
	}
	sort.Slice(order, func(i, j int) bool { return order[i].CreatedAt.Before(order[j].CreatedAt) })
	for _, s := range order {
		out = append(out, m.sessionViewLocked(s, ""))
	}
	return out
}

// --- internal transitions (callers hold the lock; these unlock) ---

func (m *Manager) acceptEndLocked(sess *Session) error {
	sess.Status = StatusCompleted
	sess.EndRequest = nil
	sess.gen++
	m.freeScopesLocked(sess)

	out := Outcome{
		SessionID:  sess.ID,
		GameTypeID: sess.GameTypeID,
		Room:       sess.Room,
		Players:    sess.Players,
		Credits:    [2]Credit{CreditDraw, CreditDraw},
		Winner:     -1,
		Draw:       true,
		EndedAt:    time.Now(),
	}
	view := m.sessionViewLocked(sess, "")
	id, players := sess.ID, sess.Players
	delete(m.sessions, sess.ID)
	m.mu.Unlock()

	obslog.L().Info("session_mutual_end", zap.String("session_id", id))
	m.deleteSnapshot(id, players)
	m.sink.EndConfirmationResolved(view, true)
	m.record(out)
	return nil
}

func (m *Manager) declineEndLocked(sess *Session, byTimeout bool) error {
	sess.Status = StatusActive
	sess.EndRequest = nil
	sess.gen++
	sess.LastActivityAt = time.Now()

	view := m.sessionViewLocked(sess, "")
	snap := m.snapshotLocked(sess)
	m.mu.Unlock()

	obslog.L().Info("end_confirm_declined", zap.String("session_id", view.ID), zap.Bool("timeout", byTimeout))
	m.saveSnapshot(snap)
	m.sink.EndConfirmationResolved(view, false)
	return nil
}

func (m *Manager) abandonLocked(sess *Session, quitter int) error {
	sess.Status = StatusAbandoned
	sess.EndRequest = nil
	sess.gen++
	m.freeScopesLocked(sess)

	credits := [2]Credit{}
	credits[quitter] = CreditAbandon
	credits[1-quitter] = CreditWin
	out := Outcome{
		SessionID:  sess.ID,
		GameTypeID: sess.GameTypeID,
		Room:       sess.Room,
		Players:    sess.Players,
		Credits:    credits,
		Winner:     1 - quitter,
		EndedAt:    time.Now(),
	}
	view := m.sessionViewLocked(sess, "")
	idle := sess.Players[quitter]
	id, players := sess.ID, sess.Players
	delete(m.sessions, sess.ID)
	m.mu.Unlock()

	obslog.L().Info("session_abandoned",
		zap.String("session_id", id),
		zap.String("quitter", idle.ID),
		zap.String("winner", out.Players[out.Winner].ID),
	)
	m.deleteSnapshot(id, players)
	m.sink.SessionAbandoned(view, idle, out)
	m.record(out)
	return nil
}

// completeLocked finishes a session on a terminal rule result. The caller
// still holds the lock and unlocks after using the returned view.
func (m *Manager) completeLocked(sess *Session, res gamekit.Result) (SessionView, Outcome) {
	sess.Status = StatusCompleted
	sess.gen++
	m.freeScopesLocked(sess)

	credits := [2]Credit{CreditDraw, CreditDraw}
	if res.Winner >= 0 {
		credits[res.Winner] = CreditWin
		credits[1-res.Winner] = CreditLoss
	}
	out := Outcome{
		SessionID:  sess.ID,
		GameTypeID: sess.GameTypeID,
		Room:       sess.Room,
		Players:    sess.Players,
		Credits:    credits,
		Winner:     res.Winner,
		Draw:       res.Draw,
		EndedAt:    time.Now(),
	}
	view := m.sessionViewLocked(sess, "")
	delete(m.sessions, sess.ID)

	obslog.L().Info("session_completed",
		zap.String("session_id", sess.ID),
		zap.Int("game_type", sess.GameTypeID),
		zap.Int("winner", res.Winner),
		zap.Bool("draw", res.Draw),
	)
	return view, out
}

func (m *Manager) freeScopesLocked(sess *Session) {
	delete(m.byScope, scopeKey(sess.Room, sess.Players[0].ID))
	delete(m.byScope, scopeKey(sess.Room, sess.Players[1].ID))
}

func (m *Manager) sessionForLocked(room, userID string) (*Session, int, error) {
	ref, ok := m.byScope[scopeKey(room, userID)]
	if !ok || !strings.HasPrefix(ref, "s:") {
		return nil, -1, ErrNoActiveSession
	}
	sess := m.sessions[strings.TrimPrefix(ref, "s:")]
	if sess == nil {
		return nil, -1, ErrNoActiveSession
	}
	idx := sess.playerIndex(userID)
	if idx < 0 {
		return nil, -1, ErrNoActiveSession
	}
	return sess, idx, nil
}

// --- timer callbacks ---

func (m *Manager) expireChallenge(id string, gen uint64) {
	m.mu.Lock()
	ch, ok := m.challenges[id]
	if !ok || ch.Status != ChallengePending || ch.gen != gen {
		// already resolved; stale fire
		m.mu.Unlock()
		return
	}
	ch.Status = ChallengeExpired
	ch.gen++
	delete(m.challenges, id)
	delete(m.byScope, scopeKey(ch.Room, ch.Challenger.ID))
	delete(m.byScope, scopeKey(ch.Room, ch.Challenged.ID))
	view := m.challengeViewLocked(ch)
	m.mu.Unlock()

	obslog.L().Info("challenge_expired", zap.String("challenge_id", id), zap.String("room", ch.Room))
	m.sink.ChallengeExpired(view)
}

func (m *Manager) expireEndRequest(sessID string, gen uint64) {
	m.mu.Lock()
	sess, ok := m.sessions[sessID]
	if !ok || sess.Status != StatusEndConfirm || sess.gen != gen {
		m.mu.Unlock()
		return
	}
	// auto-decline
	_ = m.declineEndLocked(sess, true)
}

// --- AFK sweep ---

func (m *Manager) sweepLoop() {
	t := time.NewTicker(m.cfg.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-t.C:
			m.sweepOnce(time.Now())
		}
	}
}

func (m *Manager) sweepOnce(now time.Time) {
	type hit struct {
		view SessionView
		idle PlayerRef
		out  Outcome
		id   string
		pl   [2]PlayerRef
	}
	var hits []hit

	m.mu.Lock()
	for _, sess := range m.sessions {
		if sess.Status != StatusActive {
			continue
		}
		if now.Sub(sess.LastActivityAt) <= m.cfg.AFKTimeout {
			continue
		}
		idleIdx, bothIdle := m.idlePlayerLocked(sess)

		sess.Status = StatusAbandoned
		sess.gen++
		m.freeScopesLocked(sess)

		credits := [2]Credit{}
		winner := -1
		if bothIdle {
			credits[0], credits[1] = CreditAbandon, CreditAbandon
		} else {
			credits[idleIdx] = CreditAbandon
			credits[1-idleIdx] = CreditWin
			winner = 1 - idleIdx
		}
		out := Outcome{
			SessionID:  sess.ID,
			GameTypeID: sess.GameTypeID,
			Room:       sess.Room,
			Players:    sess.Players,
			Credits:    credits,
			Winner:     winner,
			EndedAt:    now,
		}
		hits = append(hits, hit{
			view: m.sessionViewLocked(sess, ""),
			idle: sess.Players[idleIdx],
			out:  out,
			id:   sess.ID,
			pl:   sess.Players,
		})
		delete(m.sessions, sess.ID)
	}
	m.mu.Unlock()

	for _, h := range hits {
		obslog.L().Info("session_afk_abandoned",
			zap.String("session_id", h.id),
			zap.String("idle_player", h.idle.ID),
		)
		m.deleteSnapshot(h.id, h.pl)
		m.sink.SessionAbandoned(h.view, h.idle, h.out)
		m.record(h.out)
	}
}

// idlePlayerLocked decides who gets the abandon on an AFK timeout: the
// player on turn for alternating games, the player who has not submitted for
// simultaneous ones. Both idle when neither has submitted.
func (m *Manager) idlePlayerLocked(sess *Session) (int, bool) {
	if !sess.rules.Simultaneous() {
		return sess.CurrentTurn, false
	}
	switch {
	case sess.Submitted[0] && !sess.Submitted[1]:
		return 1, false
	case !sess.Submitted[0] && sess.Submitted[1]:
		return 0, false
	default:
		return 0, true
	}
}

// --- views, persistence, recording ---

func (m *Manager) challengeViewLocked(ch *Challenge) ChallengeView {
	name := ""
	if rules, err := m.reg.Get(ch.GameTypeID); err == nil {
		name = rules.Name()
	}
	return ChallengeView{
		ID:         ch.ID,
		Room:       ch.Room,
		GameTypeID: ch.GameTypeID,
		GameName:   name,
		Challenger: ch.Challenger,
		Challenged: ch.Challenged,
		ExpiresIn:  m.cfg.ChallengeTimeout,
	}
}

func (m *Manager) sessionViewLocked(sess *Session, note string) SessionView {
	return SessionView{
		ID:          sess.ID,
		Room:        sess.Room,
		GameTypeID:  sess.GameTypeID,
		GameName:    sess.rules.Name(),
		Players:     sess.Players,
		CurrentTurn: sess.CurrentTurn,
		Status:      sess.Status,
		Board:       sess.rules.Render(sess.State),
		Note:        note,
	}
}

func (m *Manager) snapshotLocked(sess *Session) *Session {
	if m.snaps == nil {
		return nil
	}
	cp := *sess
	return &cp
}

func (m *Manager) saveSnapshot(cp *Session) {
	if m.snaps == nil || cp == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := m.snaps.Save(ctx, cp); err != nil {
		obslog.L().Warn("snapshot_save_error", zap.String("session_id", cp.ID), zap.Error(err))
	}
}

func (m *Manager) deleteSnapshot(id string, players [2]PlayerRef) {
	if m.snaps == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := m.snaps.Delete(ctx, id, players); err != nil {
		obslog.L().Warn("snapshot_delete_error", zap.String("session_id", id), zap.Error(err))
	}
}

func (m *Manager) record(out Outcome) {
	if m.rec == nil {
		return
	}
	// Off the turn-acceptance path; the recorder retries on its own.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := m.rec.Record(ctx, out); err != nil {
			obslog.L().Error("result_record_error", zap.String("session_id", out.SessionID), zap.Error(err))
		}
	}()
}

// safeApply shields the engine from rule-plugin panics; a panic surfaces as
// a generic illegal move and the session state stays untouched.
func safeApply(rules gamekit.Rules, st gamekit.State, player int, move string) (step gamekit.Step, err error) {
	defer func() {
		if r := recover(); r != nil {
			obslog.L().Error("rules_panic", zap.Int("game_type", rules.ID()), zap.Any("panic", r))
			step = gamekit.Step{}
			err = fmt.Errorf("%w: the move could not be applied", gamekit.ErrIllegalMove)
		}
	}()
	return rules.Apply(st, player, move)
}
