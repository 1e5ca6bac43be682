package arena

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/Minigame-KakaoTalk-bot/internal/gamekit"
	"github.com/park285/Minigame-KakaoTalk-bot/internal/games/matching"
	"github.com/park285/Minigame-KakaoTalk-bot/internal/games/rps"
	"github.com/park285/Minigame-KakaoTalk-bot/internal/games/tictactoe"
)

var (
	alice = PlayerRef{ID: "u-alice", Name: "Alice"}
	bob   = PlayerRef{ID: "u-bob", Name: "Bob"}
)

const room = "room-1"

type eventLog struct {
	mu      sync.Mutex
	names   []string
	views   []SessionView
	outs    []Outcome
	chViews []ChallengeView
}

func (e *eventLog) add(name string) {
	e.mu.Lock()
	e.names = append(e.names, name)
	e.mu.Unlock()
}

func (e *eventLog) ChallengeIssued(v ChallengeView)   { e.addCh("issued", v) }
func (e *eventLog) ChallengeDeclined(v ChallengeView) { e.addCh("declined", v) }
func (e *eventLog) ChallengeExpired(v ChallengeView)  { e.addCh("expired", v) }

func (e *eventLog) addCh(name string, v ChallengeView) {
	e.mu.Lock()
	e.names = append(e.names, name)
	e.chViews = append(e.chViews, v)
	e.mu.Unlock()
}

func (e *eventLog) SessionStarted(v SessionView) { e.addSess("started", v) }
func (e *eventLog) StateUpdated(v SessionView)   { e.addSess("updated", v) }

func (e *eventLog) SessionCompleted(v SessionView, out Outcome) {
	e.mu.Lock()
	e.names = append(e.names, "completed")
	e.views = append(e.views, v)
	e.outs = append(e.outs, out)
	e.mu.Unlock()
}

func (e *eventLog) SessionAbandoned(v SessionView, quitter PlayerRef, out Outcome) {
	e.addSess("abandoned", v)
}

func (e *eventLog) EndConfirmationRequested(v SessionView, by PlayerRef) { e.addSess("end_requested", v) }

func (e *eventLog) EndConfirmationResolved(v SessionView, accepted bool) {
	if accepted {
		e.addSess("end_accepted", v)
	} else {
		e.addSess("end_declined", v)
	}
}

func (e *eventLog) addSess(name string, v SessionView) {
	e.mu.Lock()
	e.names = append(e.names, name)
	e.views = append(e.views, v)
	e.mu.Unlock()
}

func (e *eventLog) has(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, n := range e.names {
		if n == name {
			return true
		}
	}
	return false
}

func (e *eventLog) waitFor(t *testing.T, name string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.has(name) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("event %q not observed", name)
}

type captureRecorder struct {
	mu   sync.Mutex
	outs []Outcome
}

func (c *captureRecorder) Record(ctx context.Context, out Outcome) error {
	c.mu.Lock()
	c.outs = append(c.outs, out)
	c.mu.Unlock()
	return nil
}

func (c *captureRecorder) wait(t *testing.T, n int) []Outcome {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		if len(c.outs) >= n {
			got := append([]Outcome(nil), c.outs...)
			c.mu.Unlock()
			return got
		}
		c.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d recorded outcomes", n)
	return nil
}

func testRegistry(t *testing.T) *gamekit.Registry {
	t.Helper()
	reg := gamekit.NewRegistry()
	if err := reg.Register(tictactoe.Rules{}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(rps.Rules{}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(matching.Rules{}); err != nil {
		t.Fatal(err)
	}
	return reg
}

func testConfig() Config {
	return Config{
		ChallengeTimeout:  time.Minute,
		EndConfirmTimeout: time.Minute,
		AFKTimeout:        3 * time.Minute,
		SweepInterval:     time.Minute,
	}
}

func startSession(t *testing.T, m *Manager, gameType int) {
	t.Helper()
	ctx := context.Background()
	if err := m.Challenge(ctx, room, alice, bob, gameType, ""); err != nil {
		t.Fatalf("challenge: %v", err)
	}
	if err := m.Respond(ctx, room, bob.ID, true); err != nil {
		t.Fatalf("accept: %v", err)
	}
}

func TestChallengeScopeBusy(t *testing.T) {
	m := NewManager(testConfig(), testRegistry(t))
	ctx := context.Background()

	if err := m.Challenge(ctx, room, alice, bob, tictactoe.GameTypeID, ""); err != nil {
		t.Fatal(err)
	}
	carol := PlayerRef{ID: "u-carol", Name: "Carol"}
	if err := m.Challenge(ctx, room, carol, bob, tictactoe.GameTypeID, ""); !errors.Is(err, ErrScopeBusy) {
		t.Fatalf("want ErrScopeBusy, got %v", err)
	}
	// same players in another room is fine
	if err := m.Challenge(ctx, "room-2", alice, bob, tictactoe.GameTypeID, ""); err != nil {
		t.Fatalf("other room: %v", err)
	}
}

func TestConcurrentChallengesShareRngSafely(t *testing.T) {
	m := NewManager(testConfig(), testRegistry(t))
	ctx := context.Background()

	// matching shuffles the board through the manager's rng at challenge
	// validation and at accept; drive both from many goroutines at once.
	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := fmt.Sprintf("room-%d", i)
			if err := m.Challenge(ctx, r, alice, bob, matching.GameTypeID, "food"); err != nil {
				errs[i] = err
				return
			}
			errs[i] = m.Respond(ctx, r, bob.ID, true)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("room %d: %v", i, err)
		}
	}
	for i := 0; i < n; i++ {
		if _, ok := m.SessionFor(fmt.Sprintf("room-%d", i), alice.ID); !ok {
			t.Fatalf("room %d: session missing", i)
		}
	}
}

func TestChallengeRejectsBadCategory(t *testing.T) {
	m := NewManager(testConfig(), testRegistry(t))
	ctx := context.Background()

	err := m.Challenge(ctx, room, alice, bob, matching.GameTypeID, "spaceships")
	if !errors.Is(err, gamekit.ErrIllegalMove) {
		t.Fatalf("want ErrIllegalMove for bad category, got %v", err)
	}
	// the failed challenge must not hold the scope
	if err := m.Challenge(ctx, room, alice, bob, matching.GameTypeID, "food"); err != nil {
		t.Fatalf("scope leaked by rejected challenge: %v", err)
	}
}

func TestChallengeSelfAndUnknownGame(t *testing.T) {
	m := NewManager(testConfig(), testRegistry(t))
	ctx := context.Background()

	if err := m.Challenge(ctx, room, alice, alice, tictactoe.GameTypeID, ""); !errors.Is(err, ErrSelfChallenge) {
		t.Fatalf("want ErrSelfChallenge, got %v", err)
	}
	if err := m.Challenge(ctx, room, alice, bob, 9999, ""); !errors.Is(err, gamekit.ErrUnknownGameType) {
		t.Fatalf("want ErrUnknownGameType, got %v", err)
	}
}

func TestChallengeDeclineFreesScope(t *testing.T) {
	sink := &eventLog{}
	m := NewManager(testConfig(), testRegistry(t), WithSink(sink))
	ctx := context.Background()

	if err := m.Challenge(ctx, room, alice, bob, tictactoe.GameTypeID, ""); err != nil {
		t.Fatal(err)
	}
	if err := m.Respond(ctx, room, bob.ID, false); err != nil {
		t.Fatal(err)
	}
	if !sink.has("declined") {
		t.Fatal("decline event missing")
	}
	if err := m.Challenge(ctx, room, alice, bob, tictactoe.GameTypeID, ""); err != nil {
		t.Fatalf("scope not freed: %v", err)
	}
}

func TestChallengerCannotAcceptOwnChallenge(t *testing.T) {
	m := NewManager(testConfig(), testRegistry(t))
	ctx := context.Background()

	if err := m.Challenge(ctx, room, alice, bob, tictactoe.GameTypeID, ""); err != nil {
		t.Fatal(err)
	}
	if err := m.Respond(ctx, room, alice.ID, true); !errors.Is(err, ErrNotChallenged) {
		t.Fatalf("want ErrNotChallenged, got %v", err)
	}
}

func TestChallengeExpiry(t *testing.T) {
	cfg := testConfig()
	cfg.ChallengeTimeout = 20 * time.Millisecond
	sink := &eventLog{}
	m := NewManager(cfg, testRegistry(t), WithSink(sink))
	ctx := context.Background()

	if err := m.Challenge(ctx, room, alice, bob, tictactoe.GameTypeID, ""); err != nil {
		t.Fatal(err)
	}
	sink.waitFor(t, "expired")

	if err := m.Respond(ctx, room, bob.ID, true); !errors.Is(err, ErrNoPendingChallenge) {
		t.Fatalf("want ErrNoPendingChallenge after expiry, got %v", err)
	}
	if err := m.Challenge(ctx, room, alice, bob, tictactoe.GameTypeID, ""); err != nil {
		t.Fatalf("scope not freed after expiry: %v", err)
	}
}

func TestStaleExpiryTimerIsNoOp(t *testing.T) {
	sink := &eventLog{}
	m := NewManager(testConfig(), testRegistry(t), WithSink(sink))
	ctx := context.Background()

	if err := m.Challenge(ctx, room, alice, bob, tictactoe.GameTypeID, ""); err != nil {
		t.Fatal(err)
	}
	m.mu.Lock()
	var chID string
	for id := range m.challenges {
		chID = id
	}
	m.mu.Unlock()

	if err := m.Respond(ctx, room, bob.ID, true); err != nil {
		t.Fatal(err)
	}
	// the armed timer fires with a generation that no longer matches
	m.expireChallenge(chID, 0)
	if sink.has("expired") {
		t.Fatal("stale timer must not emit")
	}
	if _, ok := m.SessionFor(room, alice.ID); !ok {
		t.Fatal("session must survive stale expiry fire")
	}
}

func TestTurnOrderAndWin(t *testing.T) {
	sink := &eventLog{}
	rec := &captureRecorder{}
	m := NewManager(testConfig(), testRegistry(t), WithSink(sink), WithRecorder(rec))
	ctx := context.Background()
	startSession(t, m, tictactoe.GameTypeID)

	// challenger opens
	if err := m.Submit(ctx, room, bob.ID, "a1"); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("want ErrNotYourTurn, got %v", err)
	}
	moves := []struct {
		user string
		cell string
	}{
		{alice.ID, "a1"}, {bob.ID, "b2"},
		{alice.ID, "a2"}, {bob.ID, "c3"},
		{alice.ID, "a3"}, // column a completes
	}
	for _, mv := range moves {
		if err := m.Submit(ctx, room, mv.user, mv.cell); err != nil {
			t.Fatalf("move %s by %s: %v", mv.cell, mv.user, err)
		}
	}

	sink.waitFor(t, "completed")
	outs := rec.wait(t, 1)
	out := outs[0]
	if out.Winner != 0 || out.Draw {
		t.Fatalf("want challenger win, got winner=%d draw=%v", out.Winner, out.Draw)
	}
	if out.Credits[0] != CreditWin || out.Credits[1] != CreditLoss {
		t.Fatalf("unexpected credits %v", out.Credits)
	}
	if _, ok := m.SessionFor(room, alice.ID); ok {
		t.Fatal("scope must be freed after completion")
	}
}

func TestIllegalMoveKeepsTurn(t *testing.T) {
	m := NewManager(testConfig(), testRegistry(t))
	ctx := context.Background()
	startSession(t, m, tictactoe.GameTypeID)

	if err := m.Submit(ctx, room, alice.ID, "z9"); !errors.Is(err, gamekit.ErrIllegalMove) {
		t.Fatalf("want ErrIllegalMove, got %v", err)
	}
	// still alice's turn
	if err := m.Submit(ctx, room, alice.ID, "a1"); err != nil {
		t.Fatalf("legal retry: %v", err)
	}
}

func TestSimultaneousSubmissions(t *testing.T) {
	rec := &captureRecorder{}
	m := NewManager(testConfig(), testRegistry(t), WithRecorder(rec))
	ctx := context.Background()
	startSession(t, m, rps.GameTypeID)

	if err := m.Submit(ctx, room, bob.ID, "rock"); err != nil {
		t.Fatalf("order must not matter: %v", err)
	}
	if err := m.Submit(ctx, room, bob.ID, "paper"); !errors.Is(err, gamekit.ErrAlreadySubmitted) {
		t.Fatalf("want ErrAlreadySubmitted, got %v", err)
	}
	if err := m.Submit(ctx, room, alice.ID, "scissors"); err != nil {
		t.Fatal(err)
	}

	outs := rec.wait(t, 1)
	if outs[0].Winner != 1 {
		t.Fatalf("rock beats scissors, want winner=1, got %d", outs[0].Winner)
	}
}

func TestEndConfirmFlow(t *testing.T) {
	sink := &eventLog{}
	rec := &captureRecorder{}
	m := NewManager(testConfig(), testRegistry(t), WithSink(sink), WithRecorder(rec))
	ctx := context.Background()
	startSession(t, m, tictactoe.GameTypeID)

	if err := m.RespondEnd(ctx, room, bob.ID, true); !errors.Is(err, ErrNoEndRequest) {
		t.Fatalf("want ErrNoEndRequest, got %v", err)
	}
	if err := m.RequestEnd(ctx, room, alice.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.RequestEnd(ctx, room, alice.ID); !errors.Is(err, ErrEndAlreadyAsked) {
		t.Fatalf("want ErrEndAlreadyAsked, got %v", err)
	}
	if err := m.RespondEnd(ctx, room, alice.ID, true); !errors.Is(err, ErrOwnEndRequest) {
		t.Fatalf("want ErrOwnEndRequest, got %v", err)
	}
	// moves are frozen while the request is pending
	if err := m.Submit(ctx, room, alice.ID, "a1"); !errors.Is(err, ErrEndConfirmPending) {
		t.Fatalf("want ErrEndConfirmPending, got %v", err)
	}

	if err := m.RespondEnd(ctx, room, bob.ID, false); err != nil {
		t.Fatal(err)
	}
	if !sink.has("end_declined") {
		t.Fatal("decline event missing")
	}
	// play resumes
	if err := m.Submit(ctx, room, alice.ID, "a1"); err != nil {
		t.Fatalf("resume after decline: %v", err)
	}

	if err := m.RequestEnd(ctx, room, bob.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.RespondEnd(ctx, room, alice.ID, true); err != nil {
		t.Fatal(err)
	}
	outs := rec.wait(t, 1)
	if !outs[0].Draw || outs[0].Credits[0] != CreditDraw || outs[0].Credits[1] != CreditDraw {
		t.Fatalf("mutual end must book a draw, got %+v", outs[0])
	}
}

func TestEndConfirmCrossRequestIsMutualAccept(t *testing.T) {
	rec := &captureRecorder{}
	m := NewManager(testConfig(), testRegistry(t), WithRecorder(rec))
	ctx := context.Background()
	startSession(t, m, tictactoe.GameTypeID)

	if err := m.RequestEnd(ctx, room, alice.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.RequestEnd(ctx, room, bob.ID); err != nil {
		t.Fatal(err)
	}
	outs := rec.wait(t, 1)
	if !outs[0].Draw {
		t.Fatalf("cross request must resolve as mutual end, got %+v", outs[0])
	}
}

func TestEndConfirmTimeoutAutoDeclines(t *testing.T) {
	cfg := testConfig()
	cfg.EndConfirmTimeout = 20 * time.Millisecond
	sink := &eventLog{}
	m := NewManager(cfg, testRegistry(t), WithSink(sink))
	ctx := context.Background()
	startSession(t, m, tictactoe.GameTypeID)

	if err := m.RequestEnd(ctx, room, alice.ID); err != nil {
		t.Fatal(err)
	}
	sink.waitFor(t, "end_declined")
	if err := m.Submit(ctx, room, alice.ID, "a1"); err != nil {
		t.Fatalf("session must resume after timeout: %v", err)
	}
}

func TestUnilateralEndPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.AllowUnilateralEnd = true
	rec := &captureRecorder{}
	m := NewManager(cfg, testRegistry(t), WithRecorder(rec))
	ctx := context.Background()
	startSession(t, m, tictactoe.GameTypeID)

	if err := m.RequestEnd(ctx, room, alice.ID); err != nil {
		t.Fatal(err)
	}
	outs := rec.wait(t, 1)
	if outs[0].Winner != 1 || outs[0].Credits[0] != CreditAbandon {
		t.Fatalf("unilateral end must credit the opponent, got %+v", outs[0])
	}
}

func TestResign(t *testing.T) {
	rec := &captureRecorder{}
	m := NewManager(testConfig(), testRegistry(t), WithRecorder(rec))
	ctx := context.Background()
	startSession(t, m, tictactoe.GameTypeID)

	if err := m.Resign(ctx, room, bob.ID); err != nil {
		t.Fatal(err)
	}
	outs := rec.wait(t, 1)
	if outs[0].Winner != 0 || outs[0].Credits[1] != CreditAbandon {
		t.Fatalf("resign must credit the opponent, got %+v", outs[0])
	}
	if _, ok := m.SessionFor(room, alice.ID); ok {
		t.Fatal("scope must be freed after resign")
	}
}

func TestAFKSweep(t *testing.T) {
	rec := &captureRecorder{}
	m := NewManager(testConfig(), testRegistry(t), WithRecorder(rec))
	startSession(t, m, tictactoe.GameTypeID)

	// nothing happens inside the window
	m.sweepOnce(time.Now())
	if _, ok := m.SessionFor(room, alice.ID); !ok {
		t.Fatal("session swept too early")
	}

	m.sweepOnce(time.Now().Add(4 * time.Minute))
	outs := rec.wait(t, 1)
	// alice never moved; she is the idle player
	if outs[0].Winner != 1 || outs[0].Credits[0] != CreditAbandon {
		t.Fatalf("idle player must get the abandon, got %+v", outs[0])
	}
}

func TestAFKSweepBothIdleSimultaneous(t *testing.T) {
	rec := &captureRecorder{}
	m := NewManager(testConfig(), testRegistry(t), WithRecorder(rec))
	startSession(t, m, rps.GameTypeID)

	m.sweepOnce(time.Now().Add(4 * time.Minute))
	outs := rec.wait(t, 1)
	if outs[0].Winner != -1 || outs[0].Credits[0] != CreditAbandon || outs[0].Credits[1] != CreditAbandon {
		t.Fatalf("both idle must both get the abandon, got %+v", outs[0])
	}
}

func TestSnapshotLifecycle(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	snaps := NewSnapshots(rdb)

	m := NewManager(testConfig(), testRegistry(t), WithSnapshots(snaps), WithRand(rand.New(rand.NewSource(1))))
	ctx := context.Background()
	startSession(t, m, tictactoe.GameTypeID)

	view, ok := m.SessionFor(room, alice.ID)
	if !ok {
		t.Fatal("session missing")
	}
	rec, err := snaps.Load(ctx, view.ID)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if rec.Room != room || rec.GameTypeID != tictactoe.GameTypeID {
		t.Fatalf("unexpected snapshot %+v", rec)
	}
	ids, err := snaps.SessionIDsFor(ctx, alice.ID)
	if err != nil || len(ids) != 1 || ids[0] != view.ID {
		t.Fatalf("index set wrong: %v %v", ids, err)
	}

	if err := m.Submit(ctx, room, alice.ID, "a1"); err != nil {
		t.Fatal(err)
	}
	rec, err = snaps.Load(ctx, view.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.CurrentTurn != 1 {
		t.Fatalf("snapshot not refreshed, turn=%d", rec.CurrentTurn)
	}

	if err := m.Resign(ctx, room, bob.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := snaps.Load(ctx, view.ID); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("want ErrSnapshotNotFound after terminal, got %v", err)
	}
	ids, _ = snaps.SessionIDsFor(ctx, alice.ID)
	if len(ids) != 0 {
		t.Fatalf("index set not cleaned: %v", ids)
	}
}
