package arena

import "context"

// Sink receives session lifecycle events for presentation. Callbacks run
// outside the manager lock, in the order the transitions happened; they must
// not block for long and may call back into the manager.
type Sink interface {
	ChallengeIssued(v ChallengeView)
	ChallengeDeclined(v ChallengeView)
	ChallengeExpired(v ChallengeView)
	SessionStarted(v SessionView)
	StateUpdated(v SessionView)
	SessionCompleted(v SessionView, out Outcome)
	SessionAbandoned(v SessionView, quitter PlayerRef, out Outcome)
	EndConfirmationRequested(v SessionView, by PlayerRef)
	EndConfirmationResolved(v SessionView, accepted bool)
}

// Recorder consumes terminal outcomes. Implementations must be idempotent
// per session id; the manager invokes it off the turn-acceptance path.
type Recorder interface {
	Record(ctx context.Context, out Outcome) error
}

// NopSink satisfies Sink with no-ops, for tests and headless wiring.
type NopSink struct{}

func (NopSink) ChallengeIssued(ChallengeView)                 {}
func (NopSink) ChallengeDeclined(ChallengeView)               {}
func (NopSink) ChallengeExpired(ChallengeView)                {}
func (NopSink) SessionStarted(SessionView)                    {}
func (NopSink) StateUpdated(SessionView)                      {}
func (NopSink) SessionCompleted(SessionView, Outcome)         {}
func (NopSink) SessionAbandoned(SessionView, PlayerRef, Outcome) {}
func (NopSink) EndConfirmationRequested(SessionView, PlayerRef) {}
func (NopSink) EndConfirmationResolved(SessionView, bool)     {}
