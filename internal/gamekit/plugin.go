package gamekit

import (
	"errors"
	"math/rand"
)

var (
	// ErrIllegalMove is wrapped by plugins with a human-readable reason.
	ErrIllegalMove = errors.New("illegal move")
	// ErrAlreadySubmitted rejects a second submission in the same round of a
	// simultaneous-choice game before the round resolves.
	ErrAlreadySubmitted = errors.New("choice already submitted")
)

// State is the opaque per-session game state owned by the session. Concrete
// states must be JSON-marshalable so sessions can be snapshotted.
type State any

// Options tunes initial-state creation.
type Options struct {
	// Rand drives shuffles. Nil means the plugin seeds itself.
	Rand *rand.Rand
	// Category selects a game-specific variant (emoji theme for matching).
	Category string
}

// Step is the outcome of one accepted move.
type Step struct {
	State State
	// NextTurn is the player index to move next. Ignored for simultaneous
	// games. Plugins may keep the turn on the mover (memory match on a pair).
	NextTurn int
	// Note is an optional human-readable event line ("pair found", ...).
	Note string
}

// Result reports terminal-state detection.
type Result struct {
	Finished bool
	// Winner is a player index, -1 when there is none.
	Winner int
	Draw   bool
}

// Rules is the per-game plugin contract. Implementations are pure: they know
// nothing about sessions, rooms, or the chat platform, and never mutate the
// state they are given.
type Rules interface {
	ID() int
	Name() string
	// Simultaneous games collect one submission per player per round instead
	// of alternating turns.
	Simultaneous() bool
	New(opts Options) (State, error)
	// Apply validates and applies a move, returning the successor state.
	// Rejections wrap ErrIllegalMove or ErrAlreadySubmitted.
	Apply(st State, player int, move string) (Step, error)
	Terminal(st State) Result
	// Render returns the board as chat text.
	Render(st State) string
	Help() string
}
