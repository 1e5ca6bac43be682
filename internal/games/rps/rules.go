package rps

import (
	"fmt"
	"strings"

	"github.com/park285/Minigame-KakaoTalk-bot/internal/gamekit"
)

const GameTypeID = 1003

var emojis = map[string]string{"rock": "🪨", "paper": "📄", "scissors": "✂️"}

// beats maps each choice to the choice it defeats.
var beats = map[string]string{"rock": "scissors", "paper": "rock", "scissors": "paper"}

// Round holds both players' hidden choices for the current round.
type Round struct {
	Choices [2]string `json:"choices"` // "" until submitted
}

type Rules struct{}

func New() Rules { return Rules{} }

func (Rules) ID() int            { return GameTypeID }
func (Rules) Name() string       { return "Rock Paper Scissors" }
func (Rules) Simultaneous() bool { return true }

func (Rules) New(_ gamekit.Options) (gamekit.State, error) {
	return &Round{}, nil
}

func (Rules) Apply(st gamekit.State, player int, move string) (gamekit.Step, error) {
	cur, ok := st.(*Round)
	if !ok {
		return gamekit.Step{}, fmt.Errorf("%w: bad state", gamekit.ErrIllegalMove)
	}
	choice, err := parseChoice(move)
	if err != nil {
		return gamekit.Step{}, err
	}
	if cur.Choices[player] != "" {
		return gamekit.Step{}, gamekit.ErrAlreadySubmitted
	}

	next := *cur
	next.Choices[player] = choice
	return gamekit.Step{State: &next, NextTurn: 1 - player}, nil
}

func (Rules) Terminal(st gamekit.State) gamekit.Result {
	r, ok := st.(*Round)
	if !ok || r.Choices[0] == "" || r.Choices[1] == "" {
		return gamekit.Result{Winner: -1}
	}
	c0, c1 := r.Choices[0], r.Choices[1]
	switch {
	case c0 == c1:
		return gamekit.Result{Finished: true, Winner: -1, Draw: true}
	case beats[c0] == c1:
		return gamekit.Result{Finished: true, Winner: 0}
	default:
		return gamekit.Result{Finished: true, Winner: 1}
	}
}

func (Rules) Render(st gamekit.State) string {
	r, ok := st.(*Round)
	if !ok {
		return ""
	}
	if r.Choices[0] == "" || r.Choices[1] == "" {
		marks := [2]string{"⌛", "⌛"}
		for i, c := range r.Choices {
			if c != "" {
				marks[i] = "✅"
			}
		}
		return fmt.Sprintf("waiting for picks: %s vs %s", marks[0], marks[1])
	}
	return fmt.Sprintf("%s %s vs %s %s", emojis[r.Choices[0]], r.Choices[0], emojis[r.Choices[1]], r.Choices[1])
}

func (Rules) Help() string {
	return "Both players pick in secret with `pick rock`, `pick paper`, or `pick scissors`."
}

func parseChoice(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rock", "r":
		return "rock", nil
	case "paper", "p":
		return "paper", nil
	case "scissors", "scissor", "s":
		return "scissors", nil
	default:
		return "", fmt.Errorf("%w: pick rock, paper, or scissors", gamekit.ErrIllegalMove)
	}
}
