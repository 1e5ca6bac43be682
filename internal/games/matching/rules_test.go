package matching

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/park285/Minigame-KakaoTalk-bot/internal/gamekit"
)

func newBoard(t *testing.T, seed int64, category string) *Board {
	t.Helper()
	st, err := Rules{}.New(gamekit.Options{Rand: rand.New(rand.NewSource(seed)), Category: category})
	if err != nil {
		t.Fatal(err)
	}
	return st.(*Board)
}

func cellName(i int) string {
	return gamekit.CellName(i/cols, i%cols)
}

// findPair returns the cell names of an unmatched pair and of the joker.
func findPair(b *Board) (pair [2]string, joker string) {
	byEmoji := map[string]int{}
	for i, c := range b.Cards {
		if c.Matched {
			continue
		}
		if c.Joker {
			joker = cellName(i)
			continue
		}
		if j, ok := byEmoji[c.Emoji]; ok {
			pair = [2]string{cellName(j), cellName(i)}
		} else {
			byEmoji[c.Emoji] = i
		}
	}
	return pair, joker
}

func findMismatch(b *Board) [2]string {
	for i, a := range b.Cards {
		for j := i + 1; j < len(b.Cards); j++ {
			c := b.Cards[j]
			if !a.Matched && !c.Matched && !a.Joker && !c.Joker && a.Emoji != c.Emoji {
				return [2]string{cellName(i), cellName(j)}
			}
		}
	}
	return [2]string{}
}

func TestNewBoardLayout(t *testing.T) {
	b := newBoard(t, 1, "food")
	if len(b.Cards) != rows*cols {
		t.Fatalf("want %d cards, got %d", rows*cols, len(b.Cards))
	}
	jokers := 0
	counts := map[string]int{}
	for _, c := range b.Cards {
		if c.Joker {
			jokers++
			continue
		}
		counts[c.Emoji]++
	}
	if jokers != 1 {
		t.Fatalf("want exactly one joker, got %d", jokers)
	}
	if len(counts) != pairs {
		t.Fatalf("want %d distinct emojis, got %d", pairs, len(counts))
	}
	for e, n := range counts {
		if n != 2 {
			t.Fatalf("emoji %s appears %d times", e, n)
		}
	}
	if b.Category != "food" {
		t.Fatalf("category not kept: %q", b.Category)
	}
}

func TestNewRejectsUnknownCategory(t *testing.T) {
	if _, err := (Rules{}).New(gamekit.Options{Category: "spaceships"}); err == nil {
		t.Fatal("want error for unknown category")
	}
}

func TestPairScoresAndKeepsTurn(t *testing.T) {
	b := newBoard(t, 7, "animals")
	pair, _ := findPair(b)

	step, err := Rules{}.Apply(b, 0, pair[0]+" "+pair[1])
	if err != nil {
		t.Fatal(err)
	}
	next := step.State.(*Board)
	if step.NextTurn != 0 {
		t.Fatal("a pair must keep the turn")
	}
	if next.Scores[0] != 1 || next.Found != 1 {
		t.Fatalf("score not booked: %+v", next)
	}
	// input board untouched
	if b.Found != 0 {
		t.Fatal("apply must not mutate its input")
	}
}

func TestJokerScoresAndKeepsTurn(t *testing.T) {
	b := newBoard(t, 7, "animals")
	mis := findMismatch(b)
	_, joker := findPair(b)

	// pick the joker together with some non-matching card
	other := mis[0]
	if other == joker {
		other = mis[1]
	}
	step, err := Rules{}.Apply(b, 1, joker+" "+other)
	if err != nil {
		t.Fatal(err)
	}
	next := step.State.(*Board)
	if step.NextTurn != 1 {
		t.Fatal("the joker must keep the turn")
	}
	if next.Scores[1] != 1 {
		t.Fatalf("joker point not booked: %+v", next.Scores)
	}
	if next.Found != 0 {
		t.Fatal("joker is not a pair")
	}
	// the companion card stays in play
	_, joker2 := findPair(next)
	if joker2 != "" {
		t.Fatal("joker must be matched out")
	}
}

func TestMissPassesTurn(t *testing.T) {
	b := newBoard(t, 3, "faces")
	mis := findMismatch(b)
	step, err := Rules{}.Apply(b, 0, mis[0]+" "+mis[1])
	if err != nil {
		t.Fatal(err)
	}
	if step.NextTurn != 1 {
		t.Fatal("a miss must pass the turn")
	}
	if step.State.(*Board).Scores[0] != 0 {
		t.Fatal("a miss must not score")
	}
}

func TestApplyRejections(t *testing.T) {
	b := newBoard(t, 3, "faces")
	for _, bad := range []string{"", "a1", "a1 a1", "a1 f1", "a1 a9", "a1 b2 c3"} {
		if _, err := (Rules{}).Apply(b, 0, bad); !errors.Is(err, gamekit.ErrIllegalMove) {
			t.Fatalf("move %q: want ErrIllegalMove, got %v", bad, err)
		}
	}

	pair, _ := findPair(b)
	step, err := Rules{}.Apply(b, 0, pair[0]+" "+pair[1])
	if err != nil {
		t.Fatal(err)
	}
	mis := findMismatch(step.State.(*Board))
	if _, err := (Rules{}).Apply(step.State, 0, pair[0]+" "+mis[0]); !errors.Is(err, gamekit.ErrIllegalMove) {
		t.Fatalf("matched card must be rejected, got %v", err)
	}
}

func TestTerminalAfterAllPairs(t *testing.T) {
	b := newBoard(t, 11, "travel")
	st := gamekit.State(b)

	turn := 0
	for {
		cur := st.(*Board)
		if res := (Rules{}).Terminal(st); res.Finished {
			if cur.Found != pairs {
				t.Fatalf("finished with %d pairs", cur.Found)
			}
			want := -1
			switch {
			case cur.Scores[0] > cur.Scores[1]:
				want = 0
			case cur.Scores[1] > cur.Scores[0]:
				want = 1
			}
			if res.Winner != want {
				t.Fatalf("winner %d, scores %v", res.Winner, cur.Scores)
			}
			return
		}
		pair, _ := findPair(cur)
		step, err := Rules{}.Apply(st, turn, pair[0]+" "+pair[1])
		if err != nil {
			t.Fatal(err)
		}
		st = step.State
		turn = step.NextTurn
	}
}

func TestRenderHidesUnmatched(t *testing.T) {
	b := newBoard(t, 5, "nature")
	out := Rules{}.Render(b)
	if strings.Count(out, hiddenFace) != rows*cols {
		t.Fatalf("all cards must start hidden:\n%s", out)
	}

	pair, _ := findPair(b)
	step, _ := Rules{}.Apply(b, 0, pair[0]+" "+pair[1])
	out = Rules{}.Render(step.State)
	if strings.Count(out, hiddenFace) != rows*cols-2 {
		t.Fatalf("matched pair must be revealed:\n%s", out)
	}
	if !strings.Contains(out, "pairs found 1/12") {
		t.Fatalf("progress line missing:\n%s", out)
	}
}
