package matching

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/park285/Minigame-KakaoTalk-bot/internal/gamekit"
)

const GameTypeID = 1001

const (
	rows  = 5
	cols  = 5
	pairs = 12

	hiddenFace = "❓"
	jokerFace  = "🃏"
)

// Categories are the emoji themes a challenger can pick from.
var Categories = map[string][]string{
	"food":    {"🍎", "🍕", "🍔", "🌮", "🍦", "🍰", "🍫", "🥑", "🍓", "🍇", "🍪", "🥕", "🥨", "🥩", "🍜"},
	"animals": {"🐶", "🐱", "🐭", "🐰", "🦊", "🐻", "🐼", "🐨", "🐯", "🦁", "🐮", "🐷", "🐸", "🐔", "🦄"},
	"faces":   {"😀", "😂", "🥰", "😎", "🤔", "😴", "🥳", "😇", "🤠", "🤡", "😺", "🤖", "👻", "👽", "🎃"},
	"nature":  {"🌸", "🌺", "🌻", "🌼", "🌷", "🌹", "🍀", "🌿", "🌴", "🌲", "🍁", "⭐", "🌙", "☀️", "⛅"},
	"objects": {"📱", "💻", "⌚", "📷", "🎮", "🎨", "📚", "✏️", "🎵", "🎸", "⚽", "🎲", "🎭", "🎪", "🎁"},
	"travel":  {"✈️", "🚗", "🚲", "⛵", "🚁", "🚂", "🎡", "🗽", "🗼", "🏰", "⛩️", "🏖️", "🌋", "🗻", "🌉"},
}

// Card is one face-down board position.
type Card struct {
	Emoji   string `json:"emoji"`
	Matched bool   `json:"matched"`
	Joker   bool   `json:"joker,omitempty"`
}

// Board is the memory-match state. A turn flips two cards: a pair (or the
// joker) scores and keeps the turn, a miss passes it.
type Board struct {
	Cards    []Card `json:"cards"` // row-major, rows x cols
	Scores   [2]int `json:"scores"`
	Found    int    `json:"found"` // matched pairs so far
	Category string `json:"category"`
}

type Rules struct{}

func New() Rules { return Rules{} }

func (Rules) ID() int            { return GameTypeID }
func (Rules) Name() string       { return "Memory Match" }
func (Rules) Simultaneous() bool { return false }

func (Rules) New(opts gamekit.Options) (gamekit.State, error) {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	category := strings.ToLower(strings.TrimSpace(opts.Category))
	if category == "" {
		names := categoryNames()
		category = names[rng.Intn(len(names))]
	}
	emojis, ok := Categories[category]
	if !ok {
		return nil, fmt.Errorf("unknown emoji category %q", category)
	}

	picks := append([]string(nil), emojis...)
	rng.Shuffle(len(picks), func(i, j int) { picks[i], picks[j] = picks[j], picks[i] })
	picks = picks[:pairs]

	cards := make([]Card, 0, rows*cols)
	for _, e := range picks {
		cards = append(cards, Card{Emoji: e}, Card{Emoji: e})
	}
	cards = append(cards, Card{Emoji: jokerFace, Joker: true})
	rng.Shuffle(len(cards), func(i, j int) { cards[i], cards[j] = cards[j], cards[i] })

	return &Board{Cards: cards, Category: category}, nil
}

// Apply expects a move of two cells ("a1 d4"). The flip outcome decides who
// keeps the turn, so NextTurn is part of the step.
func (Rules) Apply(st gamekit.State, player int, move string) (gamekit.Step, error) {
	cur, ok := st.(*Board)
	if !ok {
		return gamekit.Step{}, fmt.Errorf("%w: bad state", gamekit.ErrIllegalMove)
	}
	fields := strings.Fields(strings.TrimSpace(move))
	if len(fields) != 2 {
		return gamekit.Step{}, fmt.Errorf("%w: flip exactly two cells, like `flip a1 d4`", gamekit.ErrIllegalMove)
	}
	r1, c1, err := gamekit.ParseCell(fields[0], rows, cols)
	if err != nil {
		return gamekit.Step{}, err
	}
	r2, c2, err := gamekit.ParseCell(fields[1], rows, cols)
	if err != nil {
		return gamekit.Step{}, err
	}
	i1, i2 := r1*cols+c1, r2*cols+c2
	if i1 == i2 {
		return gamekit.Step{}, fmt.Errorf("%w: you picked the same cell twice", gamekit.ErrIllegalMove)
	}
	if cur.Cards[i1].Matched || cur.Cards[i2].Matched {
		return gamekit.Step{}, fmt.Errorf("%w: one of those cards is already matched", gamekit.ErrIllegalMove)
	}

	next := *cur
	next.Cards = append([]Card(nil), cur.Cards...)
	a, b := &next.Cards[i1], &next.Cards[i2]

	// The joker scores for its finder on sight and the turn continues; the
	// companion card flips back face down.
	if a.Joker || b.Joker {
		if a.Joker {
			a.Matched = true
		} else {
			b.Matched = true
		}
		next.Scores[player]++
		note := fmt.Sprintf("%s joker! +1 point, go again", jokerFace)
		return gamekit.Step{State: &next, NextTurn: player, Note: note}, nil
	}

	if a.Emoji == b.Emoji {
		a.Matched = true
		b.Matched = true
		next.Scores[player]++
		next.Found++
		note := fmt.Sprintf("%s pair! +1 point, go again", a.Emoji)
		return gamekit.Step{State: &next, NextTurn: player, Note: note}, nil
	}

	note := fmt.Sprintf("no match (%s / %s)", a.Emoji, b.Emoji)
	return gamekit.Step{State: &next, NextTurn: 1 - player, Note: note}, nil
}

func (Rules) Terminal(st gamekit.State) gamekit.Result {
	b, ok := st.(*Board)
	if !ok || b.Found < pairs {
		return gamekit.Result{Winner: -1}
	}
	switch {
	case b.Scores[0] > b.Scores[1]:
		return gamekit.Result{Finished: true, Winner: 0}
	case b.Scores[1] > b.Scores[0]:
		return gamekit.Result{Finished: true, Winner: 1}
	default:
		return gamekit.Result{Finished: true, Winner: -1, Draw: true}
	}
}

func (Rules) Render(st gamekit.State) string {
	b, ok := st.(*Board)
	if !ok {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("    a  b  c  d  e\n")
	for r := 0; r < rows; r++ {
		fmt.Fprintf(&sb, "%d ", r+1)
		for c := 0; c < cols; c++ {
			card := b.Cards[r*cols+c]
			if card.Matched {
				sb.WriteString(card.Emoji + " ")
			} else {
				sb.WriteString(hiddenFace + " ")
			}
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "pairs found %d/%d", b.Found, pairs)
	return sb.String()
}

func (Rules) Help() string {
	return "Flip two cards with `flip a1 d4`. A pair scores a point and you go again; finding the joker is a bonus point."
}

func categoryNames() []string {
	names := make([]string, 0, len(Categories))
	for n := range Categories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CategoryNames lists the selectable themes for help text.
func CategoryNames() []string { return categoryNames() }
