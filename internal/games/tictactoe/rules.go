package tictactoe

import (
	"fmt"
	"strings"

	"github.com/park285/Minigame-KakaoTalk-bot/internal/gamekit"
)

const GameTypeID = 1002

const (
	size  = 3
	empty = int8(-1)
)

var marks = [2]string{"❌", "⭕"}

// Board is the tic-tac-toe state: row-major cells holding a player index or -1.
type Board struct {
	Cells [size * size]int8 `json:"cells"`
	Moves int               `json:"moves"`
}

type Rules struct{}

func New() Rules { return Rules{} }

func (Rules) ID() int            { return GameTypeID }
func (Rules) Name() string       { return "Tic Tac Toe" }
func (Rules) Simultaneous() bool { return false }

func (Rules) New(_ gamekit.Options) (gamekit.State, error) {
	b := &Board{}
	for i := range b.Cells {
		b.Cells[i] = empty
	}
	return b, nil
}

func (Rules) Apply(st gamekit.State, player int, move string) (gamekit.Step, error) {
	cur, ok := st.(*Board)
	if !ok {
		return gamekit.Step{}, fmt.Errorf("%w: bad state", gamekit.ErrIllegalMove)
	}
	row, col, err := gamekit.ParseCell(move, size, size)
	if err != nil {
		return gamekit.Step{}, err
	}
	idx := row*size + col
	if cur.Cells[idx] != empty {
		return gamekit.Step{}, fmt.Errorf("%w: %s is already taken", gamekit.ErrIllegalMove, gamekit.CellName(row, col))
	}

	next := *cur
	next.Cells[idx] = int8(player)
	next.Moves++
	return gamekit.Step{State: &next, NextTurn: 1 - player}, nil
}

var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, // rows
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8}, // columns
	{0, 4, 8}, {2, 4, 6}, // diagonals
}

func (Rules) Terminal(st gamekit.State) gamekit.Result {
	b, ok := st.(*Board)
	if !ok {
		return gamekit.Result{}
	}
	for _, ln := range lines {
		v := b.Cells[ln[0]]
		if v != empty && v == b.Cells[ln[1]] && v == b.Cells[ln[2]] {
			return gamekit.Result{Finished: true, Winner: int(v)}
		}
	}
	if b.Moves >= size*size {
		return gamekit.Result{Finished: true, Winner: -1, Draw: true}
	}
	return gamekit.Result{Winner: -1}
}

func (Rules) Render(st gamekit.State) string {
	b, ok := st.(*Board)
	if !ok {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("    a  b  c\n")
	for r := 0; r < size; r++ {
		fmt.Fprintf(&sb, "%d ", r+1)
		for c := 0; c < size; c++ {
			v := b.Cells[r*size+c]
			if v == empty {
				sb.WriteString("⬜ ")
			} else {
				sb.WriteString(marks[v] + " ")
			}
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (Rules) Help() string {
	return "Place your mark with a cell like `move b2`. Three in a row wins."
}

// Mark returns the symbol shown for a player index.
func Mark(player int) string {
	if player == 0 || player == 1 {
		return marks[player]
	}
	return "?"
}
