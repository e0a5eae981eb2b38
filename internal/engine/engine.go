package engine

import (
	"errors"
	"fmt"
)

// ErrInvalidMove is returned for a move outside the board or onto an occupied slot.
var ErrInvalidMove = errors.New("invalid move")

// Symbol is the mark held in a board slot.
type Symbol string

const (
	Empty Symbol = ""
	X     Symbol = "X"
	O     Symbol = "O"
)

// Opponent returns the other player's symbol. Empty has no opponent.
func (s Symbol) Opponent() Symbol {
	switch s {
	case X:
		return O
	case O:
		return X
	default:
		return Empty
	}
}

// Valid reports whether s is a player symbol.
func (s Symbol) Valid() bool {
	return s == X || s == O
}

// Outcome is the result of evaluating a board.
type Outcome string

const (
	OutcomeNone Outcome = ""
	OutcomeX    Outcome = "X"
	OutcomeO    Outcome = "O"
	OutcomeDraw Outcome = "draw"
)

// Decisive reports whether the outcome names a winner.
func (o Outcome) Decisive() bool {
	return o == OutcomeX || o == OutcomeO
}

// Symbol returns the winning symbol of a decisive outcome.
func (o Outcome) Symbol() Symbol {
	if o.Decisive() {
		return Symbol(o)
	}
	return Empty
}

// BoardSize is the number of slots on the board.
const BoardSize = 9

// Board is the 3x3 grid in row-major order.
type Board [BoardSize]Symbol

var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, // rows
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8}, // cols
	{0, 4, 8}, {2, 4, 6}, // diagonals
}

// ApplyMove returns a copy of b with symbol placed at index.
func ApplyMove(b Board, index int, symbol Symbol) (Board, error) {
	if !symbol.Valid() {
		return b, fmt.Errorf("%w: unknown symbol %q", ErrInvalidMove, symbol)
	}
	if index < 0 || index >= BoardSize {
		return b, fmt.Errorf("%w: index %d out of range", ErrInvalidMove, index)
	}
	if b[index] != Empty {
		return b, fmt.Errorf("%w: slot %d already holds %s", ErrInvalidMove, index, b[index])
	}
	b[index] = symbol
	return b, nil
}

// Evaluate checks the eight lines for a winner, then for a full board.
func Evaluate(b Board) Outcome {
	for _, l := range lines {
		s := b[l[0]]
		if s.Valid() && b[l[1]] == s && b[l[2]] == s {
			return Outcome(s)
		}
	}
	if b.Full() {
		return OutcomeDraw
	}
	return OutcomeNone
}

// Full reports whether every slot is taken.
func (b Board) Full() bool {
	for _, s := range b {
		if s == Empty {
			return false
		}
	}
	return true
}

// Strings converts the board to its stored form.
func (b Board) Strings() []string {
	out := make([]string, BoardSize)
	for i, s := range b {
		out[i] = string(s)
	}
	return out
}

// BoardFromStrings parses the stored form. Unknown marks are rejected.
func BoardFromStrings(cells []string) (Board, error) {
	var b Board
	if len(cells) != BoardSize {
		return b, fmt.Errorf("board has %d slots, want %d", len(cells), BoardSize)
	}
	for i, c := range cells {
		s := Symbol(c)
		if s != Empty && !s.Valid() {
			return b, fmt.Errorf("slot %d holds unknown mark %q", i, c)
		}
		b[i] = s
	}
	return b, nil
}
