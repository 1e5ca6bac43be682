package gamekit

import (
	"errors"
	"testing"
)

type fakeRules struct {
	id   int
	name string
}

func (f fakeRules) ID() int            { return f.id }
func (f fakeRules) Name() string       { return f.name }
func (f fakeRules) Simultaneous() bool { return false }

func (f fakeRules) New(_ Options) (State, error)            { return nil, nil }
func (f fakeRules) Apply(_ State, _ int, _ string) (Step, error) { return Step{}, nil }
func (f fakeRules) Terminal(_ State) Result                 { return Result{} }
func (f fakeRules) Render(_ State) string                   { return "" }
func (f fakeRules) Help() string                            { return "" }

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(fakeRules{id: 2, name: "two"}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(fakeRules{id: 1, name: "one"}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(fakeRules{id: 1, name: "dup"}); err == nil {
		t.Fatal("duplicate id must be rejected")
	}

	r, err := reg.Get(2)
	if err != nil || r.Name() != "two" {
		t.Fatalf("get: %v %v", r, err)
	}
	if _, err := reg.Get(99); !errors.Is(err, ErrUnknownGameType) {
		t.Fatalf("want ErrUnknownGameType, got %v", err)
	}

	all := reg.List()
	if len(all) != 2 || all[0].ID() != 1 || all[1].ID() != 2 {
		t.Fatalf("list must be sorted by id: %v", all)
	}
}

func TestParseCell(t *testing.T) {
	row, col, err := ParseCell("b2", 3, 3)
	if err != nil || row != 1 || col != 1 {
		t.Fatalf("b2: got (%d,%d) %v", row, col, err)
	}
	row, col, err = ParseCell(" E5 ", 5, 5)
	if err != nil || row != 4 || col != 4 {
		t.Fatalf("E5: got (%d,%d) %v", row, col, err)
	}
	for _, bad := range []string{"", "a", "9", "f1", "a6", "aa1", "1a"} {
		if _, _, err := ParseCell(bad, 5, 5); !errors.Is(err, ErrIllegalMove) {
			t.Fatalf("%q: want ErrIllegalMove, got %v", bad, err)
		}
	}
	if CellName(1, 1) != "b2" {
		t.Fatalf("CellName: %s", CellName(1, 1))
	}
}
