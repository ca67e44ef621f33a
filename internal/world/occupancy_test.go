package world

import "testing"

func TestOccupancyEnterAndCount(t *testing.T) {
	o := NewOccupancy()
	o.Enter("w1", "p1", "alice")
	o.Enter("w1", "p2", "bob")
	o.Enter("w2", "p3", "carol")

	if got := o.Count("w1"); got != 2 {
		t.Fatalf("Count(w1) = %d, want 2", got)
	}
	if got := o.Count("w2"); got != 1 {
		t.Fatalf("Count(w2) = %d, want 1", got)
	}
	if got := o.WorldOf("alice"); got != "w1" {
		t.Fatalf("WorldOf(alice) = %q, want w1", got)
	}
}

func TestOccupancyEnterMovesBetweenWorlds(t *testing.T) {
	o := NewOccupancy()
	o.Enter("w1", "p1", "alice")
	o.Enter("w2", "p2", "alice")

	if got := o.Count("w1"); got != 0 {
		t.Fatalf("Count(w1) after move = %d, want 0", got)
	}
	if got := o.Count("w2"); got != 1 {
		t.Fatalf("Count(w2) after move = %d, want 1", got)
	}
	if got := o.WorldOf("alice"); got != "w2" {
		t.Fatalf("WorldOf(alice) = %q, want w2", got)
	}
}

func TestOccupancyLeaveUnknownUserIsNoop(t *testing.T) {
	o := NewOccupancy()
	o.Leave("ghost")
	if got := o.WorldOf("ghost"); got != "" {
		t.Fatalf("WorldOf(ghost) = %q, want empty", got)
	}
}

func TestOccupancyCountExcluding(t *testing.T) {
	o := NewOccupancy()
	o.Enter("w1", "p1", "alice")
	o.Enter("w1", "p1", "bob")

	if got := o.CountExcluding("w1", "alice"); got != 1 {
		t.Fatalf("CountExcluding(w1, alice) = %d, want 1", got)
	}
	if got := o.CountExcluding("w1", "ghost"); got != 2 {
		t.Fatalf("CountExcluding(w1, ghost) = %d, want 2", got)
	}
}

func TestOccupancyOccupantsReportsPartitions(t *testing.T) {
	o := NewOccupancy()
	o.Enter("w1", "overworld", "alice")
	o.Enter("w1", "nether", "bob")

	occ := o.Occupants("w1")
	if len(occ) != 2 {
		t.Fatalf("Occupants(w1) len = %d, want 2", len(occ))
	}
	if occ["alice"] != "overworld" || occ["bob"] != "nether" {
		t.Fatalf("Occupants(w1) = %v", occ)
	}
}

func TestOccupancyWorldsListsOccupied(t *testing.T) {
	o := NewOccupancy()
	o.Enter("w1", "p", "alice")
	o.Enter("w2", "p", "bob")
	o.Leave("bob")

	worlds := o.Worlds()
	if len(worlds) != 1 || worlds[0] != "w1" {
		t.Fatalf("Worlds() = %v, want [w1]", worlds)
	}
}
