package pagebuffer

import "testing"

func TestDWLInsertOrderedByDecreasingDeadline(t *testing.T) {
	var d dwl
	e1 := mkEntry(1)
	e1.delayUntil = 10
	e2 := mkEntry(2)
	e2.delayUntil = 30
	e3 := mkEntry(3)
	e3.delayUntil = 20

	d.insert(e1)
	d.insert(e2)
	d.insert(e3)

	if d.head != e2 {
		t.Fatalf("expected head to hold the largest deadline (e2), got page %d", d.head.page)
	}
	if d.tail != e1 {
		t.Fatalf("expected tail to hold the smallest deadline (e1), got page %d", d.tail.page)
	}
	var order []int64
	for cur := d.head; cur != nil; cur = cur.dwlNext {
		order = append(order, cur.page)
	}
	want := []int64{2, 3, 1}
	for i, p := range want {
		if order[i] != p {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}
}

func TestDWLInsertReturnsPosition(t *testing.T) {
	var d dwl
	e1 := mkEntry(1)
	e1.delayUntil = 30
	if pos := d.insert(e1); pos != 0 {
		t.Fatalf("expected first insertion at position 0, got %d", pos)
	}

	e2 := mkEntry(2)
	e2.delayUntil = 10
	if pos := d.insert(e2); pos != 1 {
		t.Fatalf("expected smaller-deadline insertion at position 1, got %d", pos)
	}
}

func TestDWLReleaseExpired(t *testing.T) {
	var d dwl
	e1 := mkEntry(1)
	e1.delayUntil = 5
	e2 := mkEntry(2)
	e2.delayUntil = 15
	e3 := mkEntry(3)
	e3.delayUntil = 25
	d.insert(e1)
	d.insert(e2)
	d.insert(e3)

	var released []int64
	d.releaseExpired(20, func(e *entry) { released = append(released, e.page) })

	if len(released) != 2 {
		t.Fatalf("expected 2 entries released at tick 20, got %v", released)
	}
	if released[0] != 1 || released[1] != 2 {
		t.Fatalf("expected soonest-deadline-first release order [1 2], got %v", released)
	}
	if d.len() != 1 || d.head != e3 {
		t.Fatalf("expected only e3 to remain on the DWL")
	}
}

func TestDWLRemove(t *testing.T) {
	var d dwl
	e1 := mkEntry(1)
	e1.delayUntil = 5
	e2 := mkEntry(2)
	e2.delayUntil = 10
	d.insert(e1)
	d.insert(e2)

	d.remove(e1)
	if d.len() != 1 {
		t.Fatalf("expected len 1 after remove, got %d", d.len())
	}
	if d.head != e2 || d.tail != e2 {
		t.Fatalf("expected e2 to be the sole remaining member")
	}
}
