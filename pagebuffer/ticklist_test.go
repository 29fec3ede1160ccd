package pagebuffer

import "testing"

func TestTickListAppendIdempotent(t *testing.T) {
	var tl ticklist
	e := mkEntry(1)
	tl.append(e)
	tl.append(e)
	if tl.len() != 1 {
		t.Fatalf("expected len 1 after appending the same entry twice, got %d", tl.len())
	}
	if !e.modifiedThisTick {
		t.Fatalf("expected modifiedThisTick to be set")
	}
}

func TestTickListDrainOrderAndReset(t *testing.T) {
	var tl ticklist
	e1, e2, e3 := mkEntry(1), mkEntry(2), mkEntry(3)
	tl.append(e1)
	tl.append(e2)
	tl.append(e3)

	var order []int64
	tl.drain(func(e *entry) { order = append(order, e.page) })

	want := []int64{1, 2, 3}
	for i, p := range want {
		if order[i] != p {
			t.Fatalf("expected drain order %v, got %v", want, order)
		}
	}
	if tl.len() != 0 {
		t.Fatalf("expected list empty after drain, got len %d", tl.len())
	}
	if e1.modifiedThisTick || e2.modifiedThisTick || e3.modifiedThisTick {
		t.Fatalf("expected modifiedThisTick cleared on every drained entry")
	}
}

func TestTickListRemove(t *testing.T) {
	var tl ticklist
	e1, e2 := mkEntry(1), mkEntry(2)
	tl.append(e1)
	tl.append(e2)

	tl.remove(e1)
	if tl.len() != 1 {
		t.Fatalf("expected len 1 after remove, got %d", tl.len())
	}
	if e1.modifiedThisTick {
		t.Fatalf("expected modifiedThisTick cleared on removed entry")
	}
}
