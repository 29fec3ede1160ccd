package pagebuffer

// ticklist holds every entry modified during the current tick
// (invariant 3: modifiedThisTick ⇒ TL membership). It is append-only
// and drained wholesale at end-of-tick, matching storage/wal.go's
// records []WALRecord append-then-truncate shape rather than the
// ordered-removal lru/dwl lists above.
type ticklist struct {
	head, tail *entry
	count      int
}

func (t *ticklist) append(e *entry) {
	if e.modifiedThisTick {
		return // already on the list
	}
	e.modifiedThisTick = true
	e.tlPrev = t.tail
	e.tlNext = nil
	if t.tail != nil {
		t.tail.tlNext = e
	} else {
		t.head = e
	}
	t.tail = e
	t.count++
}

func (t *ticklist) remove(e *entry) {
	if !e.modifiedThisTick {
		return
	}
	if e.tlPrev != nil {
		e.tlPrev.tlNext = e.tlNext
	} else {
		t.head = e.tlNext
	}
	if e.tlNext != nil {
		e.tlNext.tlPrev = e.tlPrev
	} else {
		t.tail = e.tlPrev
	}
	e.tlPrev, e.tlNext = nil, nil
	e.modifiedThisTick = false
	t.count--
}

// drain empties the list, invoking fn on every member in insertion
// order before clearing modifiedThisTick on each.
func (t *ticklist) drain(fn func(e *entry)) {
	for cur := t.head; cur != nil; {
		next := cur.tlNext
		cur.tlPrev, cur.tlNext = nil, nil
		cur.modifiedThisTick = false
		fn(cur)
		cur = next
	}
	t.head, t.tail = nil, nil
	t.count = 0
}

func (t *ticklist) len() int { return t.count }
