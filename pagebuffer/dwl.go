package pagebuffer

// dwl is the delayed-write list: dirty entries whose writes are
// deferred until a future tick to protect readers from observing
// "messages from the future" (spec §4.1, §4.3). It reuses the
// doubly-linked-list idiom of storage/lru.go for a list with a
// different invariant: entries stay sorted by decreasing delayUntil,
// head holding the furthest-out deadline and tail the soonest, so
// release_delayed_writes can walk from the tail to find entries whose
// deadline has elapsed.
type dwl struct {
	head, tail *entry
	count      int
}

// insert places e into the list preserving the decreasing-delayUntil
// order and returns the zero-based position it landed at, which the
// engine folds into its delayed-write statistics (spec §4.1's
// "insertion position counted for statistics").
func (d *dwl) insert(e *entry) int {
	pos := 0
	if d.head == nil {
		e.dwlPrev, e.dwlNext = nil, nil
		d.head, d.tail = e, e
		d.count++
		return pos
	}

	cur := d.head
	for cur != nil && cur.delayUntil >= e.delayUntil {
		cur = cur.dwlNext
		pos++
	}

	if cur == nil {
		// e belongs at the tail: smallest deadline seen so far.
		e.dwlPrev = d.tail
		e.dwlNext = nil
		d.tail.dwlNext = e
		d.tail = e
	} else {
		e.dwlNext = cur
		e.dwlPrev = cur.dwlPrev
		if cur.dwlPrev != nil {
			cur.dwlPrev.dwlNext = e
		} else {
			d.head = e
		}
		cur.dwlPrev = e
	}
	d.count++
	return pos
}

func (d *dwl) remove(e *entry) {
	if e.dwlPrev == nil && e.dwlNext == nil && d.head != e && d.tail != e {
		return
	}
	if e.dwlPrev != nil {
		e.dwlPrev.dwlNext = e.dwlNext
	} else {
		d.head = e.dwlNext
	}
	if e.dwlNext != nil {
		e.dwlNext.dwlPrev = e.dwlPrev
	} else {
		d.tail = e.dwlPrev
	}
	e.dwlPrev, e.dwlNext = nil, nil
	d.count--
}

// releaseExpired walks from the tail (soonest deadline first) and
// calls fn for every entry whose delayUntil < currentTick, removing
// each from the list before the callback runs so fn is free to
// relink the entry onto the LRU or flush-and-evict it.
func (d *dwl) releaseExpired(currentTick uint64, fn func(e *entry)) {
	cur := d.tail
	for cur != nil && cur.delayUntil < currentTick {
		prev := cur.dwlPrev
		d.remove(cur)
		fn(cur)
		cur = prev
	}
}

func (d *dwl) len() int { return d.count }
