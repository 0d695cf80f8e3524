package evbuffer

// chain is the ordered sequence of segments backing one Buffer. The
// firstWithData cursor lets drain-from-front skip over already-emptied
// segments in O(1) instead of re-scanning the whole list (spec.md §2.2,
// §3 Chain).
type chain struct {
	head          *segment
	tail          *segment
	firstWithData *segment
	totalLen      int
}

func newChain() *chain {
	return &chain{}
}

// linkTail appends seg after the current tail.
func (c *chain) linkTail(seg *segment) {
	if c.tail == nil {
		c.head = seg
		c.tail = seg
	} else {
		c.tail.next = seg
		c.tail = seg
	}
	if c.firstWithData == nil && seg.length > 0 {
		c.firstWithData = seg
	}
	c.totalLen += seg.length
}

// linkHead prepends seg before the current head.
func (c *chain) linkHead(seg *segment) {
	seg.next = c.head
	c.head = seg
	if c.tail == nil {
		c.tail = seg
	}
	if seg.length > 0 {
		c.firstWithData = seg
	} else if c.firstWithData == nil {
		// leave nil; recomputed by advanceFirstWithData on first drain attempt
	}
	c.totalLen += seg.length
}

// spliceTail moves another chain's entire segment list onto this chain's
// tail without copying bytes (evbuffer_add_buffer, spec.md §4.1).
func (c *chain) spliceTail(other *chain) {
	if other.head == nil {
		return
	}
	if c.tail == nil {
		c.head = other.head
		c.firstWithData = other.firstWithData
	} else {
		c.tail.next = other.head
		if c.firstWithData == nil {
			c.firstWithData = other.firstWithData
		}
	}
	c.tail = other.tail
	c.totalLen += other.totalLen

	other.head = nil
	other.tail = nil
	other.firstWithData = nil
	other.totalLen = 0
}

// spliceHead moves another chain's entire segment list onto this chain's
// head without copying bytes (evbuffer_prepend_buffer, spec.md §4.1).
func (c *chain) spliceHead(other *chain) {
	if other.head == nil {
		return
	}
	other.tail.next = c.head
	if c.head == nil {
		c.tail = other.tail
	}
	c.head = other.head
	if other.firstWithData != nil {
		c.firstWithData = other.firstWithData
	} else {
		c.advanceFirstWithData()
	}
	c.totalLen += other.totalLen

	other.head = nil
	other.tail = nil
	other.firstWithData = nil
	other.totalLen = 0
}

// advanceFirstWithData walks forward from the current cursor (or the head,
// if the cursor is stale/nil) until it finds a segment with data, or leaves
// it nil if the chain is empty of data.
func (c *chain) advanceFirstWithData() {
	s := c.firstWithData
	if s == nil {
		s = c.head
	}
	for s != nil && s.length == 0 {
		s = s.next
	}
	c.firstWithData = s
}
