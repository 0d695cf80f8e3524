package evbuffer

import (
	"bytes"
	"fmt"
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestAddDrain_LengthInvariant(t *testing.T) {
	t.Parallel()
	b := New(Config{})
	defer b.Free()

	if err := b.Add([]byte("hello")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := b.Add([]byte(" world")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got := b.GetLength(); got != len("hello world") {
		t.Fatalf("GetLength() = %d, want %d", got, len("hello world"))
	}
	if err := b.Drain(6); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if got := b.GetLength(); got != len("world") {
		t.Fatalf("GetLength() after drain = %d, want %d", got, len("world"))
	}
}

func TestAddDrain_OrderingPreserved(t *testing.T) {
	t.Parallel()
	b := New(Config{})
	defer b.Free()

	parts := []string{"abc", "def", "ghi", "jkl"}
	for _, p := range parts {
		if err := b.Add([]byte(p)); err != nil {
			t.Fatalf("Add(%q): %v", p, err)
		}
	}
	out := make([]byte, b.GetLength())
	n, err := b.Remove(out, len(out))
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	want := "abcdefghijkl"
	if string(out[:n]) != want {
		t.Fatalf("Remove produced %q, want %q", out[:n], want)
	}
}

func TestRemove_RoundTrip(t *testing.T) {
	t.Parallel()
	b := New(Config{})
	defer b.Free()

	payload := bytes.Repeat([]byte("0123456789"), 500) // force multiple segments
	if err := b.Add(payload); err != nil {
		t.Fatalf("Add: %v", err)
	}
	out := make([]byte, len(payload))
	n, err := b.Remove(out, len(out))
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if n != len(payload) {
		t.Fatalf("Remove moved %d bytes, want %d", n, len(payload))
	}
	if !bytes.Equal(out, payload) {
		t.Fatalf("round-tripped bytes do not match input")
	}
	if b.GetLength() != 0 {
		t.Fatalf("buffer should be empty after full Remove, got length %d", b.GetLength())
	}
}

func TestAddBuffer_ConservesTotalBytes(t *testing.T) {
	t.Parallel()
	src := New(Config{})
	dst := New(Config{})
	defer src.Free()
	defer dst.Free()

	if err := src.Add([]byte("source payload")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := dst.Add([]byte("dest prefix ")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	srcLen := src.GetLength()
	dstLenBefore := dst.GetLength()

	if err := dst.AddBuffer(src); err != nil {
		t.Fatalf("AddBuffer: %v", err)
	}

	if src.GetLength() != 0 {
		t.Fatalf("src should be empty after AddBuffer, got %d", src.GetLength())
	}
	if want := dstLenBefore + srcLen; dst.GetLength() != want {
		t.Fatalf("dst length = %d, want %d", dst.GetLength(), want)
	}

	out := make([]byte, dst.GetLength())
	n, _ := dst.Remove(out, len(out))
	if string(out[:n]) != "dest prefix source payload" {
		t.Fatalf("AddBuffer did not preserve ordering: %q", out[:n])
	}
}

func TestPullup_ReturnsContiguousPrefix(t *testing.T) {
	t.Parallel()
	b := New(Config{})
	defer b.Free()

	for i := 0; i < 5; i++ {
		if err := b.Add(bytes.Repeat([]byte{byte('a' + i)}, 300)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	total := b.GetLength()

	data := b.Bytes()
	if len(data) != total {
		t.Fatalf("Bytes() after full Pullup returned %d bytes, want %d", len(data), total)
	}
	if data[0] != 'a' || data[len(data)-1] != 'e' {
		t.Fatalf("Pullup scrambled content: first=%q last=%q", data[0], data[len(data)-1])
	}
}

func TestSearch_FindsNeedleAcrossSegments(t *testing.T) {
	t.Parallel()
	b := New(Config{})
	defer b.Free()

	// A reference segment never coalesces with a heap tail (see
	// AddReference), so NEEDLE lands in its own segment between two heap
	// segments: matchAt must walk across that boundary correctly.
	if err := b.Add(bytes.Repeat([]byte{'x'}, 10)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := b.AddReference([]byte("NEEDLE"), nil, nil); err != nil {
		t.Fatalf("AddReference: %v", err)
	}
	if err := b.Add(bytes.Repeat([]byte{'y'}, 10)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	pos, err := b.Search([]byte("NEEDLE"), 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if pos.Pos != 10 {
		t.Fatalf("Search found pos %d, want 10", pos.Pos)
	}

	pos2, err := b.Search([]byte("NOPE"), 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if pos2.Pos != -1 {
		t.Fatalf("Search for absent needle returned pos %d, want -1", pos2.Pos)
	}
}

func TestSearch_MonotonicWithStart(t *testing.T) {
	t.Parallel()
	b := New(Config{})
	defer b.Free()
	if err := b.Add([]byte("aXbXcXd")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	first, _ := b.Search([]byte("X"), 0)
	second, _ := b.Search([]byte("X"), first.Pos+1)
	third, _ := b.Search([]byte("X"), second.Pos+1)

	if !(first.Pos < second.Pos && second.Pos < third.Pos) {
		t.Fatalf("Search results not monotonically increasing: %d, %d, %d", first.Pos, second.Pos, third.Pos)
	}
}

func TestCallback_FiresOnMutationWithConservedDelta(t *testing.T) {
	t.Parallel()
	b := New(Config{})
	defer b.Free()

	var gotAdded, gotDeleted int
	calls := 0
	h := b.AddCallback(func(_ *Buffer, info ChangeInfo, _ interface{}) {
		calls++
		gotAdded += info.NAdded
		gotDeleted += info.NDeleted
	}, nil)
	defer b.RemoveCallback(h)

	if err := b.Add([]byte("12345")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := b.Drain(2); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	if calls != 2 {
		t.Fatalf("callback fired %d times, want 2", calls)
	}
	if gotAdded != 5 {
		t.Fatalf("accumulated NAdded = %d, want 5", gotAdded)
	}
	if gotDeleted != 2 {
		t.Fatalf("accumulated NDeleted = %d, want 2", gotDeleted)
	}
}

func TestCallback_SuspendAccumulatesOneDelivery(t *testing.T) {
	t.Parallel()
	b := New(Config{})
	defer b.Free()

	calls := 0
	var lastInfo ChangeInfo
	h := b.AddCallback(func(_ *Buffer, info ChangeInfo, _ interface{}) {
		calls++
		lastInfo = info
	}, nil)
	defer b.RemoveCallback(h)

	if err := b.SuspendCallback(h); err != nil {
		t.Fatalf("SuspendCallback: %v", err)
	}
	_ = b.Add([]byte("abc"))
	_ = b.Add([]byte("def"))
	_ = b.Drain(1)
	if calls != 0 {
		t.Fatalf("callback fired %d times while suspended, want 0", calls)
	}
	if err := b.UnsuspendCallback(h); err != nil {
		t.Fatalf("UnsuspendCallback: %v", err)
	}
	if calls != 1 {
		t.Fatalf("callback fired %d times after unsuspend, want exactly 1", calls)
	}
	if lastInfo.NAdded != 6 || lastInfo.NDeleted != 1 {
		t.Fatalf("accumulated info = %+v, want NAdded=6 NDeleted=1", lastInfo)
	}
}

func TestFreeze_BlocksOppositeEndMutation(t *testing.T) {
	t.Parallel()
	b := New(Config{})
	defer b.Free()

	if err := b.Add([]byte("payload")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := b.Freeze(false); err != nil { // freeze back
		t.Fatalf("Freeze: %v", err)
	}
	if err := b.Add([]byte("more")); err != ErrFrozen {
		t.Fatalf("Add while back-frozen = %v, want ErrFrozen", err)
	}
	if err := b.Drain(3); err != nil {
		t.Fatalf("Drain should still succeed while only back is frozen: %v", err)
	}
	if err := b.Unfreeze(false); err != nil {
		t.Fatalf("Unfreeze: %v", err)
	}
	if err := b.Add([]byte("more")); err != nil {
		t.Fatalf("Add after Unfreeze: %v", err)
	}
}

func TestFreeze_StacksAndRequiresMatchingUnfreeze(t *testing.T) {
	t.Parallel()
	b := New(Config{})
	defer b.Free()

	_ = b.Freeze(true)
	_ = b.Freeze(true)
	if err := b.Prepend([]byte("x")); err != ErrFrozen {
		t.Fatalf("Prepend under double front-freeze = %v, want ErrFrozen", err)
	}
	_ = b.Unfreeze(true)
	if err := b.Prepend([]byte("x")); err != ErrFrozen {
		t.Fatalf("Prepend after single Unfreeze (still one level frozen) = %v, want ErrFrozen", err)
	}
	_ = b.Unfreeze(true)
	if err := b.Prepend([]byte("x")); err != nil {
		t.Fatalf("Prepend after fully unfrozen: %v", err)
	}
}

func TestAddReference_CleanupFiresExactlyOnce(t *testing.T) {
	t.Parallel()
	b := New(Config{})
	defer b.Free()

	data := []byte("external-owned-bytes")
	cleanups := 0
	err := b.AddReference(data, func(d []byte, arg interface{}) {
		cleanups++
	}, nil)
	if err != nil {
		t.Fatalf("AddReference: %v", err)
	}
	if err := b.Drain(b.GetLength()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if cleanups != 1 {
		t.Fatalf("cleanup fired %d times, want exactly 1", cleanups)
	}
}

func TestAddReference_CleanupFiresOnFreeIfUndrained(t *testing.T) {
	t.Parallel()
	b := New(Config{})
	data := []byte("external-owned-bytes")
	cleanups := 0
	if err := b.AddReference(data, func(d []byte, arg interface{}) { cleanups++ }, nil); err != nil {
		t.Fatalf("AddReference: %v", err)
	}
	b.Free()
	if cleanups != 1 {
		t.Fatalf("cleanup fired %d times on Free, want exactly 1", cleanups)
	}
}

func TestReserveCommit_PublishesExactlyCommitted(t *testing.T) {
	t.Parallel()
	b := New(Config{})
	defer b.Free()

	space, err := b.ReserveSpace(64)
	if err != nil {
		t.Fatalf("ReserveSpace: %v", err)
	}
	if len(space) < 64 {
		t.Fatalf("ReserveSpace returned %d bytes, want >= 64", len(space))
	}
	copy(space, []byte("partial-write"))
	if err := b.CommitSpace(13); err != nil {
		t.Fatalf("CommitSpace: %v", err)
	}
	if b.GetLength() != 13 {
		t.Fatalf("GetLength() = %d, want 13", b.GetLength())
	}
}

func TestCommitSpace_WithoutReservationFails(t *testing.T) {
	t.Parallel()
	b := New(Config{})
	defer b.Free()
	if err := b.CommitSpace(1); err != ErrNoReservation {
		t.Fatalf("CommitSpace without reserve = %v, want ErrNoReservation", err)
	}
}

func TestCommitSpace_ExceedingReservationFails(t *testing.T) {
	t.Parallel()
	b := New(Config{})
	defer b.Free()
	if _, err := b.ReserveSpace(16); err != nil {
		t.Fatalf("ReserveSpace: %v", err)
	}
	if err := b.CommitSpace(1 << 20); err != ErrCommitExceedsReservation {
		t.Fatalf("CommitSpace overshoot = %v, want ErrCommitExceedsReservation", err)
	}
}

func TestReadln_CRLFStrictWaitsForTerminator(t *testing.T) {
	t.Parallel()
	b := New(Config{})
	defer b.Free()
	if err := b.Add([]byte("no-terminator-yet")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := b.Readln(EOLCRLFStrict); err != ErrNotFound {
		t.Fatalf("Readln(EOLCRLFStrict) with no CRLF present = %v, want ErrNotFound", err)
	}
	if err := b.Add([]byte("\r\n")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	line, err := b.Readln(EOLCRLF)
	if err != nil {
		t.Fatalf("Readln(EOLCRLF): %v", err)
	}
	if string(line) != "no-terminator-yet" {
		t.Fatalf("Readln(EOLCRLF) = %q", line)
	}
}

func TestReadln_LFStyle(t *testing.T) {
	t.Parallel()
	b := New(Config{})
	defer b.Free()
	if err := b.Add([]byte("first\nsecond\nthird")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	for _, want := range []string{"first", "second"} {
		line, err := b.Readln(EOLLF)
		if err != nil {
			t.Fatalf("Readln: %v", err)
		}
		if string(line) != want {
			t.Fatalf("Readln = %q, want %q", line, want)
		}
	}
	if _, err := b.Readln(EOLLF); err != ErrNotFound {
		t.Fatalf("Readln on unterminated remainder = %v, want ErrNotFound", err)
	}
}

func TestPosition_PtrAddAmortizedAdvance(t *testing.T) {
	t.Parallel()
	b := New(Config{})
	defer b.Free()
	if err := b.Add([]byte("0123456789")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	var pos Position
	if err := b.PtrSet(&pos, 2, PtrSetAbsolute); err != nil {
		t.Fatalf("PtrSet: %v", err)
	}
	if err := b.PtrSet(&pos, 3, PtrAdd); err != nil {
		t.Fatalf("PtrSet PtrAdd: %v", err)
	}
	if pos.Pos != 5 {
		t.Fatalf("pos.Pos = %d, want 5", pos.Pos)
	}
}

func TestPosition_StaleAfterMutationRecomputes(t *testing.T) {
	t.Parallel()
	b := New(Config{})
	defer b.Free()
	if err := b.Add([]byte("0123456789")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	var pos Position
	_ = b.PtrSet(&pos, 8, PtrSetAbsolute)

	if err := b.Drain(5); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	// pos was captured against the pre-drain buffer; a stale Position's
	// PtrAdd must recompute from scratch (Pos+delta against the *current*
	// buffer) rather than reuse a hint into a segment the drain may have
	// released. Offset 8 no longer fits the 5-byte post-drain buffer, so
	// recomputation reports "not found" instead of silently reading
	// through stale state.
	if err := b.PtrSet(&pos, 0, PtrAdd); err != nil {
		t.Fatalf("PtrSet PtrAdd after mutation: %v", err)
	}
	if pos.Pos != -1 {
		t.Fatalf("pos.Pos after stale PtrAdd = %d, want -1 (invalidated)", pos.Pos)
	}
}

func TestRemoveBuffer_MovesWholeAndPartialSegments(t *testing.T) {
	t.Parallel()
	src := New(Config{})
	dst := New(Config{})
	defer src.Free()
	defer dst.Free()

	if err := src.Add([]byte("0123456789")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	n, err := dst.RemoveBuffer(src, 4)
	if err != nil {
		t.Fatalf("RemoveBuffer: %v", err)
	}
	if n != 4 {
		t.Fatalf("RemoveBuffer moved %d, want 4", n)
	}
	if src.GetLength() != 6 {
		t.Fatalf("src length after partial RemoveBuffer = %d, want 6", src.GetLength())
	}
	if dst.GetLength() != 4 {
		t.Fatalf("dst length after partial RemoveBuffer = %d, want 4", dst.GetLength())
	}

	out := make([]byte, 4)
	dst.Remove(out, 4)
	if string(out) != "0123" {
		t.Fatalf("moved prefix = %q, want %q", out, "0123")
	}
}

func TestLocking_RecursiveLockSameGoroutine(t *testing.T) {
	t.Parallel()
	b := New(Config{Locking: true})
	defer b.Free()

	b.Lock()
	defer b.Unlock()
	b.Lock() // recursive: must not deadlock
	defer b.Unlock()

	if err := b.Add([]byte("x")); err != nil {
		t.Fatalf("Add while holding recursive lock: %v", err)
	}
}

// TestConcurrent_AddRaceRemoveBufferConservesBytes races many goroutines
// appending to src against one goroutine repeatedly draining src into dst
// via RemoveBuffer, using errgroup to run them together and propagate the
// first error. No byte may be lost or duplicated: whatever is not in dst
// when the group finishes must still be in src.
func TestConcurrent_AddRaceRemoveBufferConservesBytes(t *testing.T) {
	t.Parallel()
	src := New(Config{Locking: true})
	dst := New(Config{Locking: true})
	defer src.Free()
	defer dst.Free()

	const writers = 8
	const perWriter = 200
	const chunk = "0123456789"

	var g errgroup.Group
	for w := 0; w < writers; w++ {
		g.Go(func() error {
			for i := 0; i < perWriter; i++ {
				if err := src.Add([]byte(chunk)); err != nil {
					return fmt.Errorf("Add: %w", err)
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		for i := 0; i < perWriter*writers/2; i++ {
			if _, err := dst.RemoveBuffer(src, len(chunk)); err != nil {
				return fmt.Errorf("RemoveBuffer: %w", err)
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		t.Fatalf("errgroup: %v", err)
	}

	wantTotal := writers * perWriter * len(chunk)
	gotTotal := src.GetLength() + dst.GetLength()
	if gotTotal != wantTotal {
		t.Fatalf("conserved bytes = %d, want %d", gotTotal, wantTotal)
	}
	if dst.GetLength()%len(chunk) != 0 || src.GetLength()%len(chunk) != 0 {
		t.Fatalf("lengths not chunk-aligned: src=%d dst=%d", src.GetLength(), dst.GetLength())
	}
}
