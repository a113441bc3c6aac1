package pglue

import (
	"errors"
	"testing"
)

func TestQueryBuilderImmutability(t *testing.T) {
	base := &Query{}
	chunked := base.Chunked(100)
	simple := base.Simple(true)

	if base.chunkSize != 0 || base.simple {
		t.Fatalf("base mutated: chunkSize=%d simple=%v", base.chunkSize, base.simple)
	}
	if chunked.chunkSize != 100 {
		t.Fatalf("chunked.chunkSize = %d, want 100", chunked.chunkSize)
	}
	if !simple.simple {
		t.Fatalf("simple.simple = false, want true")
	}
	if chunked == base || simple == base {
		t.Fatalf("builder methods must return a new *Query, not mutate the receiver")
	}
}

func TestQueryMapFilterComposition(t *testing.T) {
	q := (&Query{}).
		Filter(func(r Row) bool { return true }).
		Map(func(r Row) (Row, error) { return r, nil })

	if len(q.transforms) != 2 {
		t.Fatalf("transforms = %d, want 2", len(q.transforms))
	}

	var zero Row
	out, keep, err := q.applyTransforms(zero)
	if err != nil || !keep {
		t.Fatalf("applyTransforms() = %v, %v, %v", out, keep, err)
	}
}

func TestQueryFilterRejectsRow(t *testing.T) {
	q := (&Query{}).Filter(func(r Row) bool { return false }).
		Map(func(r Row) (Row, error) {
			t.Fatal("Map must not run once Filter has rejected the row")
			return r, nil
		})

	var zero Row
	_, keep, err := q.applyTransforms(zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if keep {
		t.Fatalf("keep = true, want false")
	}
}

func TestQueryMapErrorShortCircuits(t *testing.T) {
	boom := errors.New("boom")
	called := false
	q := (&Query{}).
		Map(func(r Row) (Row, error) { return r, boom }).
		Map(func(r Row) (Row, error) {
			called = true
			return r, nil
		})

	var zero Row
	_, _, err := q.applyTransforms(zero)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if called {
		t.Fatalf("second Map ran after the first failed")
	}
}

func TestQueryCloneCopiesTransformsIndependently(t *testing.T) {
	q1 := (&Query{}).Filter(func(r Row) bool { return true })
	q2 := q1.Filter(func(r Row) bool { return false })

	if len(q1.transforms) != 1 {
		t.Fatalf("q1.transforms = %d, want 1 (clone must not share the backing slice)", len(q1.transforms))
	}
	if len(q2.transforms) != 2 {
		t.Fatalf("q2.transforms = %d, want 2", len(q2.transforms))
	}
}
