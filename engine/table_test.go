package engine

import "testing"

func TestTableMatchesByTokenWhenPresent(t *testing.T) {
	table := NewTable()
	r := &Record{MessageID: 7, Token: tok(1)}
	table.Insert(r)

	if got := table.Match(999, tok(1)); got != r {
		t.Fatalf("Match by token returned %v, want %v", got, r)
	}
	if got := table.Match(7, nil); got != nil {
		t.Fatalf("Match with empty token must not fall back to a token-keyed record, got %v", got)
	}
}

func TestTableMatchesByIDWhenTokenless(t *testing.T) {
	table := NewTable()
	r := &Record{MessageID: 42}
	table.Insert(r)

	if got := table.Match(42, nil); got != r {
		t.Fatalf("Match by id returned %v, want %v", got, r)
	}
	if got := table.Match(42, tok(9)); got != nil {
		t.Fatalf("Match with a non-empty token must not fall back to id lookup, got %v", got)
	}
}

func TestTableInsertPanicsOnDuplicateToken(t *testing.T) {
	table := NewTable()
	table.Insert(&Record{MessageID: 1, Token: tok(5)})

	defer func() {
		if recover() == nil {
			t.Fatal("expected Insert to panic on duplicate token")
		}
	}()
	table.Insert(&Record{MessageID: 2, Token: tok(5)})
}

func TestTableReKeyIDMovesTokenlessRecord(t *testing.T) {
	table := NewTable()
	r := &Record{MessageID: 1}
	table.Insert(r)

	r.MessageID = 2
	table.ReKeyID(r, 1)

	if table.Match(1, nil) != nil {
		t.Fatal("old id should no longer match")
	}
	if table.Match(2, nil) != r {
		t.Fatal("new id should match the rekeyed record")
	}
}

func TestTableRemoveAllEmptiesAndInvokesEveryRecord(t *testing.T) {
	table := NewTable()
	table.Insert(&Record{MessageID: 1, Token: tok(1)})
	table.Insert(&Record{MessageID: 2})

	var seen int
	table.RemoveAll(func(r *Record) { seen++ })

	if seen != 2 {
		t.Fatalf("RemoveAll invoked callback %d times, want 2", seen)
	}
	if table.Len() != 0 {
		t.Fatalf("table should be empty after RemoveAll, has %d", table.Len())
	}
}
