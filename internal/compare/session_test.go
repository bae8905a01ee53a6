package compare

import (
	"testing"
	"time"
)

func TestSessionRefetchOnlyOnFingerprintChange(t *testing.T) {
	sess := NewSession("view-1")
	fp := NewFingerprint("all", "")

	if !sess.NeedsRefetch(fp, false) {
		t.Fatalf("empty session must fetch")
	}
	seq := sess.Begin()
	if !sess.Store(seq, fp, []FlatRow{{ProductSKU: "A"}}) {
		t.Fatalf("latest load should store rows")
	}
	if sess.NeedsRefetch(fp, false) {
		t.Fatalf("same fingerprint should reuse rows")
	}
	if sess.NeedsRefetch(NewFingerprint("", "all"), false) {
		t.Fatalf("empty site and tag 'all' normalize to the same fingerprint")
	}
	if !sess.NeedsRefetch(fp, true) {
		t.Fatalf("reload must refetch")
	}
	if !sess.NeedsRefetch(NewFingerprint("praktiker", ""), false) {
		t.Fatalf("site change must refetch")
	}
	if !sess.NeedsRefetch(NewFingerprint("all", "3"), false) {
		t.Fatalf("tag change must refetch")
	}
}

func TestSessionDiscardsStaleLoads(t *testing.T) {
	sess := NewSession("view-1")
	fp := NewFingerprint("all", "")

	first := sess.Begin()
	second := sess.Begin()

	if sess.IsLatest(first) {
		t.Fatalf("first load should be stale")
	}
	if sess.Store(first, fp, []FlatRow{{ProductSKU: "old"}}) {
		t.Fatalf("stale load must not store rows")
	}
	if sess.Commit(first) {
		t.Fatalf("stale load must not commit")
	}
	if !sess.Store(second, fp, []FlatRow{{ProductSKU: "new"}}) || !sess.Commit(second) {
		t.Fatalf("latest load should store and commit")
	}
	rows, _, _ := sess.Rows()
	if len(rows) != 1 || rows[0].ProductSKU != "new" {
		t.Fatalf("unexpected rows %+v", rows)
	}
	if sess.Committed() != second {
		t.Fatalf("expected committed %d got %d", second, sess.Committed())
	}
}

func TestSessionStoreEvictsIdleViews(t *testing.T) {
	store := NewSessionStore(time.Minute)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	a := store.Get("a")
	if store.Get("a") != a {
		t.Fatalf("same view should reuse its session")
	}
	if store.Get("  ").ID() != DefaultViewID {
		t.Fatalf("blank view id should map to the default view")
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 sessions got %d", store.Len())
	}

	now = now.Add(30 * time.Second)
	store.Get("a")
	now = now.Add(45 * time.Second)
	if removed := store.Sweep(); removed != 1 {
		t.Fatalf("expected the default view to be evicted, removed %d", removed)
	}
	if store.Get("a") != a {
		t.Fatalf("recently used view should survive")
	}
}
