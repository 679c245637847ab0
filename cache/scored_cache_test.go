package cache

import "testing"

func TestScoredCacheGetInsertUpdate(t *testing.T) {
	c := New[string, int](10, 4, 4, -1)
	c.Insert("a", 1)
	v, ok := c.Get("a")
	if !ok || v != 1 {
		t.Fatalf("Get(a) = %v, %v; want 1, true", v, ok)
	}
	if !c.Update("a", 2) {
		t.Fatal("Update(a) should succeed for existing key")
	}
	v, _ = c.Get("a")
	if v != 2 {
		t.Fatalf("after Update, Get(a) = %v; want 2", v)
	}
	if c.Update("missing", 3) {
		t.Fatal("Update on missing key should report false")
	}
}

func TestScoredCacheEvictsLowestScoreFirst(t *testing.T) {
	c := New[string, int](3, 4, 4, -1)
	c.Insert("a", 1)
	c.Insert("b", 2)

	// Read "a" repeatedly so its score stays far above "b"'s.
	for i := 0; i < 5; i++ {
		c.Get("a")
	}

	// Inserting to capacity triggers clearStales; "b" (lower score) should
	// be evicted before "a".
	c.Insert("c", 3)
	c.Insert("d", 4)

	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected high-score key 'a' to survive eviction")
	}
	if c.Len() > 3 {
		t.Fatalf("cache exceeded capacity: len=%d", c.Len())
	}
}

func TestScoredCacheKeys(t *testing.T) {
	c := New[int, string](10, 1, 1, -1)
	c.Insert(1, "one")
	c.Insert(2, "two")
	keys := c.Keys()
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}
}
