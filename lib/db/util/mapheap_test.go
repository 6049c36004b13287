package util

import (
	"fmt"
	"sort"
	"testing"
)

// TestNewMapHeap tests the creation of a new MapHeap
func TestNewMapHeap(t *testing.T) {
	mh := NewMapHeap[string]()

	if mh == nil {
		t.Fatal("NewMapHeap() returned nil")
	}

	if mh.Len() != 0 {
		t.Errorf("New heap should be empty, but has length %d", mh.Len())
	}

	if len(mh.itemsMap) != 0 {
		t.Errorf("New heap's map should be empty, but has %d items", len(mh.itemsMap))
	}
}

// TestAddItem tests adding items to the heap
func TestAddItem(t *testing.T) {
	mh := NewMapHeap[string]()

	mh.AddItem("a", 100)
	mh.AddItem("b", 200)
	mh.AddItem("c", 50)

	if mh.Len() != 3 {
		t.Errorf("Heap should have 3 items, but has %d", mh.Len())
	}

	for _, key := range []string{"a", "b", "c"} {
		if !mh.Contains(key) {
			t.Errorf("Heap should contain key %q", key)
		}
	}

	// min heap, so the lowest priority should be first
	item, exists := mh.Peek()
	if !exists {
		t.Fatal("Peek() should return an item")
	}

	if item.Key != "c" || item.Priority != 50 {
		t.Errorf("Expected min item to be (c,50), got %s", item)
	}
}

// TestUpdateItem tests updating existing items
func TestUpdateItem(t *testing.T) {
	mh := NewMapHeap[string]()

	mh.AddItem("a", 100)
	mh.AddItem("b", 200)

	// move "a" behind "b"
	mh.AddItem("a", 300)

	item, exists := mh.GetByKey("a")
	if !exists {
		t.Fatal("Item with key a should exist")
	}
	if item.Priority != 300 {
		t.Errorf("Item with key a should have priority 300, got %d", item.Priority)
	}
	if mh.Len() != 2 {
		t.Errorf("Updating must not duplicate items, heap has %d items", mh.Len())
	}

	min, _ := mh.Peek()
	if min.Key != "b" {
		t.Errorf("Min item should now be key b, got %s", min.Key)
	}

	mh.AddItem("b", 50)

	min, _ = mh.Peek()
	if min.Key != "b" || min.Priority != 50 {
		t.Errorf("Min item should now be (b,50), got %s", min)
	}
}

// TestRemoveByKey tests removing items by key
func TestRemoveByKey(t *testing.T) {
	mh := NewMapHeap[string]()

	mh.AddItem("a", 100)
	mh.AddItem("b", 200)
	mh.AddItem("c", 300)

	priority, exists := mh.RemoveByKey("b")
	if !exists {
		t.Fatal("RemoveByKey should return true for existing key")
	}
	if priority != 200 {
		t.Errorf("RemoveByKey should return priority 200, got %d", priority)
	}
	if mh.Len() != 2 {
		t.Errorf("Heap should have 2 items after removal, has %d", mh.Len())
	}
	if mh.Contains("b") {
		t.Error("Heap should not contain key b after removal")
	}

	_, exists = mh.RemoveByKey("zzz")
	if exists {
		t.Error("RemoveByKey should return false for non-existent key")
	}
}

// TestPopOrder tests if items are popped in correct order
func TestPopOrder(t *testing.T) {
	mh := NewMapHeap[string]()

	items := []struct {
		key      string
		priority uint64
	}{
		{"e", 50},
		{"c", 30},
		{"a", 10},
		{"d", 40},
		{"b", 20},
	}

	for _, item := range items {
		mh.AddItem(item.key, item.priority)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].priority < items[j].priority
	})

	for i, expected := range items {
		item, ok := mh.PopMin()
		if !ok {
			t.Fatalf("Heap empty after %d items, expected %d items", i, len(items))
		}
		if item.Key != expected.key || item.Priority != expected.priority {
			t.Errorf("Pop %d: expected (%s,%d), got %s", i, expected.key, expected.priority, item)
		}
		if mh.Contains(item.Key) {
			t.Errorf("Popped key %s is still indexed", item.Key)
		}
	}

	if _, ok := mh.PopMin(); ok {
		t.Error("PopMin on an empty heap should return false")
	}
}

// TestPeekEmptyHeap tests behavior when peeking an empty heap
func TestPeekEmptyHeap(t *testing.T) {
	mh := NewMapHeap[string]()

	if _, exists := mh.Peek(); exists {
		t.Error("Peek on empty heap should return exists=false")
	}
}

// TestClear tests resetting the heap
func TestClear(t *testing.T) {
	mh := NewMapHeap[uint64]()
	for i := uint64(0); i < 10; i++ {
		mh.AddItem(i, i*10)
	}

	mh.Clear()

	if mh.Len() != 0 || mh.Contains(3) {
		t.Error("Clear should remove all items")
	}

	mh.AddItem(7, 1)
	if min, _ := mh.Peek(); min.Key != 7 {
		t.Errorf("Heap should be usable after Clear, got %s", min)
	}
}

// TestLargeNumberOfItems tests the heap under a larger load
func TestLargeNumberOfItems(t *testing.T) {
	mh := NewMapHeap[string]()
	const n = 10000

	// descending priorities
	for i := 0; i < n; i++ {
		mh.AddItem(fmt.Sprintf("key-%d", i), uint64(n-i))
	}

	// remove every third item
	for i := 0; i < n; i += 3 {
		mh.RemoveByKey(fmt.Sprintf("key-%d", i))
	}

	var last uint64
	count := 0
	for {
		item, ok := mh.PopMin()
		if !ok {
			break
		}
		if item.Priority < last {
			t.Fatalf("Heap order violated: %d after %d", item.Priority, last)
		}
		last = item.Priority
		count++
	}

	if want := n - (n+2)/3; count != want {
		t.Errorf("Expected %d items, popped %d", want, count)
	}
}
