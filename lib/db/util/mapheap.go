// Package util
//
// This file provides a keyed priority queue for garbage collection purposes.
//
// The implementation combines a binary min-heap with a hash map, which gives
// both priority-based operations and key-based access:
//
//   - O(log n) for priority operations (AddItem, PopMin, RemoveByKey)
//   - O(1) for key-based lookups and existence checks
//
// The engines use it to track when entries expire or have to be deleted: the
// key is the entry's key and the priority the write index at which the event
// is due. Re-adding a key moves it instead of duplicating it.
//
// Thread-safety: not thread-safe. Callers synchronize externally (the hot
// engine guards each heap with its shard lock).
//
// Example usage:
//
//	h := NewMapHeap[string]()
//	h.AddItem("session/1", 120)
//	h.AddItem("session/2", 80)
//
//	for {
//	    next, ok := h.Peek()
//	    if !ok || next.Priority > now {
//	        break
//	    }
//	    h.PopMin()
//	    // collect next.Key
//	}
package util

import (
	"container/heap"
	"fmt"
)

// Item is an element of a MapHeap.
type Item[K comparable] struct {
	Key      K      // Unique identifier for the item
	Priority uint64 // Priority used for ordering in the heap
	index    int    // Index in the heap, maintained by the heap package
}

func (i *Item[K]) String() string {
	return fmt.Sprintf("{Key: %v, Priority: %d}", i.Key, i.Priority)
}

// MapHeap is a min-heap of items ordered by priority with key-based access.
type MapHeap[K comparable] struct {
	items    []*Item[K]     // The actual heap slice
	itemsMap map[K]*Item[K] // Map for O(1) access by key
}

// NewMapHeap creates a new, empty heap.
func NewMapHeap[K comparable]() *MapHeap[K] {
	return &MapHeap[K]{
		items:    make([]*Item[K], 0),
		itemsMap: make(map[K]*Item[K]),
	}
}

// Len returns the number of items in the queue (part of heap.Interface)
func (h *MapHeap[K]) Len() int { return len(h.items) }

// Less compares items by priority (part of heap.Interface)
func (h *MapHeap[K]) Less(i, j int) bool {
	return h.items[i].Priority < h.items[j].Priority
}

// Swap exchanges items at positions i and j (part of heap.Interface)
func (h *MapHeap[K]) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

// Push adds an item to the heap (part of heap.Interface). Use AddItem instead.
func (h *MapHeap[K]) Push(x any) {
	item := x.(*Item[K])
	item.index = len(h.items)
	h.items = append(h.items, item)
	h.itemsMap[item.Key] = item
}

// Pop removes and returns the last item (part of heap.Interface). Use PopMin instead.
func (h *MapHeap[K]) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // Avoid memory leak
	item.index = -1 // For safety
	h.items = old[:n-1]
	delete(h.itemsMap, item.Key)
	return item
}

// AddItem adds a new item to the queue or updates the priority of an existing one
func (h *MapHeap[K]) AddItem(key K, priority uint64) {
	if item, exists := h.itemsMap[key]; exists {
		item.Priority = priority
		heap.Fix(h, item.index)
		return
	}
	heap.Push(h, &Item[K]{Key: key, Priority: priority})
}

// RemoveByKey removes an item by its key and returns its priority
func (h *MapHeap[K]) RemoveByKey(key K) (uint64, bool) {
	item, exists := h.itemsMap[key]
	if !exists {
		return 0, false
	}
	heap.Remove(h, item.index)
	return item.Priority, true
}

// Peek returns the item with the lowest priority without removing it
func (h *MapHeap[K]) Peek() (*Item[K], bool) {
	if len(h.items) == 0 {
		return nil, false
	}
	return h.items[0], true
}

// PopMin removes and returns the item with the lowest priority
func (h *MapHeap[K]) PopMin() (*Item[K], bool) {
	if len(h.items) == 0 {
		return nil, false
	}
	return heap.Pop(h).(*Item[K]), true
}

// Contains checks if a key exists in the queue
func (h *MapHeap[K]) Contains(key K) bool {
	_, exists := h.itemsMap[key]
	return exists
}

// GetByKey retrieves an item by its key without removing it
func (h *MapHeap[K]) GetByKey(key K) (*Item[K], bool) {
	item, exists := h.itemsMap[key]
	return item, exists
}

// Clear removes all items
func (h *MapHeap[K]) Clear() {
	clear(h.items)
	h.items = h.items[:0]
	h.itemsMap = make(map[K]*Item[K])
}
