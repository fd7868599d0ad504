// Package inmemory provides LRU key tracking for eviction.
package inmemory

import "container/list"

// lruKeys tracks keys in least-recently-used order.
type lruKeys struct {
	max   int
	items map[string]*list.Element
	list  *list.List
}

func newLRUKeys(max int) *lruKeys {
	if max < 0 {
		max = 0
	}
	return &lruKeys{
		max:   max,
		items: make(map[string]*list.Element),
		list:  list.New(),
	}
}

// touch marks a key as most recently used, inserting it if absent.
func (lru *lruKeys) touch(key string) {
	if lru == nil {
		return
	}
	if element, ok := lru.items[key]; ok {
		lru.list.MoveToFront(element)
		return
	}
	element := lru.list.PushFront(key)
	lru.items[key] = element
}

// remove deletes a key.
func (lru *lruKeys) remove(key string) {
	if lru == nil {
		return
	}
	element, ok := lru.items[key]
	if !ok {
		return
	}
	lru.list.Remove(element)
	delete(lru.items, key)
}

// evictIfNeeded evicts least recently used keys until size <= max.
func (lru *lruKeys) evictIfNeeded() []string {
	if lru == nil || lru.max <= 0 {
		return nil
	}
	if len(lru.items) <= lru.max {
		return nil
	}

	count := len(lru.items) - lru.max
	evicted := make([]string, 0, count)
	for i := 0; i < count; i++ {
		element := lru.list.Back()
		if element == nil {
			break
		}
		key := element.Value.(string)
		evicted = append(evicted, key)
		lru.list.Remove(element)
		delete(lru.items, key)
	}
	return evicted
}
