package cart

import "sync"

// KeyedMutex serializes mutations per identity. Operations on different
// users' carts never contend; two requests against the same cart execute
// one at a time. Checkout shares the same instance so its read-snapshot-
// write-clear sequence cannot interleave with a concurrent add.
//
// Entries are never removed: the map holds one mutex per identity seen
// since process start. At a few dozen bytes per active user that stays
// small; reference counting would be needed before this serves millions
// of identities per process.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *KeyedMutex) Lock(key string) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
}

func (k *KeyedMutex) Unlock(key string) {
	k.mu.Lock()
	m := k.locks[key]
	k.mu.Unlock()

	if m != nil {
		m.Unlock()
	}
}
