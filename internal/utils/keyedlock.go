package utils

import "sync"

const lockShards = 32

// KeyedMutex hands out one mutex per key. Keys hash onto shards so that
// registering a lock for one key never contends with unrelated keys on a
// single map mutex. Idle locks are released once no holder or waiter remains.
type KeyedMutex struct {
	shards [lockShards]keyedShard
}

type keyedShard struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	mu   sync.Mutex
	refs int
}

// Lock blocks until key is free and returns the matching unlock func.
func (k *KeyedMutex) Lock(key string) (unlock func()) {
	sh := &k.shards[ShardFor(key, lockShards)]

	sh.mu.Lock()
	if sh.locks == nil {
		sh.locks = make(map[string]*refMutex)
	}
	l, ok := sh.locks[key]
	if !ok {
		l = &refMutex{}
		sh.locks[key] = l
	}
	l.refs++
	sh.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		sh.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(sh.locks, key)
		}
		sh.mu.Unlock()
	}
}

func (k *KeyedMutex) held() int {
	n := 0
	for i := range k.shards {
		sh := &k.shards[i]
		sh.mu.Lock()
		n += len(sh.locks)
		sh.mu.Unlock()
	}
	return n
}
