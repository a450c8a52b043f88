// Package sync provides keyed locking for work that must not run twice on the
// same record at once, such as two repairs of one anomaly.
package sync

import (
	"hash/fnv"
	"sync"
)

const defaultShards = 32

// KeyedMutex serializes callers that share a key. Keys hash onto a fixed set
// of mutexes, so unrelated keys may occasionally wait on each other.
type KeyedMutex struct {
	shards []sync.Mutex
}

// NewKeyedMutex returns a mutex set with n shards; n < 1 selects 32.
func NewKeyedMutex(n int) *KeyedMutex {
	if n < 1 {
		n = defaultShards
	}
	return &KeyedMutex{shards: make([]sync.Mutex, n)}
}

func (m *KeyedMutex) Lock(key string) {
	m.shards[m.shardFor(key)].Lock()
}

func (m *KeyedMutex) Unlock(key string) {
	m.shards[m.shardFor(key)].Unlock()
}

func (m *KeyedMutex) shardFor(key string) int {
	if key == "" || len(m.shards) == 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(m.shards)))
}
