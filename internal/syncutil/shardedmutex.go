// Package syncutil provides shared synchronization primitives.
package syncutil

import (
	"hash/fnv"
	"sync"
)

// ShardedMutex provides a fixed-size pool of mutexes keyed by string.
// It is used to serialize subscription mutations per school without a
// global lock: different schools land on different shards (modulo
// occasional false sharing between keys that hash to the same shard),
// and memory stays bounded no matter how many keys are seen.
type ShardedMutex struct {
	shards [256]sync.Mutex
}

// NewShardedMutex creates a ShardedMutex. The zero value is also ready
// to use.
func NewShardedMutex() *ShardedMutex {
	return &ShardedMutex{}
}

// Lock acquires the mutex for the given key and returns an unlock function.
func (s *ShardedMutex) Lock(key string) func() {
	mu := s.shard(key)
	mu.Lock()
	return mu.Unlock
}

func (s *ShardedMutex) shard(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.shards[h.Sum32()%256]
}
