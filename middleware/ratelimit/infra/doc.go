// Package infra contains concrete implementations of the contracts defined in
// package domain.
//
//   - WindowStore: in-process sliding-window log per key, bounded by an LRU
//   - RedisWindowStore: the same sliding window kept in Redis sorted sets
//   - TokenBucketStore: token bucket per key using golang.org/x/time/rate
//   - NewChanPool: channel semaphore for concurrency limiting
//   - MemoryStatsStore / RedisStatsStore: allow/deny counters
package infra
