// Package cache implements a multi-tier response cache for AI-generation
// workloads where upstream calls are slow and costly.
//
// Three tiers cooperate behind a single Manager facade:
//
//   - L1: a bounded in-process LRU with per-entry TTL and access counting.
//   - L2: a Redis-backed shared tier with native expiry, shared by all
//     worker processes. L2 failures never propagate to callers; reads
//     degrade to misses and writes to logged no-ops.
//   - L3: a semantic index of query embeddings stored in Redis, used to
//     satisfy paraphrased queries by cosine similarity when the exact
//     tiers miss.
//
// Lookups probe L1 → L2 → L3 in order, promoting L2 hits back into L1 with
// their remaining TTL. Writes populate L1 and L2 synchronously and register
// the query embedding in L3 asynchronously; semantic indexing is best effort
// and never fails a write.
package cache
