// Package journal provides a SQLite-backed append-only log of store commits.
//
// Every reduced action is recorded with:
//   - seq: the store's logical clock value (primary key, replay order)
//   - id: content address of (flow token, type, payload, seq)
//   - flow_token: the flow the action belongs to
//   - payload: RFC 8785 canonical JSON
//   - state_hash: hash of the tree the action produced
//
// # Ordering
//
//   - All ordering uses seq INTEGER (logical clock), NEVER timestamps
//   - All queries MUST include: ORDER BY seq ASC
//
// Replay feeds the recorded actions back through a root reducer and checks
// each resulting tree against the recorded state hash, so a reducer whose
// behavior drifted from the one that produced the log is detected at the
// first diverging seq.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package journal
