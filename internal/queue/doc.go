// Package queue persists pipeline work in SQLite and exposes the task store
// every core component builds on.
//
// The Store manages database connections, schema initialization, and the raw
// reads and writes for queues, items, state history, leases, agent
// preferences, handoff rules, templates, artifacts, status values, and the
// activity log. Multi-step mutations run inside an immediate transaction via
// Begin so concurrent writers serialize at the storage layer; the optimistic
// version guard on queue_items sits on top of that and is enforced by
// Tx.ApplyItemMutation's affected-row check.
//
// Treat this package as the single source of truth for storage semantics;
// business rules (assignment, handoff, ingestion policy) live in the
// packages that call it.
package queue
