/*
Package events provides the in-process event bus for Aman's sync engine.

The broker broadcasts typed events over buffered channels so components
stay loosely coupled: the queue replayer announces id reconciliation via
resource.synced, the connectivity monitor announces online/offline
transitions, and the sync orchestrator announces completed cycles.

Every event carries a strongly-typed payload struct (ResourceSynced,
QueueFlushed, ConnectivityChanged, SyncCompleted) rather than a generic
metadata map, so subscribers switch on Event.Type and assert the
matching payload.

Delivery is best-effort and non-blocking: a subscriber whose buffer is
full misses the event. Consumers that need durability must not rely on
the bus; the durable queue and the canonical store carry all state that
matters across restarts.
*/
package events
