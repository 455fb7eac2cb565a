/*
Package agent implements the device-side sync runtime: the pieces that
let a user keep working with no connectivity and converge with the
server once it returns.

# Architecture

Five cooperating components share one event broker:

	┌───────────┐   intents    ┌───────────┐
	│ Commander ├─────────────▶│  Queue    │ (durable, survives restart)
	└─────┬─────┘   offline    └─────┬─────┘
	      │ online                   │ drain on reconnect
	      ▼                          ▼
	┌───────────┐              ┌───────────┐
	│  Server   │◀─────────────┤ Replayer  │
	└───────────┘              └─────┬─────┘
	      ▲                          │ resource.synced
	      │ push/pull                ▼
	┌─────┴─────┐              ┌────────────┐
	│  Syncer   │              │ Reconciler │ (placeholder → real id)
	└───────────┘              └────────────┘

The Connectivity monitor polls the server's health endpoint and
publishes reachability transitions; the Replayer and Syncer both wake
on the offline-to-online edge.

The Commander applies intents directly when the server is reachable and
records them in the durable queue when it is not. The Replayer drains
the queue in insertion order; replay is safe because every server
handler it targets is idempotent. The Syncer replicates the canonical
check-in record in both directions with last-write-wins merging. The
Reconciler rewrites placeholder ids to server-assigned ids in the
artifact cache once a queued create is acknowledged.
*/
package agent
