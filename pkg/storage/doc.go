/*
Package storage provides the durable keyed store used on both sides of
the sync engine.

The server keeps canonical check-in records, alerts and replication
checkpoints in a BoltDB file; the client agent reuses the same store
implementation for its local mirror and artifact cache. Values are
JSON-encoded, one bucket per record family, and every write is an
upsert keyed by the record id: there is no multi-revision history,
only the latest value per key.

Missing records are reported as errdefs NOT_FOUND errors so callers can
discriminate "absent" from genuine storage failures without matching on
message strings.
*/
package storage
