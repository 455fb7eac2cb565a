/*
Package replicator exposes a replication-protocol-compatible facade
over the canonical store, so a stock replication client can synchronize
a single canonical record per owner without bespoke client code.

The backing store keeps only the latest value per key; there is no
multi-revision history. The facade therefore recomputes the revision
server-side on every accepted write instead of trusting a
client-submitted revision, which sidesteps true MVCC while staying
protocol-compatible. Consequences:

  - _revs_diff compares claimed revisions against the one stored
    revision; "missing" really means "stale".
  - _changes is a full re-scan using the record's modification time
    (unix milliseconds) as the sequence.
  - Two peers editing the same record while offline resolve by
    last write wins; no conflict is surfaced to either.

Writes are authorization-scoped: a caller may only write the record it
owns, and a batch write reports per-document outcomes in input order
without letting one failure abort the rest.
*/
package replicator
