// Package types defines the shared data model for Aman: canonical
// check-in records, alerts, queued actions, cached artifacts and
// replication checkpoints. It has no dependencies on other Aman
// packages so every layer can exchange these values freely.
package types
