// Package client is the HTTP client for the Aman server, used by the
// sync agent for both the alert REST surface and the replication
// protocol. Calls carry the bearer credential, run under a short
// per-call timeout, and surface failures as errdefs-coded errors so
// the replayer and orchestrator can classify outcomes without
// inspecting message text.
package client
