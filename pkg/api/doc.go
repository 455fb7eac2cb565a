// Package api serves Aman's HTTP surface: the alert REST endpoints,
// the replication protocol routes mounted under /{collection}, and the
// unauthenticated health and metrics endpoints. All authenticated
// routes resolve the caller's user id through the auth middleware; the
// handlers translate errdefs codes to HTTP statuses and never leak
// another owner's records.
package api
