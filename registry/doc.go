// Package registry implements the shared name registry that hands out
// per-domain sequence numbers and tracks each machine's join status.
//
// Three backends implement interfaces.NameRegistry:
//
//   - TableRegistry over a Table, with SheetsTable (a Google Sheets
//     worksheet) as the production table and MemoryTable for tests
//   - PostgresRegistry, a relational table with a UNIQUE (domain, sequence)
//     constraint and goose migrations
//   - HTTPClient, talking to the registry service in package httpserver
//
// # Concurrency
//
// Machines reserve names concurrently and nothing locks the table. A
// TableRegistry appends optimistically and then re-reads: the earliest live
// row holding a sequence owns it, and a loser marks its own row Superseded
// and returns interfaces.ErrReservationConflict. Postgres reports the same
// error on a unique violation. Retrying turns both into bounded, jittered
// retries, so two reservations never yield the same sequence and every
// winning sequence is greater than all prior sequences of its domain.
//
// # Errors
//
// ErrRegistryUnavailable and ErrReservationConflict are retryable
// (IsRetryable). ErrRowNotFound, ErrPermissionDenied, ErrUnknownDomain and
// hostname validation errors stop the retry loop immediately.
package registry
