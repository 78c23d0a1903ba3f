// Package engine implements the syncframe dispatch engine.
//
// The engine receives one external request at a time per Handle call,
// records it as a Requesting.request entry in a fresh action log, and
// evaluates the registered sync rules until a Requesting.respond entry for
// that request appears.
//
// ARCHITECTURE:
//
// Per-request dispatch:
// Each Handle call owns its action log, firing ledger and quota. Nothing
// mutable is shared between requests except the logical clock (atomic) and
// whatever state the concepts keep behind their own interfaces. Many
// requests may therefore be handled concurrently (see HandleAll).
//
// Pass structure:
//  1. Snapshot the log.
//  2. For every rule, in registration order: match the when chain against
//     the snapshot (frames.MatchLog), drop when-matches already claimed in
//     the ledger, run the where steps, then invoke the then actions for each
//     surviving frame, awaiting each one and appending its completion.
//  3. Stop if a respond entry for the request appeared, if the pass
//     appended nothing (fixed point, NO_RESPONSE), or if the pass/step
//     budget or the request context ran out (EXHAUSTED, TIMEOUT).
//
// Failure handling:
// Lookup and where failures (errors or panics) are logged and counted and
// yield no frames for the affected rule; concept failures are appended as
// error-shaped entries ({"error": "..."}) that other rules can match. None
// of them abort the pass.
package engine
