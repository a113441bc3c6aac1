// Package pglue is a client library for PostgreSQL that speaks the v3
// frontend/backend wire protocol directly over TCP or Unix-domain
// sockets, bypassing database/sql entirely. It supports parameterized
// queries with injection-safe `$N` interpolation, extended-query
// caching with pipelining, simple multi-statement queries, chunked
// result streaming, COPY IN/OUT, nested transactions via SAVEPOINTs,
// LISTEN/NOTIFY surviving reconnect, SCRAM-SHA-256 authentication, and
// a connection pool.
//
// A single connection is a Wire; Connect dials one. A Pool manages many
// wires behind borrow/release semantics. Both expose Query, which
// builds a lazy, re-runnable row stream: Query(frag).Chunked(100).Each(...)
// or Query(frag).Collect(ctx).
package pglue
