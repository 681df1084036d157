// Package riptide bridges push-based data flows and bidirectional network
// connections.
//
// A live connection is exposed as a `Channel`: an inbound lazy sequence of
// received items paired with an `Outbound` sink accepting one or more data
// sources to write. The layer owns flush timing, read pausing under
// backpressure, and composable protocol layering, while the actual transport
// (TCP, QUIC, an in-process pipe, ...) stays behind the `Provider`
// capability set.
//
// ## How it works
//
// Construct a `Peer` with a `Provider`, a pair of codecs and options, then
// `Start` it with a handler. For every connection the provider yields, the
// peer hands a `Channel` to the handler. The handler consumes
// `Channel.Inbound()` and replies through `Channel.Outbound()`; the
// capacity-driven flow-control policy decides when reads pause and when
// pending writes are flushed.
//
// A single `Capacity` knob tunes both sides: `Unbounded` means flush after
// every write and never pause reads; a finite N batches up to N writes per
// flush and pauses inbound reads once N items have been dispatched to the
// handler without being consumed.
//
// Protocol layers are attached with `Preprocess`, which wraps a peer with a
// channel transformation instead of subclassing it. Wrapping composes
// linearly: the outermost peer delegates start/shutdown inward and reports
// the innermost peer's listen address.
//
// ## Design Principles
//
// The core never discovers a transport implicitly: the `Provider` is an
// explicit constructor argument. Errors cross the library boundary as
// return values only; a failed write surfaces through the `Send` call in
// progress, a failed bind through `Start`, and a per-connection failure
// terminates only that channel's inbound sequence, never the peer.
package riptide
