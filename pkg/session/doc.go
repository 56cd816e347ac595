/*
Package session implements the per-connection session engine.

A Session walks one connection through Connecting → Active → Draining → Closed:

  - Connecting: handshake, build the connection scope, run the entry handler,
    send its value as an "init" event and then run its continuation.
  - Active: read frames sequentially; malformed frames produce a
    "validation-error" event, requests are dispatched to their endpoint on a
    goroutine of their own so the read loop never waits for a handler.
  - Draining: run the exit handler against the final scope, then force the
    release of every resource still open, such as an endpoint whose reply is
    still being written.
  - Closed: nothing else is sent.

The Manager owns the handler registry, the invoker, and the optional session
directory, and serves any number of sessions concurrently.
*/
package session
