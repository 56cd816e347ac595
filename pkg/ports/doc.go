/*
Package ports defines the driven ports (interfaces) for the Tether session engine.

These interfaces decouple the engine from the concrete wire it runs on and from
where live sessions are advertised, so the same engine serves WebSocket peers,
in-memory test peers, and any other framed transport.

# Key Interfaces

  - Transport: One accepted connection: handshake, lazy inbound frames, outbound send, metadata.
  - Metadata: Headers, cookies, query and path parameters captured at handshake.
  - SessionDirectory: Advertises live sessions (e.g., in memory or in Redis).
*/
package ports
