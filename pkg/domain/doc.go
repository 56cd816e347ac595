/*
Package domain contains the core vocabulary shared by every Tether component.

It defines the error taxonomy that decides how a failure reaches the peer, the
well-known scope keys handlers can depend on, the sender capabilities exposed to
handlers, and the lifecycle hooks used for observability. This package is kept
pure and free of I/O so that the codec, the invoker and the session engine can
all depend on it without cycles.

# Error Classes

  - Validation: a frame that is not a well-formed request. Reported as an uncorrelated event.
  - Unknown endpoint: a well-formed request naming no registered endpoint. Reported as an uncorrelated event.
  - Recoverable: an application-declared failure (RecoverableError). Reported as a correlated response error.
  - Fault: anything else. Logged and reported as a generic internal-error event.
  - Disconnect: the transport went away. Never reported; triggers teardown.
*/
package domain
