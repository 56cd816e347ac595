/*
Package inject resolves handler parameters from a connection scope.

A handler is any Go function. Its signature is captured once with Scan and
its parameters are bound by type on every call:

  - context.Context: the invocation context.
  - *scope.Scope: the connection scope (request view for endpoints).
  - domain.SendEvent, domain.SendError: the connection's sender capabilities.
  - http.Header, url.Values, Cookies, PathParams: handshake metadata.
  - RequestData, RequestID, SessionID: request and session identifiers.
  - ports.Transport: the raw transport handle.
  - *Stack: the invocation's resource stack, to defer custom cleanup.
  - Any type with a registered provider (Container.Provide).
  - Any other struct, map or slice type (or pointer to one): request data
    decoded into it. Types implementing Validate() error are validated.

Providers may open resources: a provider returning (T, func(), error) has its
cleanup pushed on the invocation's Stack, which is unwound in reverse order.
*/
package inject
