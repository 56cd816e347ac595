/*
Package observability exports session engine activity as Prometheus metrics.

A Metrics value implements domain.LifecycleHooks, so it is wired with
session.WithLifecycleHooks(m.Hooks()) and served through promhttp.
*/
package observability
