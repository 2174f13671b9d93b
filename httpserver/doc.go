/*
Package httpserver implements the registry service: an HTTP front for a
NameRegistry so that workstations reserve names through one service
instead of talking to the backing store directly.

The server resolves hostname templates from its own configuration, so every
client renders names the same way, and it owns the store credentials
(database URL or spreadsheet service account).

API Endpoints:

  - POST /api/v1/domains/{domain}/reservations: reserve the next sequence
  - POST /api/v1/domains/{domain}/reservations/{sequence}/joined: mark a row Joined
  - GET /livez: liveness check
  - GET /readyz: readiness check
  - GET /drain: stop accepting registry calls (503) while draining
  - GET /undrain: resume

Request and error bodies are defined in package api. Prometheus metrics are
served on a separate listener when MetricsAddr is set, and pprof is mounted
under /debug when EnablePprof is set.
*/
package httpserver
