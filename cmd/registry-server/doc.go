// Package main (cmd/registry-server) serves the name registry over HTTP so
// workstations can reserve hostnames without holding spreadsheet or database
// credentials themselves.
//
// The server exposes the registry backend selected in the configuration
// (sheets or postgres) through the JSON API in package httpserver, together
// with liveness, readiness and drain endpoints and Prometheus metrics on a
// separate listener. Clients use the "http" registry backend pointing at it.
//
// Example usage:
//
//	registry-server --config ./config.yaml --listen-addr 0.0.0.0:8080 \
//	    --metrics-addr 127.0.0.1:8090 --migrate
package main
