// Package http implements the HTTP transport layer of the synchronization
// service.
//
// It exposes route wiring, request handlers, and middleware used by the REST
// API. Cross-cutting concerns such as authentication, access logging, and
// per-user rate limiting are handled in this package before requests are
// delegated to the service layer.
package http
