// Package http carries the HTTP transport layer: thin chi handlers that
// decode requests, call the services and render responses. Handlers own
// no business logic; failures from the service layer are mapped onto the
// API error contract in one place.
package http
