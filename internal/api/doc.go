// Package api exposes the HTTP interface: the conversational turn endpoint,
// wallet account routes, the direct transfer route, health and metrics.
package api
