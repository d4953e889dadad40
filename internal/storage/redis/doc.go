// Package redis stores conversation state in Redis: the per-context message
// log lives in a list keyed `ctx:<id>` with a sliding expiry, and the pending
// action slot lives in a string keyed `pending_action:<id>` with an absolute
// expiry. Consuming a pending action uses GETDEL so that concurrent
// confirmations observe the proposal at most once.
package redis
