// Package agent orchestrates one conversation turn: it classifies the user's
// latest message, resolves a pending action proposal when the user confirms
// or denies it, and otherwise consults the model gateway and records any new
// proposal for later confirmation.
package agent
