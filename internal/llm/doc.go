// Package llm defines the provider-neutral chat completion contract used by
// the model gateway. Provider adapters live in sub-packages.
package llm
