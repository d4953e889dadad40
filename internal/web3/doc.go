// Package web3 holds chain connectivity for the wallet layer: cluster
// definitions loaded from YAML, the chain-agnostic Client contract and the
// Solana JSON-RPC implementation under web3/solana.
package web3
