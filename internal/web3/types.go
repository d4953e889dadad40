package web3

import (
	"context"
	"crypto/ed25519"
	"net/url"
	"strings"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// Transfer describes a confirmed on-chain transfer.
type Transfer struct {
	Signature string
	Explorer  string
}

// Client defines the operations the wallet layer needs from a cluster.
type Client interface {
	Cluster() string
	Balance(ctx context.Context, address string) (uint64, error)
	Transfer(ctx context.Context, from ed25519.PrivateKey, to string, lamports uint64) (Transfer, error)
	Close()
}

// ExplorerURL builds the Solana explorer link for a transaction signature.
// An empty cluster links to mainnet.
func ExplorerURL(signature, cluster string) string {
	link := "https://explorer.solana.com/tx/" + url.PathEscape(signature)
	if cluster = strings.TrimSpace(cluster); cluster != "" {
		link += "?cluster=" + url.QueryEscape(cluster)
	}
	return link
}
