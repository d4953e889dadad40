package solana

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeCluster answers the handful of JSON-RPC methods the client issues.
type fakeCluster struct {
	mu          sync.Mutex
	blockhash   string
	statuses    []string
	txErr       any
	sent        [][]byte
	methods     []string
	balance     uint64
	pollsBefore int
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.methods = append(f.methods, req.Method)

	var result any
	switch req.Method {
	case "getLatestBlockhash":
		result = map[string]any{"context": map[string]any{"slot": 1}, "value": map[string]any{"blockhash": f.blockhash, "lastValidBlockHeight": 100}}
	case "sendTransaction":
		var encoded string
		_ = json.Unmarshal(req.Params[0], &encoded)
		raw, _ := base64.StdEncoding.DecodeString(encoded)
		f.sent = append(f.sent, raw)
		result = base58.Encode(raw[1:65])
	case "getSignatureStatuses":
		if f.pollsBefore > 0 {
			f.pollsBefore--
			result = map[string]any{"value": []any{nil}}
			break
		}
		status := "processed"
		if len(f.statuses) > 0 {
			status, f.statuses = f.statuses[0], f.statuses[1:]
		}
		result = map[string]any{"value": []any{map[string]any{"slot": 7, "err": f.txErr, "confirmationStatus": status}}}
	case "getBalance":
		result = map[string]any{"context": map[string]any{"slot": 1}, "value": f.balance}
	default:
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "error": map[string]any{"code": -32601, "message": "method not found"}})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
}

func newTestClient(t *testing.T, cluster *fakeCluster, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(cluster)
	t.Cleanup(srv.Close)
	client, err := NewClient(context.Background(), Config{
		Name:            "localnet",
		RPCURL:          srv.URL,
		ExplorerCluster: "custom",
		ConfirmTimeout:  timeout,
		PollInterval:    5 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func testKeys(t *testing.T) (ed25519.PrivateKey, string) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, other, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return priv, base58.Encode(other.Public().(ed25519.PublicKey))
}

func testBlockhash() string {
	hash := make([]byte, 32)
	for i := range hash {
		hash[i] = byte(i + 1)
	}
	return base58.Encode(hash)
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient(context.Background(), Config{})
	require.Error(t, err)
}

func TestTransferSubmitsSignedTransactionAndWaits(t *testing.T) {
	cluster := &fakeCluster{blockhash: testBlockhash(), statuses: []string{"processed", "confirmed"}, pollsBefore: 1}
	client := newTestClient(t, cluster, time.Second)
	priv, to := testKeys(t)

	got, err := client.Transfer(context.Background(), priv, to, 1_500_000_000)
	require.NoError(t, err)
	require.NotEmpty(t, got.Signature)
	require.Equal(t, "https://explorer.solana.com/tx/"+got.Signature+"?cluster=custom", got.Explorer)

	cluster.mu.Lock()
	defer cluster.mu.Unlock()
	require.Equal(t, []string{"getLatestBlockhash", "sendTransaction", "getSignatureStatuses", "getSignatureStatuses", "getSignatureStatuses"}, cluster.methods)
	require.Len(t, cluster.sent, 1)

	raw := cluster.sent[0]
	require.Equal(t, byte(1), raw[0])
	sig, msg := raw[1:65], raw[65:]
	require.True(t, ed25519.Verify(priv.Public().(ed25519.PublicKey), msg, sig))
	require.Equal(t, base58.Encode(sig), got.Signature)

	require.Equal(t, []byte{1, 0, 1, 3}, msg[:4])
	recipient, err := base58.Decode(to)
	require.NoError(t, err)
	require.Equal(t, recipient, msg[4+32:4+64])
	data := msg[len(msg)-12:]
	require.Equal(t, uint32(2), binary.LittleEndian.Uint32(data[:4]))
	require.Equal(t, uint64(1_500_000_000), binary.LittleEndian.Uint64(data[4:]))
}

func TestTransferReportsOnChainError(t *testing.T) {
	cluster := &fakeCluster{blockhash: testBlockhash(), statuses: []string{"confirmed"}, txErr: map[string]any{"InstructionError": []any{0, "Custom"}}}
	client := newTestClient(t, cluster, time.Second)
	priv, to := testKeys(t)

	_, err := client.Transfer(context.Background(), priv, to, 10)
	require.ErrorContains(t, err, "交易执行失败")
}

func TestTransferTimesOutWaitingForConfirmation(t *testing.T) {
	cluster := &fakeCluster{blockhash: testBlockhash(), pollsBefore: 1 << 20}
	client := newTestClient(t, cluster, 50*time.Millisecond)
	priv, to := testKeys(t)

	_, err := client.Transfer(context.Background(), priv, to, 10)
	require.ErrorIs(t, err, ErrConfirmTimeout)
}

func TestTransferRejectsInvalidRecipient(t *testing.T) {
	cluster := &fakeCluster{blockhash: testBlockhash()}
	client := newTestClient(t, cluster, time.Second)
	priv, _ := testKeys(t)

	_, err := client.Transfer(context.Background(), priv, "not-base58-0OIl", 10)
	require.Error(t, err)
	cluster.mu.Lock()
	defer cluster.mu.Unlock()
	require.Empty(t, cluster.sent)
}

func TestBalance(t *testing.T) {
	cluster := &fakeCluster{balance: 42}
	client := newTestClient(t, cluster, time.Second)
	_, to := testKeys(t)

	got, err := client.Balance(context.Background(), to)
	require.NoError(t, err)
	require.Equal(t, uint64(42), got)

	_, err = client.Balance(context.Background(), "short")
	require.Error(t, err)
}

func TestClosedClientFails(t *testing.T) {
	client := newTestClient(t, &fakeCluster{}, time.Second)
	client.Close()
	_, to := testKeys(t)
	_, err := client.Balance(context.Background(), to)
	require.Error(t, err)
}
