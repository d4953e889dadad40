package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/SunilRudraKumar/Easy/sdk/go/easymcp"
)

// stubServer imitates the confirm-before-execute dialogue of /mcp/chat.
func stubServer() http.Handler {
	var (
		mu      sync.Mutex
		pending = map[string]bool{}
	)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /mcp/chat", func(w http.ResponseWriter, r *http.Request) {
		var req easymcp.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Invalid payload: contextId and messages required."})
			return
		}
		last := strings.ToLower(strings.TrimSpace(req.Messages[len(req.Messages)-1].Content))

		mu.Lock()
		defer mu.Unlock()
		resp := easymcp.ChatResponse{ContextID: req.ContextID}
		switch {
		case last == "yes" && pending[req.ContextID]:
			delete(pending, req.ContextID)
			resp.Reply = "✅ Sent 0.1 SOL to 9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
		default:
			pending[req.ContextID] = true
			resp.Reply = "Okay, I have the details to send 0.1 SOL to 9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin using the email demo@example.com. Shall I proceed? (Reply yes/no)"
			resp.NeedsConfirmation = true
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	return mux
}

func main() {
	srv := httptest.NewServer(stubServer())
	defer srv.Close()

	client, err := easymcp.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Say(ctx, "demo", "send 0.1 SOL to 9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin from demo@example.com, password hunter2")
	if err != nil {
		panic(err)
	}
	fmt.Printf("assistant: %s (needs confirmation=%v)\n", resp.Reply, resp.NeedsConfirmation)

	if resp.NeedsConfirmation {
		resp, err = client.Say(ctx, "demo", "yes")
		if err != nil {
			panic(err)
		}
		fmt.Printf("assistant: %s\n", resp.Reply)
	}
}
