// Package easymcp is a small Go client for the EasyMCP HTTP API.
package easymcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
// Transfers wait for on-chain confirmation, so it is longer than a plain API call.
const DefaultHTTPTimeout = 90 * time.Second

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the payload of POST /mcp/chat.
type ChatRequest struct {
	ContextID string    `json:"contextId"`
	Messages  []Message `json:"messages"`
	UserID    string    `json:"userId,omitempty"`
}

// ChatResponse is the reply to a chat turn. NeedsConfirmation is set when the
// assistant has proposed an action and waits for "yes" or "no".
type ChatResponse struct {
	ContextID         string          `json:"contextId"`
	Reply             string          `json:"reply"`
	NeedsConfirmation bool            `json:"needsConfirmation,omitempty"`
	Data              json.RawMessage `json:"data,omitempty"`
}

// Account is returned by CreateAccount.
type Account struct {
	Message   string `json:"message"`
	UserID    string `json:"userId"`
	PublicKey string `json:"publicKey"`
	Mnemonic  string `json:"mnemonic"`
}

// Wallet is returned by RegisterWallet.
type Wallet struct {
	Message   string `json:"message"`
	UserID    string `json:"userId"`
	Mnemonic  string `json:"mnemonic"`
	PublicKey string `json:"publicKey"`
	SecretKey string `json:"secretKey"`
}

// SendRequest is the payload of POST /transactions/send.
type SendRequest struct {
	SenderEmail string  `json:"senderEmail"`
	Password    string  `json:"password"`
	ToAddress   string  `json:"toAddress"`
	Amount      float64 `json:"amount"`
}

// Receipt describes a confirmed transfer.
type Receipt struct {
	Message  string `json:"message"`
	TxHash   string `json:"txHash"`
	Explorer string `json:"explorer"`
}

// APIError represents a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("easymcp api error (%d): %s", e.StatusCode, e.Message)
}

// Client wraps the HTTP interactions with the EasyMCP API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// NewClient instantiates a client. When httpClient is nil, a default client
// with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Chat sends one conversational turn.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	var resp ChatResponse
	if err := c.post(ctx, "/mcp/chat", req, &resp); err != nil {
		return ChatResponse{}, err
	}
	return resp, nil
}

// Say is a shorthand for a single user message in an existing context.
func (c *Client) Say(ctx context.Context, contextID, content string) (ChatResponse, error) {
	return c.Chat(ctx, ChatRequest{
		ContextID: contextID,
		Messages:  []Message{{Role: RoleUser, Content: content}},
	})
}

// CreateAccount creates a custodial wallet protected by email and password.
func (c *Client) CreateAccount(ctx context.Context, email, password string) (Account, error) {
	var acc Account
	payload := map[string]string{"email": email, "password": password}
	if err := c.post(ctx, "/users/create-account", payload, &acc); err != nil {
		return Account{}, err
	}
	return acc, nil
}

// RegisterWallet creates a credential-less wallet and returns its secret key.
func (c *Client) RegisterWallet(ctx context.Context) (Wallet, error) {
	var w Wallet
	if err := c.post(ctx, "/users/register", struct{}{}, &w); err != nil {
		return Wallet{}, err
	}
	return w, nil
}

// SendSOL performs a direct transfer without the confirmation dialogue.
func (c *Client) SendSOL(ctx context.Context, req SendRequest) (Receipt, error) {
	var r Receipt
	if err := c.post(ctx, "/transactions/send", req, &r); err != nil {
		return Receipt{}, err
	}
	return r, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
