package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/SunilRudraKumar/Easy/internal/agent"
	"github.com/SunilRudraKumar/Easy/internal/auth"
	xerrors "github.com/SunilRudraKumar/Easy/internal/errors"
	"github.com/SunilRudraKumar/Easy/internal/wallet"
)

type errorBody struct {
	Error string `json:"error"`
}

type accountRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sendRequest struct {
	SenderEmail string `json:"senderEmail"`
	Password    string `json:"password"`
	ToAddress   string `json:"toAddress"`
	Amount      any    `json:"amount"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req agent.TurnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid payload: contextId and messages required."})
		return
	}
	if req.UserID == "" {
		req.UserID = auth.UserIDFromContext(r.Context())
	}
	resp, err := s.turns.HandleTurn(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Email and password are required"})
		return
	}
	created, err := s.wallets.CreateAccount(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	registered, err := s.wallets.RegisterWallet(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registered)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request body"})
		return
	}
	amount, err := wallet.ParseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	receipt, err := s.wallets.SendSOL(r.Context(), wallet.SendRequest{
		SenderEmail: req.SenderEmail,
		Password:    req.Password,
		ToAddress:   req.ToAddress,
		Amount:      amount,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

const retryAfterSeconds = "1"

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	return nil
}

// writeError 按错误码映射状态。存储类错误只返回状态文本，不暴露内部细节。
// 可重试的服务端错误附带 Retry-After。
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := xerrors.HTTPStatus(err)
	message := http.StatusText(status)
	if e, ok := xerrors.From(err); ok {
		switch e.Code() {
		case xerrors.CodeStorageFailure, xerrors.CodeUnknown:
		default:
			message = e.Message()
		}
	}
	if status >= http.StatusInternalServerError && xerrors.RetryableError(err) {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	xerrors.Log(r.Context(), s.log, "请求处理失败", err,
		slog.String("path", r.URL.Path), slog.Int("status", status))
	writeJSON(w, status, errorBody{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
