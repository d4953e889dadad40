package wallet

import (
	"net/http"

	xerrors "github.com/SunilRudraKumar/Easy/internal/errors"
)

// 钱包相关的错误码。
const (
	CodeChainFailure  xerrors.Code = "CHAIN_FAILURE"
	CodeWalletFailure xerrors.Code = "WALLET_FAILURE"
)

func init() {
	xerrors.Register(CodeChainFailure, xerrors.Attributes{
		Message:    "blockchain request failed",
		Severity:   xerrors.SeverityWarning,
		Retryable:  true,
		Alert:      true,
		HTTPStatus: http.StatusBadGateway,
	})
	xerrors.Register(CodeWalletFailure, xerrors.Attributes{
		Message:    "wallet key material is unavailable",
		Severity:   xerrors.SeverityCritical,
		Alert:      true,
		HTTPStatus: http.StatusInternalServerError,
	})
}
