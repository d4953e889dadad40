package conversation

import (
	"net/http"

	xerrors "github.com/SunilRudraKumar/Easy/internal/errors"
)

// 会话协议相关的错误码。
const (
	CodeInvalidHistory     xerrors.Code = "INVALID_HISTORY"
	CodeModelFailure       xerrors.Code = "MODEL_FAILURE"
	CodeParseFailure       xerrors.Code = "PARSE_FAILURE"
	CodeMissingArguments   xerrors.Code = "MISSING_ARGUMENTS"
	CodeUnknownAction      xerrors.Code = "UNKNOWN_ACTION"
	CodeDispatchFailure    xerrors.Code = "DISPATCH_FAILURE"
	CodeConfirmationFailed xerrors.Code = "CONFIRMATION_FAILED"
)

func init() {
	xerrors.Register(CodeInvalidHistory, xerrors.Attributes{
		Message:    "conversation history must end with a user message",
		Severity:   xerrors.SeverityCritical,
		Alert:      true,
		HTTPStatus: http.StatusInternalServerError,
	})
	xerrors.Register(CodeModelFailure, xerrors.Attributes{
		Message:    "language model call failed",
		Severity:   xerrors.SeverityWarning,
		Retryable:  true,
		HTTPStatus: http.StatusBadGateway,
	})
	xerrors.Register(CodeParseFailure, xerrors.Attributes{
		Message:    "model output is not a valid action proposal",
		Severity:   xerrors.SeverityInfo,
		HTTPStatus: http.StatusUnprocessableEntity,
	})
	xerrors.Register(CodeMissingArguments, xerrors.Attributes{
		Message:    "required action arguments are missing",
		Severity:   xerrors.SeverityInfo,
		HTTPStatus: http.StatusBadRequest,
	})
	xerrors.Register(CodeUnknownAction, xerrors.Attributes{
		Message:    "unknown action",
		Severity:   xerrors.SeverityWarning,
		HTTPStatus: http.StatusBadRequest,
	})
	xerrors.Register(CodeDispatchFailure, xerrors.Attributes{
		Message:    "action handler failed",
		Severity:   xerrors.SeverityWarning,
		Alert:      true,
		HTTPStatus: http.StatusBadGateway,
	})
	xerrors.Register(CodeConfirmationFailed, xerrors.Attributes{
		Message:    "action confirmation failed",
		Severity:   xerrors.SeverityWarning,
		HTTPStatus: http.StatusForbidden,
	})
}
