package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/SunilRudraKumar/Easy/internal/action"
	xerrors "github.com/SunilRudraKumar/Easy/internal/errors"
)

// SendSOLActionName 是转账动作在注册表中的名称。
const SendSOLActionName = "send_sol"

// SendSOLRequired 是转账动作的必填参数。
var SendSOLRequired = []string{"senderEmail", "password", "toAddress", "amount"}

// Sender 是 SendSOLAction 依赖的最小接口。
type Sender interface {
	SendSOL(ctx context.Context, req SendRequest) (Receipt, error)
}

// SendSOLAction 把 Sender 适配为 action.Handler。
func SendSOLAction(svc Sender) action.Handler {
	return func(ctx context.Context, args map[string]any) (action.Outcome, error) {
		amount, err := ParseAmount(args["amount"])
		if err != nil {
			return action.Outcome{}, err
		}
		receipt, err := svc.SendSOL(ctx, SendRequest{
			SenderEmail: stringArg(args["senderEmail"]),
			Password:    stringArg(args["password"]),
			ToAddress:   stringArg(args["toAddress"]),
			Amount:      amount,
		})
		if err != nil {
			return action.Outcome{}, err
		}
		return action.Outcome{Message: receipt.Message, Data: receipt}, nil
	}
}

// RegisterActions 在注册表中登记钱包动作。
func RegisterActions(reg *action.Registry, svc Sender) error {
	if err := reg.Register(SendSOLActionName, SendSOLRequired, SendSOLAction(svc)); err != nil {
		return err
	}
	return reg.Synonym(SendSOLActionName, "recipient", "toAddress")
}

func stringArg(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// ParseAmount 接受 JSON 数字或数字字符串。
func ParseAmount(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		return parseAmountString(t.String())
	case string:
		return parseAmountString(t)
	default:
		return 0, xerrors.New(xerrors.CodeInvalidArgument, "Amount must be a number")
	}
}

func parseAmountString(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, "Amount must be a number")
	}
	return f, nil
}
