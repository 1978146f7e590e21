// Package expr evaluates the shared expression language that underlies
// every rule kind: field access, literals, comparisons, logical
// combinators, and history-backed aggregates.
package expr

import (
	"fmt"

	"github.com/fraudrules/fraudrules/internal/domain"
)

// fieldValue extracts the typed value of a transaction field. Fields
// declared as enums in the data model (transaction_type, device_used,
// payment_channel) return their enum discriminant as an int32, matching
// how the evaluator treats enum-typed fields elsewhere in the pipeline.
// Free-text fields return their string content unchanged.
// FieldValue is the exported form of fieldValue, used by the Pattern
// rule's local-fold aggregate path when a history backend cannot push
// aggregates down to its own query engine.
func FieldValue(txn *domain.Transaction, f domain.FieldRef) (domain.Value, error) {
	return fieldValue(txn, f)
}

func fieldValue(txn *domain.Transaction, f domain.FieldRef) (domain.Value, error) {
	switch f {
	case domain.FieldTransactionID:
		return domain.StringValue(txn.TransactionID), nil
	case domain.FieldSenderAccount:
		return domain.StringValue(txn.SenderAccount), nil
	case domain.FieldReceiverAccount:
		return domain.StringValue(txn.ReceiverAccount), nil
	case domain.FieldAmount:
		return domain.FloatValue(txn.Amount), nil
	case domain.FieldTimestamp:
		return domain.StringValue(txn.Timestamp), nil
	case domain.FieldTransactionType:
		return domain.IntValue(transactionTypeDiscriminant(txn.TransactionType)), nil
	case domain.FieldMerchantCategory:
		return domain.StringValue(txn.MerchantCategory), nil
	case domain.FieldLocation:
		return domain.StringValue(txn.Location), nil
	case domain.FieldDeviceUsed:
		return domain.IntValue(deviceUsedDiscriminant(txn.DeviceUsed)), nil
	case domain.FieldPaymentChannel:
		return domain.IntValue(paymentChannelDiscriminant(txn.PaymentChannel)), nil
	case domain.FieldIPAddress:
		return domain.StringValue(txn.IPAddress), nil
	case domain.FieldDeviceHash:
		return domain.StringValue(txn.DeviceHash), nil
	default:
		return domain.Value{}, fmt.Errorf("%w: field %d", domain.ErrUnknownField, f)
	}
}

func transactionTypeDiscriminant(s string) int32 {
	switch s {
	case domain.TransactionTypeWithdrawal:
		return 0
	case domain.TransactionTypeDeposit:
		return 1
	case domain.TransactionTypeTransfer:
		return 2
	case domain.TransactionTypePayment:
		return 3
	default:
		return -1
	}
}

func deviceUsedDiscriminant(s string) int32 {
	switch s {
	case domain.DeviceUsedATM:
		return 0
	case domain.DeviceUsedMobile:
		return 1
	case domain.DeviceUsedPOS:
		return 2
	case domain.DeviceUsedWeb:
		return 3
	default:
		return -1
	}
}

func paymentChannelDiscriminant(s string) int32 {
	switch s {
	case domain.PaymentChannelACH:
		return 0
	case domain.PaymentChannelUPI:
		return 1
	case domain.PaymentChannelCard:
		return 2
	case domain.PaymentChannelWire:
		return 3
	default:
		return -1
	}
}
