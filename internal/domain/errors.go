package domain

import "errors"

// Error kinds from the error-handling table. All are sentinel errors,
// inspected with errors.Is; wrapping callers attach context with
// fmt.Errorf("%w: ...").
var (
	// ErrConfiguration covers a rule factory that cannot construct a
	// rule because its declared variant body is missing or malformed.
	// Non-retryable; yields an ERROR result, never crashes the worker.
	ErrConfiguration = errors.New("configuration error")

	// ErrTypeMismatch covers an evaluator comparison between
	// incompatible operand types.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrUnknownField covers a Field expression naming a field the
	// evaluator does not recognize.
	ErrUnknownField = errors.New("unknown field")

	// ErrUnknownOperator covers a comparison or logical node using an
	// operator not valid for its operand types.
	ErrUnknownOperator = errors.New("unknown operator")

	// ErrMalformedExpression covers a structurally invalid expression
	// tree (e.g. NOT with other than one operand).
	ErrMalformedExpression = errors.New("malformed expression")

	// ErrAggregateOutsideContext covers an Aggregate node evaluated
	// outside a pattern rule's AggregateContext.
	ErrAggregateOutsideContext = errors.New("aggregate evaluated outside aggregate context")

	// ErrModelUnavailable covers an ML scorer invoked against a model
	// that failed to load or was never loaded.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrStorageUnavailable covers a history-store backend that could
	// not service a request after its internal bounded retries.
	// Retryable.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrSerialization covers a RuleRequest/RuleResult that failed to
	// encode or decode.
	ErrSerialization = errors.New("serialization error")

	// ErrBrokerUnavailable covers a broker-consume failure. Fatal for
	// the worker; the supervisor is expected to restart it.
	ErrBrokerUnavailable = errors.New("broker unavailable")
)
