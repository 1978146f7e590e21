package domain

// RuleType discriminates the variant body carried by a RuleConfig.
type RuleType int

const (
	RuleTypeThreshold RuleType = iota
	RuleTypePattern
	RuleTypeML
	RuleTypeComposite
)

func (t RuleType) String() string {
	switch t {
	case RuleTypeThreshold:
		return "THRESHOLD"
	case RuleTypePattern:
		return "PATTERN"
	case RuleTypeML:
		return "ML"
	case RuleTypeComposite:
		return "COMPOSITE"
	default:
		return "UNKNOWN"
	}
}

// RuleConfig is the polymorphic rule configuration, modeled as a tagged
// union: exactly one of Threshold/Pattern/ML/Composite is populated,
// selected by Type.
type RuleConfig struct {
	UUID       string `json:"uuid"`
	Name       string `json:"name"`
	IsCritical bool   `json:"is_critical"`
	Type       RuleType

	Threshold *ThresholdRuleConfig `json:"threshold_rule,omitempty"`
	Pattern   *PatternRuleConfig   `json:"pattern_rule,omitempty"`
	ML        *MLRuleConfig        `json:"ml_rule,omitempty"`
	Composite *CompositeRuleConfig `json:"composite_rule,omitempty"`
}

// ThresholdRuleConfig wraps a single comparison expression.
type ThresholdRuleConfig struct {
	Expression *Expression `json:"expression"`
}

// PatternRuleConfig wraps a boolean expression plus the window bounds
// used by its aggregate subexpressions.
type PatternRuleConfig struct {
	Expression    *Expression `json:"expression"`
	MaxDeltaTime  *int64      `json:"max_delta_time,omitempty"` // seconds
	MaxCount      *int        `json:"max_count,omitempty"`
}

// MLRuleConfig names the model artifact and the score cutoff.
type MLRuleConfig struct {
	ModelUUID  string  `json:"model_uuid"`
	LowerBound float64 `json:"lower_bound"`
}

// CompositeRuleConfig wraps a boolean expression with no aggregates.
// CELShadow is an optional non-authoritative CEL restatement of the
// same predicate, cross-checked for observability only.
type CompositeRuleConfig struct {
	Expression *Expression `json:"expression"`
	CELShadow  string      `json:"cel_shadow,omitempty"`
}

// Window carries the optional bounds a pattern rule's aggregate
// subexpressions are evaluated against.
type Window struct {
	MaxDeltaTime *int64 // seconds, relative to the current transaction's timestamp
	MaxCount     *int   // hard cap on considered rows, most recent first
}

// RuleResult classification statuses.
const (
	StatusNotFraud = "NOT_FRAUD"
	StatusFraud    = "FRAUD"
	StatusCritical = "CRITICAL"
	StatusError    = "ERROR"
)

// RuleRequest is one unit of dispatch work: (profile, rule, transaction).
type RuleRequest struct {
	ProfileUUID    string      `json:"profile_uuid"`
	ProfileName    string      `json:"profile_name"`
	Rule           *RuleConfig `json:"rule"`
	Transaction    Transaction `json:"transaction"`
	Number         int         `json:"number"`
	TotalRuleCount int         `json:"total_rule_count"`
}

// Key returns the messaging key for a RuleRequest: transaction_id ++ profile_uuid.
func (r *RuleRequest) Key() string {
	return r.Transaction.TransactionID + r.ProfileUUID
}

// RuleResult is the output of evaluating one RuleRequest.
type RuleResult struct {
	ProfileUUID   string `json:"profile_uuid"`
	ProfileName   string `json:"profile_name"`
	ConfigUUID    string `json:"config_uuid"`
	ConfigName    string `json:"config_name"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Description   string `json:"description"`
}

// Key returns the messaging key for a RuleResult: transaction_id.
func (r *RuleResult) Key() string {
	return r.TransactionID
}
