package rules

import (
	"log/slog"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/fraudrules/fraudrules/internal/domain"
)

// celEnv is the shared CEL environment for shadow-checking Composite
// rules' CELShadow expressions against the transaction fields they
// describe. Lazily built once; cel.Env construction is not cheap.
var (
	celEnvOnce sync.Once
	celEnv     *cel.Env
	celEnvErr  error

	celProgramsMu sync.RWMutex
	celPrograms   = map[string]cel.Program{}
)

func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("transaction_id", cel.StringType),
			cel.Variable("sender_account", cel.StringType),
			cel.Variable("receiver_account", cel.StringType),
			cel.Variable("amount", cel.DoubleType),
			cel.Variable("transaction_type", cel.StringType),
			cel.Variable("merchant_category", cel.StringType),
			cel.Variable("location", cel.StringType),
			cel.Variable("device_used", cel.StringType),
			cel.Variable("payment_channel", cel.StringType),
			cel.Variable("ip_address", cel.StringType),
			cel.Variable("device_hash", cel.StringType),
		)
	})
	return celEnv, celEnvErr
}

// checkCELShadow compiles (once, cached by rule UUID) and evaluates
// cfg.Composite.CELShadow against txn, logging a warning if its result
// diverges from the evaluator's authoritative result. Never returns an
// error: the shadow check is an observability aid, not part of the
// decision path.
func checkCELShadow(log *slog.Logger, cfg *domain.RuleConfig, txn *domain.Transaction, authoritative bool) {
	program, err := compiledCELShadow(cfg)
	if err != nil {
		log.Warn("cel shadow check failed to compile", "rule_uuid", cfg.UUID, "error", err)
		return
	}

	out, _, err := program.Eval(map[string]any{
		"transaction_id":    txn.TransactionID,
		"sender_account":    txn.SenderAccount,
		"receiver_account":  txn.ReceiverAccount,
		"amount":            txn.Amount,
		"transaction_type":  txn.TransactionType,
		"merchant_category": txn.MerchantCategory,
		"location":          txn.Location,
		"device_used":       txn.DeviceUsed,
		"payment_channel":   txn.PaymentChannel,
		"ip_address":        txn.IPAddress,
		"device_hash":       txn.DeviceHash,
	})
	if err != nil {
		log.Warn("cel shadow check evaluation error", "rule_uuid", cfg.UUID, "error", err)
		return
	}

	shadowResult, ok := out.Value().(bool)
	if !ok {
		log.Warn("cel shadow check did not produce a bool", "rule_uuid", cfg.UUID)
		return
	}

	if shadowResult != authoritative {
		log.Warn("cel shadow check diverged from evaluator result",
			"rule_uuid", cfg.UUID, "transaction_id", txn.TransactionID,
			"evaluator_result", authoritative, "cel_result", shadowResult)
	}
}

func compiledCELShadow(cfg *domain.RuleConfig) (cel.Program, error) {
	celProgramsMu.RLock()
	if p, ok := celPrograms[cfg.UUID]; ok {
		celProgramsMu.RUnlock()
		return p, nil
	}
	celProgramsMu.RUnlock()

	env, err := getCELEnv()
	if err != nil {
		return nil, err
	}

	ast, issues := env.Compile(cfg.Composite.CELShadow)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, err
	}

	celProgramsMu.Lock()
	celPrograms[cfg.UUID] = program
	celProgramsMu.Unlock()
	return program, nil
}
