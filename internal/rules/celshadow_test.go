package rules

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/fraudrules/fraudrules/internal/domain"
)

func shadowCfg(uuid, expr string) *domain.RuleConfig {
	return &domain.RuleConfig{
		UUID: uuid,
		Type: domain.RuleTypeComposite,
		Composite: &domain.CompositeRuleConfig{
			CELShadow: expr,
		},
	}
}

func TestCompiledCELShadow_CachesByUUID(t *testing.T) {
	cfg := shadowCfg("shadow-1", "amount > 100.0")
	p1, err := compiledCELShadow(cfg)
	if err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}
	p2, err := compiledCELShadow(cfg)
	if err != nil {
		t.Fatalf("unexpected compile error on second call: %v", err)
	}
	if p1 != p2 {
		t.Error("expected compiledCELShadow to return the cached program on a repeat call")
	}
}

func TestCompiledCELShadow_BadExpressionErrors(t *testing.T) {
	cfg := shadowCfg("shadow-2", "amount >>> not valid cel")
	_, err := compiledCELShadow(cfg)
	if err == nil {
		t.Error("expected a compile error for malformed CEL")
	}
}

func TestCheckCELShadow_LogsOnDivergence(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	cfg := shadowCfg("shadow-3", "amount > 100.0")

	txn := sampleTxn()
	txn.Amount = 5000

	// authoritative result is false while the shadow expression (amount
	// > 100.0) evaluates true, so a divergence warning is expected.
	checkCELShadow(log, cfg, txn, false)

	if !strings.Contains(buf.String(), "diverged") {
		t.Errorf("expected a divergence warning in the log, got: %s", buf.String())
	}
}

func TestCheckCELShadow_NoLogOnAgreement(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	cfg := shadowCfg("shadow-4", "amount > 100.0")

	txn := sampleTxn()
	txn.Amount = 5000

	checkCELShadow(log, cfg, txn, true)

	if strings.Contains(buf.String(), "diverged") {
		t.Errorf("did not expect a divergence warning when results agree, got: %s", buf.String())
	}
}
