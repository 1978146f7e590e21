package history

import (
	"testing"

	"github.com/fraudrules/fraudrules/internal/domain"
)

func TestFoldAggregate_CountIgnoresOperand(t *testing.T) {
	rows := []*domain.Transaction{{Amount: 10}, {Amount: 20}, {Amount: 30}}
	got, err := foldAggregate(domain.AggCount, domain.FieldAmount, rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 3 {
		t.Errorf("COUNT = %v, want 3", got)
	}
}

func TestFoldAggregate_SumOverAmount(t *testing.T) {
	rows := []*domain.Transaction{{Amount: 10}, {Amount: 20}, {Amount: 30}}
	got, err := foldAggregate(domain.AggSum, domain.FieldAmount, rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 60 {
		t.Errorf("SUM = %v, want 60", got)
	}
}

func TestFoldAggregate_CountDistinctOverStringField(t *testing.T) {
	rows := []*domain.Transaction{
		{Location: "US"},
		{Location: "US"},
		{Location: "CA"},
	}
	got, err := foldAggregate(domain.AggCountDistinct, domain.FieldLocation, rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 2 {
		t.Errorf("COUNT_DISTINCT = %v, want 2", got)
	}
}

func TestFoldAggregate_EmptySetIsZero(t *testing.T) {
	got, err := foldAggregate(domain.AggSum, domain.FieldAmount, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0 {
		t.Errorf("SUM over empty set = %v, want 0", got)
	}
}

func TestFoldAggregate_UnaggregatableFieldErrors(t *testing.T) {
	_, err := foldAggregate(domain.AggSum, domain.FieldTimestamp, []*domain.Transaction{{}})
	if err == nil {
		t.Error("expected an error aggregating over the non-numeric, non-enumerable timestamp field")
	}
}

func TestDecodeMembers_SortsDescendingAndSkipsMalformed(t *testing.T) {
	members := []string{
		`{"transaction_id":"a","timestamp":"100"}`,
		`not json`,
		`{"transaction_id":"b","timestamp":"300"}`,
		`{"transaction_id":"c","timestamp":"200"}`,
	}
	got := decodeMembers(members)
	if len(got) != 3 {
		t.Fatalf("expected 3 decoded rows, got %d", len(got))
	}
	if got[0].TransactionID != "b" || got[1].TransactionID != "c" || got[2].TransactionID != "a" {
		t.Errorf("expected descending timestamp order b,c,a, got %s,%s,%s",
			got[0].TransactionID, got[1].TransactionID, got[2].TransactionID)
	}
}
