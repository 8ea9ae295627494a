package utils

import (
	"context"
	"testing"

	"github.com/sevacare/facility_backend/appctx"
)

func TestRequestSourceOrDefault(t *testing.T) {
	if got := RequestSourceOrDefault(context.Background()); got != "internal" {
		t.Fatalf("default source = %q", got)
	}
	ctx := SetRequestSourceInContext(context.Background(), "ledgerctl")
	if got := RequestSourceOrDefault(ctx); got != "ledgerctl" {
		t.Fatalf("source = %q", got)
	}
}

func TestSetAllowLedgerRepairInContext(t *testing.T) {
	if _, ok := appctx.GetBool(context.Background(), ContextKeyAllowLedgerRepair); ok {
		t.Fatalf("repair flag should be unset by default")
	}
	ctx := SetAllowLedgerRepairInContext(context.Background(), true)
	if v, ok := appctx.GetBool(ctx, ContextKeyAllowLedgerRepair); !ok || !v {
		t.Fatalf("repair flag = %v, %v", v, ok)
	}
}
