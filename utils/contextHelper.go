package utils

import (
	"context"

	"github.com/sevacare/facility_backend/appctx"
)

var (
	ContextKeyCorrelationId     = appctx.ContextKeyCorrelationId
	ContextKeyRequestSource     = appctx.ContextKeyRequestSource
	ContextKeyAllowLedgerRepair = appctx.ContextKeyAllowLedgerRepair
)

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func GetRequestSourceFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyRequestSource)
}

func SetRequestSourceInContext(ctx context.Context, source string) context.Context {
	return appctx.Set(ctx, ContextKeyRequestSource, source)
}

// SetAllowLedgerRepairInContext lifts the ledger immutability guard for queries run with ctx.
// Only ops tooling sets it.
func SetAllowLedgerRepairInContext(ctx context.Context, allow bool) context.Context {
	return appctx.Set(ctx, ContextKeyAllowLedgerRepair, allow)
}

// RequestSourceOrDefault returns the request source stamped on ctx, or "internal".
func RequestSourceOrDefault(ctx context.Context) string {
	if src, ok := GetRequestSourceFromContext(ctx); ok && src != "" {
		return src
	}
	return "internal"
}
