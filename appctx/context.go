package appctx

import "context"

// ContextKey is the shared type for all context keys in this codebase.
// Keeping it in a tiny package avoids import cycles (config <-> utils).
type ContextKey string

func (c ContextKey) String() string { return string(c) }

var (
	ContextKeyCorrelationId = ContextKey("CorrelationId")

	// ContextKeyRequestSource marks where a ledger mutation came from ("http", "ledgerctl").
	ContextKeyRequestSource = ContextKey("RequestSource")

	// ContextKeyAllowLedgerRepair lets ops tooling bypass the ledger immutability guard.
	// Never set from request input.
	ContextKeyAllowLedgerRepair = ContextKey("AllowLedgerRepair")
)

func GetString(ctx context.Context, key ContextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok
}

func GetBool(ctx context.Context, key ContextKey) (bool, bool) {
	v, ok := ctx.Value(key).(bool)
	return v, ok
}

func Set(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}
