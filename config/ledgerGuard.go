package config

import (
	"context"
	"errors"

	"github.com/sevacare/facility_backend/appctx"
	"gorm.io/gorm"
)

var (
	ErrPaymentEventImmutable = errors.New("payment events are append-only")
	ErrLedgerRowUndeletable  = errors.New("ledger rows cannot be deleted")
)

// LedgerGuardPlugin keeps the ledger tables append/recompute-only:
// - payment_events: no UPDATE, no DELETE
// - ledger_records, carry_forwards: no DELETE
//
// NOTE:
// - This does NOT apply to Raw/Exec SQL.
// - Ops tooling can bypass it with appctx.ContextKeyAllowLedgerRepair.
type LedgerGuardPlugin struct{}

func NewLedgerGuardPlugin() *LedgerGuardPlugin { return &LedgerGuardPlugin{} }

func (p *LedgerGuardPlugin) Name() string { return "ledger_guard" }

func (p *LedgerGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Update().Before("gorm:update").Register("ledger_guard:update", ledgerGuardUpdateCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("ledger_guard:delete", ledgerGuardDeleteCallback); err != nil {
		return err
	}
	return nil
}

var (
	appendOnlyTables = map[string]bool{
		"payment_events": true,
	}
	undeletableTables = map[string]bool{
		"payment_events": true,
		"ledger_records": true,
		"carry_forwards": true,
	}
)

func ledgerGuardUpdateCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil || allowLedgerRepair(db.Statement.Context) {
		return
	}
	if appendOnlyTables[statementTable(db)] {
		_ = db.AddError(ErrPaymentEventImmutable)
	}
}

func ledgerGuardDeleteCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil || allowLedgerRepair(db.Statement.Context) {
		return
	}
	if undeletableTables[statementTable(db)] {
		_ = db.AddError(ErrLedgerRowUndeletable)
	}
}

func statementTable(db *gorm.DB) string {
	if db.Statement.Table != "" {
		return db.Statement.Table
	}
	if db.Statement.Schema != nil {
		return db.Statement.Schema.Table
	}
	return ""
}

func allowLedgerRepair(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, ok := appctx.GetBool(ctx, appctx.ContextKeyAllowLedgerRepair)
	return ok && v
}
