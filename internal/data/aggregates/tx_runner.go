package aggregates

import (
	"context"
	"time"

	"gorm.io/gorm"

	domainagg "github.com/yungbote/progression-engine/internal/domain/aggregates"
	"github.com/yungbote/progression-engine/internal/pkg/dbctx"
)

// TxRunner owns the transaction boundary of a progression write.
type TxRunner interface {
	InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error
}

type gormTxRunner struct {
	db      *gorm.DB
	timeout time.Duration
}

// NewGormTxRunner runs writes in GORM transactions, each capped at timeout
// when timeout > 0.
func NewGormTxRunner(db *gorm.DB, timeout time.Duration) TxRunner {
	return &gormTxRunner{db: db, timeout: timeout}
}

func (r *gormTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if fn == nil {
		return nil
	}
	if r == nil || r.db == nil {
		return domainagg.NewError(domainagg.CodeInternal, "progression.tx", "transaction runner has nil db", nil)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: ctx, Tx: tx})
	})
}
