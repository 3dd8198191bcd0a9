package store

import (
	"context"

	apperrors "github.com/moneymapper/authcore/pkg/errors"
	"gorm.io/gorm"
)

type txKey struct{}

// Transactor opens database transactions. Stores in this package, and any
// caller that resolves its handle through Conn, join the transaction
// carried by the context they are given.
type Transactor struct {
	db *gorm.DB
}

func NewTransactor(db *gorm.DB) *Transactor {
	return &Transactor{db: db}
}

// InTx runs fn inside one transaction and commits when fn returns nil.
// A call made while a transaction is already open joins it.
func (t *Transactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	return apperrors.Internal("transaction failed", err)
}

// Conn returns the transaction open on ctx, or db when there is none.
func Conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}
