package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

const (
	txMaxAttempts = 5
	// txTimeout caps a transaction including its retries unless the caller's deadline is sooner.
	txTimeout = 15 * time.Second
)

var errNilClient = errors.New("firestore: client is nil")

type txKey struct{}

// WithTransaction binds tx to ctx so repository calls made with ctx join it.
func WithTransaction(ctx context.Context, tx *firestore.Transaction) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func TransactionFromContext(ctx context.Context) (*firestore.Transaction, bool) {
	if ctx == nil {
		return nil, false
	}
	tx, _ := ctx.Value(txKey{}).(*firestore.Transaction)
	return tx, tx != nil
}

// TxFunc is the body of a transaction. Firestore may invoke it more than once.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// TxOption is passed through to the client, e.g. firestore.ReadOnly.
type TxOption = firestore.TransactionOption

// RunTransaction runs fn with bounded retries and a timeout. Options given by the caller
// are applied after the defaults and win.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc, opts ...TxOption) error {
	if client == nil {
		return WrapError("transaction", errNilClient)
	}
	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > txTimeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, txTimeout)
		defer cancel()
	}
	opts = append([]TxOption{firestore.MaxAttempts(txMaxAttempts)}, opts...)
	return WrapError("transaction", client.RunTransaction(ctx, fn, opts...))
}
