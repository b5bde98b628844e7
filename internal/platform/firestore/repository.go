package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Document is a decoded snapshot together with its server timestamps.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
}

// QueryBuilder narrows the collection query, e.g. with Where and OrderBy.
type QueryBuilder func(query firestore.Query) firestore.Query

// BaseRepository is typed access to one collection. Calls made with a context from
// Provider.RunInTx go through that transaction.
type BaseRepository[T any] struct {
	provider   *Provider
	collection string
}

func NewBaseRepository[T any](provider *Provider, collection string) *BaseRepository[T] {
	return &BaseRepository[T]{provider: provider, collection: strings.TrimSpace(collection)}
}

// docWrite is one mutation expressed for both the transactional and the direct path.
type docWrite struct {
	inTx   func(*firestore.Transaction, *firestore.DocumentRef) error
	direct func(context.Context, *firestore.DocumentRef) (*firestore.WriteResult, error)
}

func (r *BaseRepository[T]) write(ctx context.Context, action, id string, w docWrite) error {
	ref, err := r.doc(ctx, id)
	if err != nil {
		return err
	}
	if tx, ok := TransactionFromContext(ctx); ok {
		err = w.inTx(tx, ref)
	} else {
		_, err = w.direct(ctx, ref)
	}
	return WrapError(r.op(action), err)
}

// Set writes value, replacing any existing document.
func (r *BaseRepository[T]) Set(ctx context.Context, id string, value T) error {
	return r.write(ctx, "set", id, docWrite{
		inTx: func(tx *firestore.Transaction, ref *firestore.DocumentRef) error { return tx.Set(ref, value) },
		direct: func(ctx context.Context, ref *firestore.DocumentRef) (*firestore.WriteResult, error) {
			return ref.Set(ctx, value)
		},
	})
}

// Create fails with a conflict when the document exists.
func (r *BaseRepository[T]) Create(ctx context.Context, id string, value T) error {
	return r.write(ctx, "create", id, docWrite{
		inTx: func(tx *firestore.Transaction, ref *firestore.DocumentRef) error { return tx.Create(ref, value) },
		direct: func(ctx context.Context, ref *firestore.DocumentRef) (*firestore.WriteResult, error) {
			return ref.Create(ctx, value)
		},
	})
}

// Update applies field updates and fails with not-found for a missing document.
func (r *BaseRepository[T]) Update(ctx context.Context, id string, updates []firestore.Update) error {
	return r.write(ctx, "update", id, docWrite{
		inTx: func(tx *firestore.Transaction, ref *firestore.DocumentRef) error { return tx.Update(ref, updates) },
		direct: func(ctx context.Context, ref *firestore.DocumentRef) (*firestore.WriteResult, error) {
			return ref.Update(ctx, updates)
		},
	})
}

// Delete succeeds for a missing document.
func (r *BaseRepository[T]) Delete(ctx context.Context, id string) error {
	return r.write(ctx, "delete", id, docWrite{
		inTx: func(tx *firestore.Transaction, ref *firestore.DocumentRef) error { return tx.Delete(ref) },
		direct: func(ctx context.Context, ref *firestore.DocumentRef) (*firestore.WriteResult, error) {
			return ref.Delete(ctx)
		},
	})
}

func (r *BaseRepository[T]) Get(ctx context.Context, id string) (Document[T], error) {
	ref, err := r.doc(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}
	var snap *firestore.DocumentSnapshot
	if tx, ok := TransactionFromContext(ctx); ok {
		snap, err = tx.Get(ref)
	} else {
		snap, err = ref.Get(ctx)
	}
	if err != nil {
		return Document[T]{}, WrapError(r.op("get"), err)
	}
	return decode[T](snap)
}

// Query runs build against the collection and decodes every match.
func (r *BaseRepository[T]) Query(ctx context.Context, build QueryBuilder) ([]Document[T], error) {
	coll, err := r.coll(ctx)
	if err != nil {
		return nil, err
	}
	q := coll.Query
	if build != nil {
		q = build(q)
	}
	var it *firestore.DocumentIterator
	if tx, ok := TransactionFromContext(ctx); ok {
		it = tx.Documents(q)
	} else {
		it = q.Documents(ctx)
	}
	defer it.Stop()

	var out []Document[T]
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, WrapError(r.op("query"), err)
		}
		doc, err := decode[T](snap)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
}

// First returns the first match of build or a not-found error.
func (r *BaseRepository[T]) First(ctx context.Context, build QueryBuilder) (Document[T], error) {
	docs, err := r.Query(ctx, func(q firestore.Query) firestore.Query {
		if build != nil {
			q = build(q)
		}
		return q.Limit(1)
	})
	switch {
	case err != nil:
		return Document[T]{}, err
	case len(docs) == 0:
		return Document[T]{}, NotFound(r.op("first"))
	default:
		return docs[0], nil
	}
}

func decode[T any](snap *firestore.DocumentSnapshot) (Document[T], error) {
	doc := Document[T]{ID: snap.Ref.ID, CreateTime: snap.CreateTime, UpdateTime: snap.UpdateTime}
	if err := snap.DataTo(&doc.Data); err != nil {
		return Document[T]{}, fmt.Errorf("firestore: decode %s: %w", snap.Ref.Path, err)
	}
	return doc, nil
}

var (
	errNoProvider   = errors.New("firestore: provider is nil")
	errNoCollection = errors.New("firestore: collection name is required")
	errNoDocumentID = errors.New("firestore: document id is required")
)

func (r *BaseRepository[T]) coll(ctx context.Context) (*firestore.CollectionRef, error) {
	switch {
	case r == nil || r.provider == nil:
		return nil, WrapError(r.op("collection"), errNoProvider)
	case r.collection == "":
		return nil, WrapError(r.op("collection"), errNoCollection)
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(r.collection), nil
}

func (r *BaseRepository[T]) doc(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(r.op("document"), errNoDocumentID)
	}
	coll, err := r.coll(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

// op names the failing operation as collection.action for error messages.
func (r *BaseRepository[T]) op(action string) string {
	if r == nil || r.collection == "" {
		return "firestore." + action
	}
	return r.collection + "." + action
}
