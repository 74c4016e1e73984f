package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
)

// Document is a decoded snapshot plus the metadata Firestore keeps for it.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
}

// Codec maps T to and from its stored form. Zero fields fall back to Firestore's struct tags.
type Codec[T any] struct {
	Encode func(T) (any, error)
	Decode func(*firestore.DocumentSnapshot) (T, error)
}

// Collection is typed access to one top-level collection. Code running inside a transaction uses
// Ref, Encode and ReadTx so it shares the codec with the non-transactional helpers.
type Collection[T any] struct {
	provider *Provider
	name     string
	codec    Codec[T]
}

func NewCollection[T any](provider *Provider, name string, codec Codec[T]) *Collection[T] {
	if codec.Encode == nil {
		codec.Encode = func(v T) (any, error) { return v, nil }
	}
	if codec.Decode == nil {
		codec.Decode = func(snap *firestore.DocumentSnapshot) (T, error) {
			var v T
			err := snap.DataTo(&v)
			return v, err
		}
	}
	return &Collection[T]{provider: provider, name: strings.TrimSpace(name), codec: codec}
}

func (c *Collection[T]) Name() string { return c.name }

// Ref resolves id within the collection, dialling the client if needed.
func (c *Collection[T]) Ref(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(c.op("ref"), errors.New("document id is required"))
	}
	coll, err := c.collection(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

func (c *Collection[T]) collection(ctx context.Context) (*firestore.CollectionRef, error) {
	if c == nil || c.provider == nil {
		return nil, WrapError("firestore.collection", errors.New("provider is nil"))
	}
	if c.name == "" {
		return nil, WrapError("firestore.collection", errors.New("collection name is required"))
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.name), nil
}

func (c *Collection[T]) Encode(value T) (any, error) {
	payload, err := c.codec.Encode(value)
	if err != nil {
		return nil, fmt.Errorf("%s: encode: %w", c.name, err)
	}
	return payload, nil
}

func (c *Collection[T]) Decode(snap *firestore.DocumentSnapshot) (Document[T], error) {
	value, err := c.codec.Decode(snap)
	if err != nil {
		return Document[T]{}, fmt.Errorf("%s: decode %s: %w", c.name, snap.Ref.ID, err)
	}
	return Document[T]{ID: snap.Ref.ID, Data: value, CreateTime: snap.CreateTime, UpdateTime: snap.UpdateTime}, nil
}

func (c *Collection[T]) Get(ctx context.Context, id string) (Document[T], error) {
	ref, err := c.Ref(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(c.op("get"), err)
	}
	return c.Decode(snap)
}

// ReadTx reads id through tx, which registers the document for Firestore's conflict detection.
func (c *Collection[T]) ReadTx(ctx context.Context, tx *firestore.Transaction, id string) (*firestore.DocumentRef, Document[T], error) {
	ref, err := c.Ref(ctx, id)
	if err != nil {
		return nil, Document[T]{}, err
	}
	snap, err := tx.Get(ref)
	if err != nil {
		return ref, Document[T]{}, WrapError(c.op("get"), err)
	}
	doc, err := c.Decode(snap)
	return ref, doc, err
}

// Set upserts value and returns the commit time.
func (c *Collection[T]) Set(ctx context.Context, id string, value T) (time.Time, error) {
	ref, err := c.Ref(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	payload, err := c.Encode(value)
	if err != nil {
		return time.Time{}, err
	}
	res, err := ref.Set(ctx, payload)
	if err != nil {
		return time.Time{}, WrapError(c.op("set"), err)
	}
	return res.UpdateTime, nil
}

// Query runs the collection query shaped by build. A nil build reads the whole collection.
func (c *Collection[T]) Query(ctx context.Context, build func(firestore.Query) firestore.Query) ([]Document[T], error) {
	coll, err := c.collection(ctx)
	if err != nil {
		return nil, err
	}
	q := coll.Query
	if build != nil {
		q = build(q)
	}
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, WrapError(c.op("query"), err)
	}
	docs := make([]Document[T], 0, len(snaps))
	for _, snap := range snaps {
		doc, err := c.Decode(snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (c *Collection[T]) op(action string) string {
	if c == nil || c.name == "" {
		return "firestore." + action
	}
	return c.name + "." + action
}
