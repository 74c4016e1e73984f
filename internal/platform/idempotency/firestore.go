package idempotency

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/crumbline/orders-api/internal/platform/firestore"
)

const defaultCollection = "idempotencyReplays"

type FirestoreOption func(*FirestoreStore)

func WithCollection(name string) FirestoreOption {
	return func(s *FirestoreStore) {
		if name != "" {
			s.collection = name
		}
	}
}

func WithMaxAttempts(attempts int) FirestoreOption {
	return func(s *FirestoreStore) {
		if attempts > 0 {
			s.attempts = attempts
		}
	}
}

// FirestoreStore keeps one document per scoped key, named by the key's hash. Reserve and
// SaveResponse are read-modify-write transactions, so two replicas never both claim a key.
type FirestoreStore struct {
	provider   *pfirestore.Provider
	records    *pfirestore.Collection[Record]
	collection string
	attempts   int
}

func NewFirestoreStore(provider *pfirestore.Provider, opts ...FirestoreOption) *FirestoreStore {
	s := &FirestoreStore{provider: provider, collection: defaultCollection, attempts: 5}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.records = pfirestore.NewCollection(provider, s.collection, pfirestore.Codec[Record]{
		Encode: func(r Record) (any, error) { return toDocument(r), nil },
		Decode: func(snap *firestore.DocumentSnapshot) (Record, error) {
			var doc recordDocument
			err := snap.DataTo(&doc)
			return doc.record(), err
		},
	})
	return s
}

func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	var out Reservation
	err := s.update(ctx, key, func(current *Record) (*Record, error) {
		res, claim, err := decide(current, key, fingerprint, now.UTC(), ttl)
		if err != nil {
			return nil, err
		}
		out = res
		if !claim {
			return nil, nil
		}
		return &res.Record, nil
	})
	return out, err
}

func (s *FirestoreStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	return s.update(ctx, key, func(current *Record) (*Record, error) {
		record, err := complete(current, key, fingerprint, resp, now.UTC(), ttl)
		if err != nil {
			return nil, err
		}
		return &record, nil
	})
}

// update runs fn on the stored record (nil when absent) inside a transaction and writes back
// whatever fn returns. A nil result leaves the document untouched.
func (s *FirestoreStore) update(ctx context.Context, key string, fn func(*Record) (*Record, error)) error {
	return s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, doc, err := s.records.ReadTx(ctx, tx, documentID(key))
		var current *Record
		switch {
		case err == nil:
			current = &doc.Data
		case !isNotFound(err):
			return err
		}

		next, err := fn(current)
		if err != nil || next == nil {
			return err
		}
		payload, err := s.records.Encode(*next)
		if err != nil {
			return err
		}
		return tx.Set(ref, payload)
	}, pfirestore.WithTxAttempts(s.attempts))
}

// CleanupExpired deletes up to limit expired records (100 when limit is not positive).
func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	expired, err := s.records.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("expiresAt", "<=", now.UTC()).Limit(limit)
	})
	if err != nil || len(expired) == 0 {
		return 0, err
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return 0, err
	}

	writer := client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(expired))
	for _, doc := range expired {
		job, err := writer.Delete(client.Collection(s.collection).Doc(doc.ID))
		if err != nil {
			writer.End()
			return 0, pfirestore.WrapError("idempotency.cleanup", err)
		}
		jobs = append(jobs, job)
	}
	writer.End()

	deleted := 0
	var errs []error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			errs = append(errs, err)
			continue
		}
		deleted++
	}
	return deleted, pfirestore.WrapError("idempotency.cleanup", errors.Join(errs...))
}

// Release deletes the reservation so the key can be retried. A missing document is not an error.
func (s *FirestoreStore) Release(ctx context.Context, key, _ string) error {
	ref, err := s.records.Ref(ctx, documentID(key))
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		if err = pfirestore.WrapError("idempotency.release", err); !isNotFound(err) {
			return err
		}
	}
	return nil
}

func isNotFound(err error) bool {
	var classified *pfirestore.Error
	return errors.As(err, &classified) && classified.IsNotFound()
}

type recordDocument struct {
	Key             string              `firestore:"key"`
	Fingerprint     string              `firestore:"fingerprint"`
	Status          string              `firestore:"status"`
	ResponseStatus  int                 `firestore:"responseStatus"`
	ResponseHeaders map[string][]string `firestore:"responseHeaders,omitempty"`
	ResponseBody    []byte              `firestore:"responseBody,omitempty"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	UpdatedAt       time.Time           `firestore:"updatedAt"`
	ExpiresAt       time.Time           `firestore:"expiresAt"`
}

func toDocument(r Record) recordDocument {
	return recordDocument{
		Key:             r.Key,
		Fingerprint:     r.Fingerprint,
		Status:          string(r.Status),
		ResponseStatus:  r.ResponseStatus,
		ResponseHeaders: r.ResponseHeaders,
		ResponseBody:    r.ResponseBody,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
		ExpiresAt:       r.ExpiresAt.UTC(),
	}
}

func (d recordDocument) record() Record {
	return Record{
		Key:             d.Key,
		Fingerprint:     d.Fingerprint,
		Status:          Status(d.Status),
		ResponseStatus:  d.ResponseStatus,
		ResponseHeaders: d.ResponseHeaders,
		ResponseBody:    d.ResponseBody,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
		ExpiresAt:       d.ExpiresAt,
	}
}
