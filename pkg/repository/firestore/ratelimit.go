package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/guildops/tierkeeper/pkg/domain/interfaces"
	"github.com/guildops/tierkeeper/pkg/domain/model"
	"github.com/guildops/tierkeeper/pkg/domain/types"
)

const rateLimitsCollection = "rate_limits"

type rateLimitRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

var _ interfaces.RateLimitRepository = &rateLimitRepository{}

func newRateLimitRepository(client *firestore.Client) *rateLimitRepository {
	return &rateLimitRepository{client: client}
}

// rateLimitDoc is the Firestore persistence model, keyed "<user>:<action>"
type rateLimitDoc struct {
	UserID       string    `firestore:"user_id"`
	Action       string    `firestore:"action"`
	AttemptCount int       `firestore:"attempt_count"`
	WindowStart  time.Time `firestore:"window_start"`
}

func (r *rateLimitRepository) collection() *firestore.CollectionRef {
	return collection(r.client, r.collectionPrefix, rateLimitsCollection)
}

func rateLimitDocID(userID types.UserID, action types.RateAction) string {
	return string(userID) + ":" + string(action)
}

func fromRateLimitDoc(doc *rateLimitDoc) *model.RateLimitRecord {
	return &model.RateLimitRecord{
		UserID:       types.UserID(doc.UserID),
		Action:       types.RateAction(doc.Action),
		AttemptCount: doc.AttemptCount,
		WindowStart:  doc.WindowStart,
	}
}

func (r *rateLimitRepository) Get(ctx context.Context, userID types.UserID, action types.RateAction) (*model.RateLimitRecord, error) {
	snap, err := r.collection().Doc(rateLimitDocID(userID, action)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to get rate limit record",
			goerr.V("userID", userID), goerr.V("action", action))
	}

	var doc rateLimitDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode rate limit record")
	}
	return fromRateLimitDoc(&doc), nil
}

// Increment is an atomic upsert-with-increment. A transaction guards
// against concurrent first attempts for the same key.
func (r *rateLimitRepository) Increment(ctx context.Context, userID types.UserID, action types.RateAction, now time.Time, window time.Duration) (*model.RateLimitRecord, error) {
	ref := r.collection().Doc(rateLimitDocID(userID, action))

	var result *model.RateLimitRecord
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var doc rateLimitDoc

		snap, err := tx.Get(ref)
		switch {
		case err != nil && status.Code(err) == codes.NotFound:
			doc = rateLimitDoc{UserID: string(userID), Action: string(action)}
		case err != nil:
			return err
		default:
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
		}

		rec := fromRateLimitDoc(&doc)
		if doc.AttemptCount == 0 || rec.Stale(now, window) {
			doc.AttemptCount = 1
			doc.WindowStart = now
		} else {
			doc.AttemptCount++
		}

		result = fromRateLimitDoc(&doc)
		return tx.Set(ref, &doc)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to increment rate limit record",
			goerr.V("userID", userID), goerr.V("action", action))
	}
	return result, nil
}

func (r *rateLimitRepository) Delete(ctx context.Context, userID types.UserID, action types.RateAction) error {
	if _, err := r.collection().Doc(rateLimitDocID(userID, action)).Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete rate limit record",
			goerr.V("userID", userID), goerr.V("action", action))
	}
	return nil
}

func (r *rateLimitRepository) DeleteUser(ctx context.Context, userID types.UserID) error {
	iter := r.collection().Where("user_id", "==", string(userID)).Documents(ctx)
	defer iter.Stop()
	return r.deleteAll(ctx, iter)
}

func (r *rateLimitRepository) DeleteAll(ctx context.Context) error {
	iter := r.collection().Documents(ctx)
	defer iter.Stop()
	return r.deleteAll(ctx, iter)
}

func (r *rateLimitRepository) deleteAll(ctx context.Context, iter *firestore.DocumentIterator) error {
	bw := r.client.BulkWriter(ctx)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return goerr.Wrap(err, "failed to iterate rate limit records")
		}
		if _, err := bw.Delete(snap.Ref); err != nil {
			return goerr.Wrap(err, "failed to enqueue rate limit delete")
		}
	}
	bw.End()
	return nil
}
