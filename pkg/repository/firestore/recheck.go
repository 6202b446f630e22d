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

const (
	recheckSchedulesCollection = "recheck_schedules"

	// Firestore limit for disjunctive (IN) filters per query
	firestoreGetAllLimit = 30
)

type recheckRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

var _ interfaces.RecheckRepository = &recheckRepository{}

func newRecheckRepository(client *firestore.Client) *recheckRepository {
	return &recheckRepository{client: client}
}

// recheckDoc is the Firestore persistence model
type recheckDoc struct {
	UserID        string    `firestore:"user_id"`
	NextRetryAt   time.Time `firestore:"next_retry_at"`
	FailCount     int       `firestore:"fail_count"`
	LastError     string    `firestore:"last_error"`
	LastCheckedAt time.Time `firestore:"last_checked_at"`
	UpdatedAt     time.Time `firestore:"updated_at"`
}

func (r *recheckRepository) collection() *firestore.CollectionRef {
	return collection(r.client, r.collectionPrefix, recheckSchedulesCollection)
}

func toRecheckDoc(s *model.ScheduledRecheck) *recheckDoc {
	return &recheckDoc{
		UserID:        string(s.UserID),
		NextRetryAt:   s.NextRetryAt,
		FailCount:     s.FailCount,
		LastError:     s.LastError,
		LastCheckedAt: s.LastCheckedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func fromRecheckDoc(doc *recheckDoc) *model.ScheduledRecheck {
	return &model.ScheduledRecheck{
		UserID:        types.UserID(doc.UserID),
		NextRetryAt:   doc.NextRetryAt,
		FailCount:     doc.FailCount,
		LastError:     doc.LastError,
		LastCheckedAt: doc.LastCheckedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
}

func (r *recheckRepository) Get(ctx context.Context, userID types.UserID) (*model.ScheduledRecheck, error) {
	snap, err := r.collection().Doc(string(userID)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to get recheck schedule", goerr.V("userID", userID))
	}

	var doc recheckDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode recheck schedule", goerr.V("userID", userID))
	}
	return fromRecheckDoc(&doc), nil
}

func (r *recheckRepository) GetByUsers(ctx context.Context, userIDs []types.UserID) (map[types.UserID]*model.ScheduledRecheck, error) {
	result := make(map[types.UserID]*model.ScheduledRecheck, len(userIDs))

	refs := make([]*firestore.DocumentRef, 0, len(userIDs))
	for _, id := range userIDs {
		refs = append(refs, r.collection().Doc(string(id)))
	}

	for start := 0; start < len(refs); start += firestoreGetAllLimit {
		end := min(start+firestoreGetAllLimit, len(refs))

		snaps, err := r.client.GetAll(ctx, refs[start:end])
		if err != nil {
			return nil, goerr.Wrap(err, "failed to batch get recheck schedules")
		}
		for _, snap := range snaps {
			if !snap.Exists() {
				continue
			}
			var doc recheckDoc
			if err := snap.DataTo(&doc); err != nil {
				return nil, goerr.Wrap(err, "failed to decode recheck schedule", goerr.V("id", snap.Ref.ID))
			}
			s := fromRecheckDoc(&doc)
			result[s.UserID] = s
		}
	}

	return result, nil
}

func (r *recheckRepository) Upsert(ctx context.Context, schedule *model.ScheduledRecheck) error {
	if _, err := r.collection().Doc(string(schedule.UserID)).Set(ctx, toRecheckDoc(schedule)); err != nil {
		return goerr.Wrap(err, "failed to upsert recheck schedule", goerr.V("userID", schedule.UserID))
	}
	return nil
}

// ListDue orders by next_retry_at then last_checked_at. The composite index
// is maintained by the migrate command. Primary ordering must be on the
// inequality field, so fairness across equal retry times comes from the
// secondary last_checked_at ordering.
func (r *recheckRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.ScheduledRecheck, error) {
	query := r.collection().
		Where("next_retry_at", "<=", now).
		OrderBy("next_retry_at", firestore.Asc).
		OrderBy("last_checked_at", firestore.Asc)
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var due []*model.ScheduledRecheck
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list due recheck schedules")
		}
		var doc recheckDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode recheck schedule", goerr.V("id", snap.Ref.ID))
		}
		due = append(due, fromRecheckDoc(&doc))
	}
	return due, nil
}
