package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/guildops/tierkeeper/pkg/domain/interfaces"
)

const fingerprintsCollection = "change_fingerprints"

type fingerprintRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

var _ interfaces.FingerprintRepository = &fingerprintRepository{}

func newFingerprintRepository(client *firestore.Client) *fingerprintRepository {
	return &fingerprintRepository{client: client}
}

// fingerprintDoc is the Firestore persistence model, keyed by the
// fingerprint itself. SeenAt doubles as the document TTL field.
type fingerprintDoc struct {
	SeenAt time.Time `firestore:"seen_at"`
}

func (r *fingerprintRepository) collection() *firestore.CollectionRef {
	return collection(r.client, r.collectionPrefix, fingerprintsCollection)
}

// Claim uses a transaction as the atomic check-and-set over the dedup
// window. Stale documents are reclaimed in place; cleanup beyond that is
// left to a Firestore TTL policy on seen_at.
func (r *fingerprintRepository) Claim(ctx context.Context, fingerprint string, now time.Time, ttl time.Duration) (bool, error) {
	ref := r.collection().Doc(fingerprint)

	claimed := false
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		switch {
		case err != nil && status.Code(err) == codes.NotFound:
			// First sighting
		case err != nil:
			return err
		default:
			var doc fingerprintDoc
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			if now.Sub(doc.SeenAt) < ttl {
				claimed = false
				return nil
			}
		}

		claimed = true
		return tx.Set(ref, &fingerprintDoc{SeenAt: now})
	})
	if err != nil {
		return false, goerr.Wrap(err, "failed to claim change fingerprint", goerr.V("fingerprint", fingerprint))
	}
	return claimed, nil
}
