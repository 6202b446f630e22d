package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"

	"github.com/guildops/tierkeeper/pkg/domain/interfaces"
)

// Firestore is the production repository backed by Cloud Firestore
type Firestore struct {
	client       *firestore.Client
	verification *verificationRepository
	rateLimit    *rateLimitRepository
	recheck      *recheckRepository
	fingerprint  *fingerprintRepository
}

var _ interfaces.Repository = &Firestore{}

type Option func(*Firestore)

// WithCollectionPrefix namespaces all collections, used to share one
// database between deployments
func WithCollectionPrefix(prefix string) Option {
	return func(f *Firestore) {
		f.verification.collectionPrefix = prefix
		f.rateLimit.collectionPrefix = prefix
		f.recheck.collectionPrefix = prefix
		f.fingerprint.collectionPrefix = prefix
	}
}

// New creates a Firestore-backed repository
func New(ctx context.Context, projectID, databaseID string, opts ...Option) (*Firestore, error) {
	var client *firestore.Client
	var err error
	if databaseID != "" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("projectID", projectID), goerr.V("databaseID", databaseID))
	}

	f := &Firestore{
		client:       client,
		verification: newVerificationRepository(client),
		rateLimit:    newRateLimitRepository(client),
		recheck:      newRecheckRepository(client),
		fingerprint:  newFingerprintRepository(client),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

func (f *Firestore) Verification() interfaces.VerificationRepository {
	return f.verification
}

func (f *Firestore) RateLimit() interfaces.RateLimitRepository {
	return f.rateLimit
}

func (f *Firestore) Recheck() interfaces.RecheckRepository {
	return f.recheck
}

func (f *Firestore) Fingerprint() interfaces.FingerprintRepository {
	return f.fingerprint
}

func (f *Firestore) Close() error {
	return f.client.Close()
}

func collection(client *firestore.Client, prefix, name string) *firestore.CollectionRef {
	if prefix != "" {
		return client.Collection(prefix + "_" + name)
	}
	return client.Collection(name)
}
