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

const verificationsCollection = "verifications"

type verificationRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

var _ interfaces.VerificationRepository = &verificationRepository{}

func newVerificationRepository(client *firestore.Client) *verificationRepository {
	return &verificationRepository{client: client}
}

// verificationDoc is the Firestore persistence model
type verificationDoc struct {
	UserID        string    `firestore:"user_id"`
	Handle        string    `firestore:"handle"`
	Moniker       string    `firestore:"moniker"`
	MainOrgs      []string  `firestore:"main_orgs"`
	AffiliateOrgs []string  `firestore:"affiliate_orgs"`
	Err           string    `firestore:"err"`
	FetchedAt     time.Time `firestore:"fetched_at"`
}

func (r *verificationRepository) collection() *firestore.CollectionRef {
	return collection(r.client, r.collectionPrefix, verificationsCollection)
}

func toVerificationDoc(state *model.VerificationState) *verificationDoc {
	return &verificationDoc{
		UserID:        string(state.UserID),
		Handle:        string(state.Handle),
		Moniker:       state.Moniker,
		MainOrgs:      state.MainOrgs,
		AffiliateOrgs: state.AffiliateOrgs,
		Err:           state.Err,
		FetchedAt:     state.FetchedAt,
	}
}

func fromVerificationDoc(doc *verificationDoc) *model.VerificationState {
	return &model.VerificationState{
		UserID:        types.UserID(doc.UserID),
		Handle:        types.Handle(doc.Handle),
		Moniker:       doc.Moniker,
		MainOrgs:      doc.MainOrgs,
		AffiliateOrgs: doc.AffiliateOrgs,
		Err:           doc.Err,
		FetchedAt:     doc.FetchedAt,
	}
}

func (r *verificationRepository) Put(ctx context.Context, state *model.VerificationState) error {
	_, err := r.collection().Doc(string(state.UserID)).Set(ctx, toVerificationDoc(state))
	if err != nil {
		return goerr.Wrap(err, "failed to save verification state", goerr.V("userID", state.UserID))
	}
	return nil
}

func (r *verificationRepository) Get(ctx context.Context, userID types.UserID) (*model.VerificationState, error) {
	snap, err := r.collection().Doc(string(userID)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to get verification state", goerr.V("userID", userID))
	}

	var doc verificationDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode verification state", goerr.V("userID", userID))
	}
	return fromVerificationDoc(&doc), nil
}

func (r *verificationRepository) ListUserIDs(ctx context.Context) ([]types.UserID, error) {
	// Select with no fields returns document refs only
	iter := r.collection().Select().Documents(ctx)
	defer iter.Stop()

	var ids []types.UserID
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list verification states")
		}
		ids = append(ids, types.UserID(snap.Ref.ID))
	}
	return ids, nil
}
