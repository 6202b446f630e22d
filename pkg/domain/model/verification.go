package model

import (
	"time"

	"github.com/guildops/tierkeeper/pkg/domain/types"
)

// OrgProfile is the raw answer from the external organization source for one
// handle lookup
type OrgProfile struct {
	Handle        types.Handle
	Moniker       string
	MainOrgs      []string
	AffiliateOrgs []string
}

// VerificationState is the immutable result of one external fetch. It is
// computed once per fetch and never mutated afterwards; guild sync consumes
// it and the caller persists it after the diff is captured.
type VerificationState struct {
	UserID        types.UserID
	Handle        types.Handle
	Moniker       string
	MainOrgs      []string
	AffiliateOrgs []string
	Err           string
	FetchedAt     time.Time
}

// NewVerificationState builds the state from a fetched profile
func NewVerificationState(userID types.UserID, profile *OrgProfile, fetchedAt time.Time) *VerificationState {
	return &VerificationState{
		UserID:        userID,
		Handle:        profile.Handle,
		Moniker:       profile.Moniker,
		MainOrgs:      append([]string(nil), profile.MainOrgs...),
		AffiliateOrgs: append([]string(nil), profile.AffiliateOrgs...),
		FetchedAt:     fetchedAt,
	}
}

// Failed reports whether the fetch that produced this state failed
func (s *VerificationState) Failed() bool {
	return s.Err != ""
}

// TierFor resolves the tier of this state relative to a guild's configured
// reference organization
func (s *VerificationState) TierFor(referenceOrg string) types.Tier {
	if s.Failed() {
		return types.TierUnknown
	}
	for _, org := range s.MainOrgs {
		if org == referenceOrg {
			return types.TierMain
		}
	}
	for _, org := range s.AffiliateOrgs {
		if org == referenceOrg {
			return types.TierAffiliate
		}
	}
	return types.TierNonMember
}

// GlobalTier is the guild-independent classification used for recheck
// cadence selection
func (s *VerificationState) GlobalTier() types.Tier {
	switch {
	case s.Failed():
		return types.TierUnknown
	case len(s.MainOrgs) > 0:
		return types.TierMain
	case len(s.AffiliateOrgs) > 0:
		return types.TierAffiliate
	default:
		return types.TierNonMember
	}
}

// Orgs returns the combined organization list (main first)
func (s *VerificationState) Orgs() []string {
	orgs := make([]string, 0, len(s.MainOrgs)+len(s.AffiliateOrgs))
	orgs = append(orgs, s.MainOrgs...)
	orgs = append(orgs, s.AffiliateOrgs...)
	return orgs
}
