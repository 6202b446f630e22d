package types

import "fmt"

// Tier represents the membership classification derived from the external
// organization lists
type Tier string

const (
	// TierMain is a member of the primary organization
	TierMain Tier = "main"
	// TierAffiliate is a member of a secondary (affiliated) organization
	TierAffiliate Tier = "affiliate"
	// TierNonMember is a user with no organization membership
	TierNonMember Tier = "non_member"
	// TierUnknown is a user whose membership could not be determined
	TierUnknown Tier = "unknown"
)

// AllTiers returns all valid tiers
func AllTiers() []Tier {
	return []Tier{
		TierMain,
		TierAffiliate,
		TierNonMember,
		TierUnknown,
	}
}

// IsValid checks if the tier is valid
func (t Tier) IsValid() bool {
	switch t {
	case TierMain, TierAffiliate, TierNonMember, TierUnknown:
		return true
	default:
		return false
	}
}

// String returns the string representation of the tier
func (t Tier) String() string {
	return string(t)
}

// ParseTier parses a string into a Tier
func ParseTier(s string) (Tier, error) {
	tier := Tier(s)
	if !tier.IsValid() {
		return "", fmt.Errorf("invalid tier: %s", s)
	}
	return tier, nil
}
