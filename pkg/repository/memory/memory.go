package memory

import "github.com/guildops/tierkeeper/pkg/domain/interfaces"

// Memory is an in-process repository used for development and tests
type Memory struct {
	verification *verificationRepository
	rateLimit    *rateLimitRepository
	recheck      *recheckRepository
	fingerprint  *fingerprintRepository
}

var _ interfaces.Repository = &Memory{}

// New creates a new in-memory repository
func New() *Memory {
	return &Memory{
		verification: newVerificationRepository(),
		rateLimit:    newRateLimitRepository(),
		recheck:      newRecheckRepository(),
		fingerprint:  newFingerprintRepository(),
	}
}

func (m *Memory) Verification() interfaces.VerificationRepository {
	return m.verification
}

func (m *Memory) RateLimit() interfaces.RateLimitRepository {
	return m.rateLimit
}

func (m *Memory) Recheck() interfaces.RecheckRepository {
	return m.recheck
}

func (m *Memory) Fingerprint() interfaces.FingerprintRepository {
	return m.fingerprint
}

func (m *Memory) Close() error {
	return nil
}
