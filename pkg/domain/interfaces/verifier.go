package interfaces

import (
	"context"

	"github.com/guildops/tierkeeper/pkg/domain/model"
	"github.com/guildops/tierkeeper/pkg/domain/types"
)

// Verifier looks up a handle at the external organization source. Errors
// carry a taxonomy tag: types.TagNotFound for unknown handles,
// types.TagForbidden for access failures, types.TagTransient for upstream
// 5xx/timeout failures. Every call must go through circuit breaker
// admission and be followed by RecordSuccess/RecordFailure.
type Verifier interface {
	Fetch(ctx context.Context, handle types.Handle) (*model.OrgProfile, error)
}
