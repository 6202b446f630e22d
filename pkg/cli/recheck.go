package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/guildops/tierkeeper/pkg/cli/config"
	"github.com/guildops/tierkeeper/pkg/domain/types"
	"github.com/guildops/tierkeeper/pkg/service/breaker"
	"github.com/guildops/tierkeeper/pkg/service/changelog"
	"github.com/guildops/tierkeeper/pkg/service/guildsync"
	"github.com/guildops/tierkeeper/pkg/service/queue"
	"github.com/guildops/tierkeeper/pkg/service/ratelimit"
	"github.com/guildops/tierkeeper/pkg/service/scheduler"
	"github.com/guildops/tierkeeper/pkg/usecase"
	"github.com/guildops/tierkeeper/pkg/utils/logging"
)

func cmdRecheck() *cli.Command {
	var userID string
	var handle string
	var admin bool
	var initiator string
	var policyCfg config.Policy
	var repoCfg config.Repository
	var upstreamCfg config.Upstream
	var notifyCfg config.Notify

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Usage:       "User ID to recheck",
			Required:    true,
			Destination: &userID,
		},
		&cli.StringFlag{
			Name:        "handle",
			Usage:       "External handle (defaults to the persisted one)",
			Destination: &handle,
		},
		&cli.BoolFlag{
			Name:        "admin",
			Usage:       "Run as an admin override, bypassing the rate limit",
			Destination: &admin,
		},
		&cli.StringFlag{
			Name:        "initiator",
			Usage:       "Who triggered this recheck, recorded in the change log",
			Destination: &initiator,
		},
	}
	flags = append(flags, policyCfg.Flags()...)
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, upstreamCfg.Flags()...)
	flags = append(flags, notifyCfg.Flags()...)

	return &cli.Command{
		Name:    "recheck",
		Aliases: []string{"r"},
		Usage:   "Run one re-validation pipeline pass for a single user",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			policy, err := policyCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to load policy")
			}

			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logging.Default().Error("failed to close repository", "error", err.Error())
				}
			}()

			verifierSvc, err := upstreamCfg.Verifier()
			if err != nil {
				return err
			}
			guildClient, err := upstreamCfg.GuildClient()
			if err != nil {
				return err
			}
			sink, err := notifyCfg.Configure()
			if err != nil {
				return err
			}

			q := queue.New(policy.QueueConfig())
			q.Start(ctx)
			defer q.Stop()

			uc := usecase.New(repo,
				usecase.WithVerifier(verifierSvc),
				usecase.WithBreaker(breaker.New(policy.BreakerConfig())),
				usecase.WithLimiter(ratelimit.New(repo, policy.LimiterOptions()...)),
				usecase.WithGuildSync(guildsync.New(guildClient, q, policy.GuildConfigs(),
					guildsync.WithBatchSize(policy.Sync.BatchSize),
					guildsync.WithConcurrency(policy.Sync.Concurrency),
				)),
				usecase.WithScheduler(scheduler.New(repo, policy.CadenceConfig())),
				usecase.WithChangeLog(changelog.New(repo, sink)),
			)

			event := types.EventUserCheck
			if admin {
				event = types.EventAdminCheck
			}

			out, err := uc.RecheckUser(ctx, types.UserID(userID), types.Handle(handle), event, initiator)
			if err != nil {
				return err
			}

			logger := logging.Default()
			switch out.Kind {
			case usecase.OutcomeOk:
				logger.Info("Recheck completed",
					"user_id", userID,
					"tier", out.State.GlobalTier(),
					"orgs", out.State.Orgs(),
				)
			case usecase.OutcomeRateLimited:
				logger.Warn("Recheck rate limited", "user_id", userID, "retry_at", out.RetryAt)
			case usecase.OutcomeUnavailable:
				logger.Warn("Verification source unavailable", "user_id", userID, "retry_in", out.RetryAfter)
			default:
				logger.Error("Recheck failed", "user_id", userID, "outcome", out.Kind, "error", out.Err)
			}

			return nil
		},
	}
}
