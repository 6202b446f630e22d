package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/guildops/tierkeeper/pkg/cli/config"
	httpctrl "github.com/guildops/tierkeeper/pkg/controller/http"
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

func cmdServe() *cli.Command {
	var addr string
	var recheckInterval time.Duration
	var recheckBatch int
	var policyCfg config.Policy
	var repoCfg config.Repository
	var upstreamCfg config.Upstream
	var notifyCfg config.Notify

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("TIERKEEPER_ADDR"),
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "recheck-interval",
			Usage:       "Polling interval of the recheck worker",
			Value:       time.Minute,
			Sources:     cli.EnvVars("TIERKEEPER_RECHECK_INTERVAL"),
			Destination: &recheckInterval,
		},
		&cli.IntFlag{
			Name:        "recheck-batch",
			Usage:       "Maximum due users handled per worker cycle",
			Value:       10,
			Sources:     cli.EnvVars("TIERKEEPER_RECHECK_BATCH"),
			Destination: &recheckBatch,
		},
	}
	flags = append(flags, policyCfg.Flags()...)
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, upstreamCfg.Flags()...)
	flags = append(flags, notifyCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Run the recheck worker and operational HTTP server",
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

			brk := breaker.New(policy.BreakerConfig())
			limiter := ratelimit.New(repo, policy.LimiterOptions()...)

			q := queue.New(policy.QueueConfig())
			q.Start(ctx)
			defer q.Stop()

			syncSvc := guildsync.New(guildClient, q, policy.GuildConfigs(),
				guildsync.WithBatchSize(policy.Sync.BatchSize),
				guildsync.WithConcurrency(policy.Sync.Concurrency),
			)
			sched := scheduler.New(repo, policy.CadenceConfig())
			changeLog := changelog.New(repo, sink)

			uc := usecase.New(repo,
				usecase.WithVerifier(verifierSvc),
				usecase.WithBreaker(brk),
				usecase.WithLimiter(limiter),
				usecase.WithGuildSync(syncSvc),
				usecase.WithScheduler(sched),
				usecase.WithChangeLog(changeLog),
			)

			worker := scheduler.NewWorker(sched, func(ctx context.Context, userID types.UserID) error {
				_, err := uc.RecheckUser(ctx, userID, "", types.EventAutoRecheck, "")
				return err
			}, recheckInterval, recheckBatch)
			if err := worker.Start(ctx); err != nil {
				return goerr.Wrap(err, "failed to start recheck worker")
			}

			server := &http.Server{
				Addr: addr,
				Handler: httpctrl.New(
					httpctrl.WithBreaker(brk),
					httpctrl.WithQueue(q),
					httpctrl.WithScheduler(sched),
				),
				ReadHeaderTimeout: 30 * time.Second,
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr, "guilds", len(policy.Guilds))
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			select {
			case err := <-errCh:
				worker.Stop()
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				worker.Stop()

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				logging.Default().Info("Server shutdown completed")
				return nil
			}
		},
	}
}
