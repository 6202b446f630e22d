package config

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/guildops/tierkeeper/pkg/utils/logging"
)

// Sentry holds CLI flags for error tracking configuration
type Sentry struct {
	dsn string
	env string
}

// Flags returns CLI flags for Sentry configuration
func (s *Sentry) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "sentry-dsn",
			Usage:       "Sentry DSN (error tracking disabled when empty)",
			Sources:     cli.EnvVars("TIERKEEPER_SENTRY_DSN"),
			Destination: &s.dsn,
		},
		&cli.StringFlag{
			Name:        "sentry-env",
			Usage:       "Sentry environment name",
			Sources:     cli.EnvVars("TIERKEEPER_SENTRY_ENV"),
			Destination: &s.env,
		},
	}
}

// Configure initializes the Sentry client. The returned closer flushes
// pending events on shutdown. Without a DSN both are no-ops.
func (s *Sentry) Configure(version string) (func(), error) {
	if s.dsn == "" {
		logging.Default().Info("Sentry DSN not configured, error tracking disabled")
		return func() {}, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         s.dsn,
		Environment: s.env,
		Release:     version,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize sentry")
	}

	logging.Default().Info("Sentry error tracking enabled", "env", s.env)
	return func() {
		sentry.Flush(2 * time.Second)
	}, nil
}
