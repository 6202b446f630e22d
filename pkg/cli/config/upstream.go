package config

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/guildops/tierkeeper/pkg/domain/interfaces"
	"github.com/guildops/tierkeeper/pkg/service/platform"
	"github.com/guildops/tierkeeper/pkg/service/verifier"
)

// Upstream holds CLI flags for the two external APIs: the membership
// verification source and the community platform
type Upstream struct {
	verifyURL     string
	verifyToken   string
	platformURL   string
	platformToken string
}

// Flags returns CLI flags for upstream configuration
func (u *Upstream) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "verify-api-url",
			Usage:       "Base URL of the membership verification API",
			Required:    true,
			Sources:     cli.EnvVars("TIERKEEPER_VERIFY_API_URL"),
			Destination: &u.verifyURL,
		},
		&cli.StringFlag{
			Name:        "verify-api-token",
			Usage:       "Bearer token for the membership verification API",
			Sources:     cli.EnvVars("TIERKEEPER_VERIFY_API_TOKEN"),
			Destination: &u.verifyToken,
		},
		&cli.StringFlag{
			Name:        "platform-api-url",
			Usage:       "Base URL of the community platform API",
			Required:    true,
			Sources:     cli.EnvVars("TIERKEEPER_PLATFORM_API_URL"),
			Destination: &u.platformURL,
		},
		&cli.StringFlag{
			Name:        "platform-api-token",
			Usage:       "Bot token for the community platform API",
			Sources:     cli.EnvVars("TIERKEEPER_PLATFORM_API_TOKEN"),
			Destination: &u.platformToken,
		},
	}
}

// Verifier builds the membership verification client
func (u *Upstream) Verifier() (interfaces.Verifier, error) {
	v, err := verifier.New(u.verifyURL, verifier.WithToken(u.verifyToken))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize verifier")
	}
	return v, nil
}

// GuildClient builds the community platform client
func (u *Upstream) GuildClient() (interfaces.GuildClient, error) {
	g, err := platform.New(u.platformURL, platform.WithToken(u.platformToken))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize platform client")
	}
	return g, nil
}
