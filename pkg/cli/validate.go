package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/guildops/tierkeeper/pkg/cli/config"
	"github.com/guildops/tierkeeper/pkg/utils/logging"
)

func cmdValidate() *cli.Command {
	var policyCfg config.Policy

	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate the policy file",
		Flags:   policyCfg.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			policy, err := policyCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "policy validation failed")
			}

			logger.Info("Policy validation passed", "guild_count", len(policy.Guilds))
			for _, g := range policy.Guilds {
				logger.Info("Guild validated",
					"id", g.ID,
					"name", g.Name,
					"reference_org", g.ReferenceOrg,
					"managed_tiers", len(g.Roles),
				)
			}

			return nil
		},
	}
}
