package config

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/guildops/tierkeeper/pkg/domain/interfaces"
	"github.com/guildops/tierkeeper/pkg/service/slack"
	"github.com/guildops/tierkeeper/pkg/utils/logging"
)

// Notify holds CLI flags for the change log notification sink
type Notify struct {
	slackToken string
}

// Flags returns CLI flags for notification configuration
func (n *Notify) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "slack-bot-token",
			Usage:       "Slack bot token for change log posting (disabled when empty)",
			Sources:     cli.EnvVars("TIERKEEPER_SLACK_BOT_TOKEN"),
			Destination: &n.slackToken,
		},
	}
}

// Configure returns the notification sink, or nil when posting is disabled
func (n *Notify) Configure() (interfaces.NotificationSink, error) {
	if n.slackToken == "" {
		logging.Default().Info("Slack bot token not configured, change log posting disabled")
		return nil, nil
	}

	sink, err := slack.New(n.slackToken)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize slack sink")
	}
	logging.Default().Info("Slack change log posting enabled")
	return sink, nil
}
