package slack

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"

	"github.com/guildops/tierkeeper/pkg/domain/interfaces"
	"github.com/guildops/tierkeeper/pkg/domain/types"
)

// client posts rendered change records to Slack channels
type client struct {
	api *slack.Client
}

var _ interfaces.NotificationSink = &client{}

// New creates a Slack notification sink with the provided bot token
func New(token string) (interfaces.NotificationSink, error) {
	if token == "" {
		return nil, goerr.New("Slack bot token is required")
	}

	return &client{api: slack.New(token)}, nil
}

// Post sends one message to the channel
func (c *client) Post(ctx context.Context, channel types.ChannelID, message string) error {
	_, _, err := c.api.PostMessageContext(ctx, channel.String(),
		slack.MsgOptionText(message, false),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to post message", goerr.V("channel", channel))
	}

	return nil
}
