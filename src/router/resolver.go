package router

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/yamadatarousan/slack-clone/src/directory"
	"github.com/yamadatarousan/slack-clone/src/event"
	"github.com/yamadatarousan/slack-clone/src/registry"
)

// RecipientResolver computes the connections that should receive an event.
// Recipient sets are computed per event, never cached.
type RecipientResolver interface {
	Resolve(ctx context.Context, ev event.Event) []*registry.Connection
}

// BroadcastAll sends every event to every live connection regardless of
// channel membership. This mirrors the behavior the REST backend currently
// relies on; prefer ChannelMembers once a membership source is wired in.
type BroadcastAll struct {
	Registry *registry.Registry
}

// Resolve implements RecipientResolver.
func (p BroadcastAll) Resolve(_ context.Context, _ event.Event) []*registry.Connection {
	return p.Registry.Connections()
}

// ChannelMembers restricts channel-scoped events to members of the event's
// channel. Events without a channel (presence) still go to everyone. A
// failed membership lookup falls back to delivering, so a flaky directory
// degrades to the broadcast-all policy instead of dropping messages.
type ChannelMembers struct {
	Registry   *registry.Registry
	Membership directory.MembershipChecker
	Logger     zerolog.Logger
}

// Resolve implements RecipientResolver.
func (p ChannelMembers) Resolve(ctx context.Context, ev event.Event) []*registry.Connection {
	conns := p.Registry.Connections()
	channelID := ev.Channel()
	if channelID == 0 {
		return conns
	}

	kept := conns[:0]
	for _, c := range conns {
		member, err := p.Membership.IsChannelMember(ctx, c.UserID, channelID)
		if err != nil {
			p.Logger.Warn().Err(err).
				Int64("user_id", c.UserID).
				Int64("channel_id", channelID).
				Msg("membership lookup failed, delivering anyway")
			kept = append(kept, c)
			continue
		}
		if member {
			kept = append(kept, c)
		}
	}
	return kept
}
