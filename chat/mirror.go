// Package chat mirrors system announcements into the streamer's Twitch
// channel over IRC. The site's own chat feed is served from the chat table;
// the mirror just echoes entitlement announcements where the live audience is.
package chat

import (
	"context"
	"log/slog"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

// Mirror is a Say-only IRC client for one channel.
type Mirror struct {
	channel string
	client  *twitch.Client
}

// NewMirror prepares a mirror for the given channel using the bot account's
// user OAuth token (chat:edit scope).
func NewMirror(channel, botUsername, oauthToken string) *Mirror {
	client := twitch.NewClient(botUsername, oauthToken)
	client.Join(channel)
	return &Mirror{channel: channel, client: client}
}

// Start connects and blocks until the context is cancelled. Run it in its own
// goroutine; messages said before the connection is up are dropped by the
// client, which is acceptable for a best-effort mirror.
func (m *Mirror) Start(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		if err := m.client.Disconnect(); err != nil {
			slog.Warn("twitch mirror disconnect error", slog.Any("err", err))
		}
		close(done)
	}()
	if err := m.client.Connect(); err != nil {
		slog.Error("twitch mirror connect error", slog.Any("err", err))
	}
	<-done
}

// Say echoes one announcement into the channel.
func (m *Mirror) Say(message string) {
	m.client.Say(m.channel, message)
}
