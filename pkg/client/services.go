package client

import (
	"context"
	"log/slog"

	"github.com/CuBnIcK/warfacebot/pkg/join"
	"github.com/CuBnIcK/warfacebot/pkg/model"
	"github.com/CuBnIcK/warfacebot/pkg/protocol"
)

// Services implements the follow-up operations of a channel join as plain
// outbound queries. None of them waits for an answer.
type Services struct {
	sender  join.Sender
	session *model.Session
	domain  string
}

var _ join.Collaborators = (*Services)(nil)

// NewServices creates Services sending through sender on behalf of session.
func NewServices(sender join.Sender, session *model.Session, domain string) *Services {
	if domain == "" {
		domain = protocol.DefaultDomain
	}
	return &Services{sender: sender, session: session, domain: domain}
}

func (s *Services) masterserver() string {
	return protocol.MasterServer(s.domain, s.session.Online.Channel)
}

func (s *Services) send(ctx context.Context, to string, q protocol.Query) {
	if err := s.sender.SendIQ(ctx, to, q, nil); err != nil {
		slog.Debug("request failed", "to", to, "err", err)
	}
}

// LeaveGameRoom leaves the room of the current channel, if any.
func (s *Services) LeaveGameRoom(ctx context.Context) {
	if !s.session.HasChannel() {
		return
	}
	s.send(ctx, s.masterserver(), protocol.GameroomLeave())
}

func (s *Services) ShopGetOffers(ctx context.Context) {
	s.send(ctx, protocol.K01(s.domain), protocol.ShopGetOffers())
}

func (s *Services) GetPlayerStats(ctx context.Context) {
	s.send(ctx, s.masterserver(), protocol.GetPlayerStats())
}

func (s *Services) GetAchievements(ctx context.Context, profileID string) {
	s.send(ctx, protocol.K01(s.domain), protocol.GetAchievements(profileID))
}

func (s *Services) MissionListUpdate(ctx context.Context) {
	s.send(ctx, s.masterserver(), protocol.MissionsGetList())
}

// PlayerStatus records status on the session and announces the change.
func (s *Services) PlayerStatus(ctx context.Context, status model.Status) {
	prev := s.session.Online.Status
	s.session.Online.Status = status
	s.send(ctx, protocol.K01(s.domain), protocol.PlayerStatus(uint32(prev), uint32(status), s.session.Online.Channel))
	slog.Debug("player status", "prev", prev, "status", status)
}

func (s *Services) ConfirmNotification(ctx context.Context, channel string, n protocol.Notification) {
	s.send(ctx, protocol.MasterServer(s.domain, channel), protocol.ConfirmNotification(n.ID, n.Type))
}
