package join

import (
	"context"
	"log/slog"

	"github.com/CuBnIcK/warfacebot/pkg/model"
	"github.com/CuBnIcK/warfacebot/pkg/protocol"
)

// logoutPrevious tells prior it lost this client, unless the session has no
// channel yet or is still on prior.
func (d *Dispatcher) logoutPrevious(prior string) {
	current := d.session.Online.Channel
	if prior == "" || current == "" || prior == current {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), detachTimeout)
	defer cancel()

	d.detach(ctx, protocol.MasterServer(d.params.Domain, prior), protocol.ChannelLogout())
	d.metrics.LogoutNotices.Add(1)
	slog.Debug("channel logout sent", "channel", prior)
}

// cascade issues the follow-up requests of a successful join. The session
// is already reconciled when it runs; nothing here is awaited.
func (d *Dispatcher) cascade(ctx context.Context, r *protocol.JoinResult) {
	channel := d.session.Online.Channel

	if n := len(r.ExpiredItems); n > 0 {
		slog.Info("confirming item expiration", "count", n)
		d.detach(ctx, protocol.MasterServer(d.params.Domain, channel), protocol.NotifyExpiredItems(r.ExpiredItems))
		d.metrics.ExpiredAcks.Add(1)
	}

	for _, n := range r.Notifications {
		d.collab.ConfirmNotification(ctx, channel, n)
		d.metrics.NotificationAcks.Add(1)
	}

	d.collab.ShopGetOffers(ctx)
	d.collab.GetPlayerStats(ctx)
	d.collab.GetAchievements(ctx, d.session.Profile.ID)
	d.collab.MissionListUpdate(ctx)
	d.collab.PlayerStatus(ctx, model.StatusOnline|model.StatusLobby)
}
