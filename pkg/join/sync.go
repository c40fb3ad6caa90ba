package join

import (
	"log/slog"

	"github.com/CuBnIcK/warfacebot/pkg/model"
	"github.com/CuBnIcK/warfacebot/pkg/protocol"
)

// MaxUnlockedItems caps the unlocked item count reported by the backend.
const MaxUnlockedItems = 111

// commitChannel makes channel the session's current channel and refreshes
// its type from the directory. An unknown channel clears the type.
func (d *Dispatcher) commitChannel(channel string) {
	d.session.Online.Channel = channel
	d.session.Online.ChannelType = ""

	entry, err := d.dir.Lookup(channel)
	if err != nil {
		slog.Warn("channel directory lookup failed", "channel", channel, "err", err)
	} else if entry != nil {
		d.session.Online.ChannelType = entry.Type
	}

	slog.Info("joined channel", "channel", channel, "type", d.session.Online.ChannelType)
}

// applyResult copies the answer's counters onto the profile. The backend
// omits what it does not want to change and zero cannot be told apart from
// absent, so only strictly positive values overwrite.
func applyResult(s *model.Session, r *protocol.JoinResult) {
	p := &s.Profile

	setPositive(&p.Experience, r.Experience)
	setPositive(&p.Stats.PvPRatingPoints, r.PvPRatingPoints)

	setPositive(&p.Banner.Badge, r.BannerBadge)
	setPositive(&p.Banner.Mark, r.BannerMark)
	setPositive(&p.Banner.Stripe, r.BannerStripe)

	// Money is only authoritative in a full join_channel answer.
	if r.IsJoinChannel {
		setPositive(&p.Money.Game, r.GameMoney)
		setPositive(&p.Money.Crown, r.CrownMoney)
		setPositive(&p.Money.Cry, r.CryMoney)
	}

	setPositive(&p.Stats.ItemsUnlocked, int64(min(r.UnlockedItems, MaxUnlockedItems)))
}

func setPositive(dst *int64, v int64) {
	if v > 0 {
		*dst = v
	}
}
