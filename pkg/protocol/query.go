package protocol

import (
	"bytes"
	"strconv"
)

// Query is an outbound <query xmlns='urn:cryonline:k01'> element.
type Query struct {
	body string
}

func (q Query) String() string {
	return "<query xmlns='" + Namespace + "'>" + q.body + "</query>"
}

// Body returns the query's children.
func (q Query) Body() string {
	return q.body
}

type attr struct {
	name, value string
}

func element(name string, attrs []attr, children string) string {
	var b bytes.Buffer
	b.WriteString("<")
	b.WriteString(name)
	for _, a := range attrs {
		writeAttr(&b, a.name, a.value)
	}
	if children == "" {
		b.WriteString("/>")
		return b.String()
	}
	b.WriteString(">")
	b.WriteString(children)
	b.WriteString("</")
	b.WriteString(name)
	b.WriteString(">")
	return b.String()
}

// ChannelLogin carries the fields shared by join and switch requests.
type ChannelLogin struct {
	Version   string
	Token     string
	RegionID  string
	ProfileID string
	UserID    string
	Resource  string // target channel
	BuildType string
}

func (l ChannelLogin) attrs() []attr {
	return []attr{
		{"version", l.Version},
		{"token", l.Token},
		{"region_id", l.RegionID},
		{"profile_id", l.ProfileID},
		{"user_id", l.UserID},
		{"resource", l.Resource},
	}
}

// JoinChannel builds the first-entry request sent to the matchmaking service.
func JoinChannel(l ChannelLogin, hwID int32) Query {
	attrs := append(l.attrs(),
		attr{"hw_id", strconv.FormatInt(int64(hwID), 10)},
		attr{"build_type", l.BuildType},
	)
	return Query{body: element("join_channel", attrs, "")}
}

// SwitchChannel builds the request moving a connected client to another channel.
func SwitchChannel(l ChannelLogin) Query {
	attrs := append(l.attrs(), attr{"build_type", l.BuildType})
	return Query{body: element("switch_channel", attrs, "")}
}

// ChannelLogout tells a masterserver the client left its channel.
func ChannelLogout() Query {
	return Query{body: element("channel_logout", nil, "")}
}

// NotifyExpiredItems acknowledges a batch of expired inventory items.
func NotifyExpiredItems(ids []string) Query {
	var items bytes.Buffer
	for _, id := range ids {
		items.WriteString(element("item", []attr{{"item_id", id}}, ""))
	}
	return Query{body: element("notify_expired_items", nil, items.String())}
}

// ConfirmNotification acknowledges one notification.
func ConfirmNotification(id, typ string) Query {
	notif := element("notif", []attr{{"id", id}, {"type", typ}}, "")
	return Query{body: element("confirm_notification", nil, notif)}
}

// ShopGetOffers asks for the current shop offers.
func ShopGetOffers() Query {
	return Query{body: element("shop_get_offers", nil, "")}
}

// GetPlayerStats asks for the player's statistics.
func GetPlayerStats() Query {
	return Query{body: element("get_player_stats", nil, "")}
}

// GetAchievements asks for the achievements of a profile.
func GetAchievements(profileID string) Query {
	achievement := element("achievement", []attr{{"profile_id", profileID}}, "")
	return Query{body: element("get_achievements", nil, achievement)}
}

// MissionsGetList asks for today's mission list.
func MissionsGetList() Query {
	return Query{body: element("missions_get_list", nil, "")}
}

// PlayerStatus broadcasts a presence change.
func PlayerStatus(prevStatus, newStatus uint32, channel string) Query {
	attrs := []attr{
		{"prev_status", strconv.FormatUint(uint64(prevStatus), 10)},
		{"new_status", strconv.FormatUint(uint64(newStatus), 10)},
		{"to", channel},
	}
	return Query{body: element("player_status", attrs, "")}
}

// GameroomLeave leaves the current game room, if any.
func GameroomLeave() Query {
	return Query{body: element("gameroom_leave", nil, "")}
}
