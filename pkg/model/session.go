package model

// Money holds the three currencies of a profile.
type Money struct {
	Game  int64 `json:"game"`
	Crown int64 `json:"crown"`
	Cry   int64 `json:"cry"`
}

// Banner is the badge/mark/stripe triple shown next to a nickname.
type Banner struct {
	Badge  int64 `json:"badge"`
	Mark   int64 `json:"mark"`
	Stripe int64 `json:"stripe"`
}

// Stats are the profile counters read during a channel join.
type Stats struct {
	PvPRatingPoints int64 `json:"pvp_rating_points"`
	ItemsUnlocked   int64 `json:"items_unlocked"`
}

// Profile is the player profile owned by a session.
type Profile struct {
	ID            string `json:"id"`
	Nickname      string `json:"nickname"`
	Experience    int64  `json:"experience"`
	Money         Money  `json:"money"`
	Banner        Banner `json:"banner"`
	PrimaryWeapon string `json:"primary_weapon"`
	Stats         Stats  `json:"stats"`
}

// Online is the connection-level part of a session.
type Online struct {
	Status      Status `json:"status"`
	Channel     string `json:"channel"`      // empty until the first successful join
	ChannelType string `json:"channel_type"` // empty when the directory has no entry
	ActiveToken string `json:"-"`
	ID          string `json:"id"` // connection identity (full JID)
}

// Session is the client's single mutable view of its backend state.
//
// A Session is not safe for concurrent use. It is mutated only from
// continuations running on the transport's event loop.
type Session struct {
	Online  Online  `json:"online"`
	Profile Profile `json:"profile"`
}

// NewSession creates an offline session for the given identities.
func NewSession(userID, profileID, token string) *Session {
	return &Session{
		Online: Online{
			Status:      StatusOffline,
			ActiveToken: token,
			ID:          userID,
		},
		Profile: Profile{ID: profileID},
	}
}

// HasChannel reports whether the session has joined a channel.
func (s *Session) HasChannel() bool {
	return s.Online.Channel != ""
}

// Snapshot returns a copy of the session. Session holds no reference
// types, so a value copy is a deep copy.
func (s *Session) Snapshot() Session {
	return *s
}
