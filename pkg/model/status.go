// Package model defines the session, presence and channel directory types
// shared by the client packages.
package model

import "strings"

// Status is the presence bitmask the backend tracks for a player.
//
// Flags are ordered so that any status at or above StatusLobby means the
// player has already entered the channel system once.
type Status uint32

const (
	StatusOffline   Status = 0
	StatusOnline    Status = 1 << 0
	StatusLobby     Status = 1 << 1
	StatusRoom      Status = 1 << 2
	StatusPlaying   Status = 1 << 3
	StatusShop      Status = 1 << 4
	StatusInventory Status = 1 << 5
	StatusAway      Status = 1 << 6
)

var statusNames = []struct {
	flag Status
	name string
}{
	{StatusOnline, "online"},
	{StatusLobby, "lobby"},
	{StatusRoom, "room"},
	{StatusPlaying, "playing"},
	{StatusShop, "shop"},
	{StatusInventory, "inventory"},
	{StatusAway, "away"},
}

// Joined reports whether the player already sits in a channel, i.e. a new
// channel request must be a switch rather than a first join.
func (s Status) Joined() bool {
	return s >= StatusLobby
}

// Has reports whether every flag in f is set.
func (s Status) Has(f Status) bool {
	return s&f == f
}

func (s Status) String() string {
	if s == StatusOffline {
		return "offline"
	}
	var parts []string
	for _, n := range statusNames {
		if s&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, "|")
}
