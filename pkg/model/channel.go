package model

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	MaxChannelResourceLength = 64
	MaxRank                  = 90
)

var ErrChannelResourceEmpty = errors.New("channel resource must not be empty")
var ErrChannelResourceTooLong = errors.New("channel resource too long")
var ErrChannelRankRange = errors.New("channel rank range invalid")
var ErrChannelLoad = errors.New("channel load out of range")

// Channel is a directory entry describing one masterserver channel.
type Channel struct {
	Resource  string  `json:"resource" yaml:"resource"`   // e.g. "pve_12"
	ServerID  int64   `json:"server_id" yaml:"server_id"` // backend server number
	Type      string  `json:"type" yaml:"type"`           // e.g. "pve", "pvp_pro"
	RankGroup string  `json:"rank_group" yaml:"rank_group,omitempty"`
	MinRank   int     `json:"min_rank" yaml:"min_rank,omitempty"`
	MaxRank   int     `json:"max_rank" yaml:"max_rank,omitempty"` // 0 = unbounded
	Load      float64 `json:"load" yaml:"load,omitempty"`         // 0..1
	Online    int     `json:"online" yaml:"online,omitempty"`
}

// Validate checks the entry before it is stored in a directory.
func (ch *Channel) Validate() error {
	if strings.TrimSpace(ch.Resource) == "" {
		return ErrChannelResourceEmpty
	} else if utf8.RuneCountInString(ch.Resource) > MaxChannelResourceLength {
		return ErrChannelResourceTooLong
	}

	if ch.MinRank < 0 || ch.MaxRank < 0 || ch.MinRank > MaxRank || ch.MaxRank > MaxRank {
		return ErrChannelRankRange
	}
	if ch.MaxRank != 0 && ch.MinRank > ch.MaxRank {
		return ErrChannelRankRange
	}

	if ch.Load < 0 || ch.Load > 1 {
		return ErrChannelLoad
	}

	return nil
}
