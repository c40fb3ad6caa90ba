package protocol

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Item is an inventory entry of a join answer.
type Item struct {
	ID       string
	Name     string
	Equipped bool
	Slot     int64
}

// Notification is a pending notification the client must confirm.
type Notification struct {
	ID   string
	Type string
	Raw  string // inner XML, kept for logging
}

// JoinResult is the typed view of a join_channel or switch_channel answer.
//
// Scalar fields hold the first occurrence of the attribute anywhere in the
// payload; absent or unparseable values are zero.
type JoinResult struct {
	IsJoinChannel bool

	Experience      int64
	PvPRatingPoints int64
	BannerBadge     int64
	BannerMark      int64
	BannerStripe    int64
	GameMoney       int64
	CrownMoney      int64
	CryMoney        int64
	CurrentClass    int64

	Items         []Item
	UnlockedItems int
	ExpiredItems  []string
	Notifications []Notification
}

type scalarField struct {
	seen bool
	dst  *int64
}

func (r *JoinResult) scalars() map[string]*scalarField {
	return map[string]*scalarField{
		"experience":        {dst: &r.Experience},
		"pvp_rating_points": {dst: &r.PvPRatingPoints},
		"banner_badge":      {dst: &r.BannerBadge},
		"banner_mark":       {dst: &r.BannerMark},
		"banner_stripe":     {dst: &r.BannerStripe},
		"game_money":        {dst: &r.GameMoney},
		"crown_money":       {dst: &r.CrownMoney},
		"cry_money":         {dst: &r.CryMoney},
		"current_class":     {dst: &r.CurrentClass},
	}
}

type notifElement struct {
	ID    string `xml:"id,attr"`
	Type  string `xml:"type,attr"`
	Inner string `xml:",innerxml"`
}

// ParseJoinResult decodes a query payload in a single pass. Elements are
// matched by local name at any depth, in document order.
//
// The reader is lenient: unknown entities, bare ampersands and unclosed
// elements are accepted. When the payload still cannot be read to the end,
// the fields gathered so far are returned together with the error.
func ParseJoinResult(payload []byte) (*JoinResult, error) {
	r := &JoinResult{}
	if len(bytes.TrimSpace(payload)) == 0 {
		return r, nil
	}

	// The payload may hold several top-level elements.
	wrapped := make([]byte, 0, len(payload)+13)
	wrapped = append(wrapped, "<r>"...)
	wrapped = append(wrapped, payload...)
	wrapped = append(wrapped, "</r>"...)

	fields := r.scalars()
	dec := xml.NewDecoder(bytes.NewReader(wrapped))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return r, nil
			}
			return r, fmt.Errorf("protocol: parse join result: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		for _, a := range se.Attr {
			if f, ok := fields[a.Name.Local]; ok && !f.seen {
				f.seen = true
				*f.dst = parseInt(a.Value)
			}
		}

		switch se.Name.Local {
		case "join_channel":
			r.IsJoinChannel = true
		case "item":
			r.Items = append(r.Items, Item{
				ID:       attrValue(se, "id"),
				Name:     attrValue(se, "name"),
				Equipped: parseInt(attrValue(se, "equipped")) != 0,
				Slot:     parseInt(attrValue(se, "slot")),
			})
		case "unlocked_item":
			r.UnlockedItems++
		case "expired_item":
			if id := attrValue(se, "id"); id != "" {
				r.ExpiredItems = append(r.ExpiredItems, id)
			}
		case "notif":
			var n notifElement
			if err := dec.DecodeElement(&n, &se); err != nil {
				return r, fmt.Errorf("protocol: parse notification: %w", err)
			}
			r.Notifications = append(r.Notifications, Notification{
				ID:   n.ID,
				Type: n.Type,
				Raw:  n.Inner,
			})
		}
	}
}

func attrValue(se xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// parseInt reads a leading decimal integer the way the backend's attribute
// reader does: "12abc" is 12, garbage is 0.
func parseInt(s string) int64 {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0
	}
	return n
}
