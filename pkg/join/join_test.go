package join

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/CuBnIcK/warfacebot/pkg/directory"
	"github.com/CuBnIcK/warfacebot/pkg/model"
	"github.com/CuBnIcK/warfacebot/pkg/protocol"
	"github.com/CuBnIcK/warfacebot/pkg/stream"
)

// recorder is both the transport and the collaborators, so a single log
// captures the relative order of everything the workflow does.
type recorder struct {
	log      []string
	bodies   map[string][]string // query bodies by element name
	handlers []stream.Handler
	sendErr  error
}

func (r *recorder) SendIQ(_ context.Context, to string, q protocol.Query, h stream.Handler) error {
	if r.sendErr != nil {
		return r.sendErr
	}
	r.log = append(r.log, "send "+to+" "+queryName(q))
	if r.bodies == nil {
		r.bodies = make(map[string][]string)
	}
	r.bodies[queryName(q)] = append(r.bodies[queryName(q)], q.Body())
	if h != nil {
		r.handlers = append(r.handlers, h)
	}
	return nil
}

func (r *recorder) LeaveGameRoom(context.Context)  { r.log = append(r.log, "leave") }
func (r *recorder) ShopGetOffers(context.Context)  { r.log = append(r.log, "shop") }
func (r *recorder) GetPlayerStats(context.Context) { r.log = append(r.log, "stats") }
func (r *recorder) GetAchievements(_ context.Context, profileID string) {
	r.log = append(r.log, "achievements "+profileID)
}
func (r *recorder) MissionListUpdate(context.Context) { r.log = append(r.log, "missions") }
func (r *recorder) PlayerStatus(_ context.Context, s model.Status) {
	r.log = append(r.log, "status "+s.String())
}
func (r *recorder) ConfirmNotification(_ context.Context, channel string, n protocol.Notification) {
	r.log = append(r.log, "confirm "+channel+" "+n.ID)
}

// answer delivers iq to the most recent tracked request.
func (r *recorder) answer(t *testing.T, iq *protocol.IQ) {
	t.Helper()
	if len(r.handlers) == 0 {
		t.Fatalf("no tracked request to answer")
	}
	h := r.handlers[len(r.handlers)-1]
	r.handlers = r.handlers[:len(r.handlers)-1]
	r.log = nil
	r.bodies = nil
	h(iq)
}

func queryName(q protocol.Query) string {
	body := q.Body()
	if end := strings.IndexAny(body, " />"); end > 1 {
		return body[1:end]
	}
	return body
}

func decodeIQ(t *testing.T, raw string) *protocol.IQ {
	t.Helper()
	iq, err := protocol.NewDecoder(strings.NewReader(raw)).Next()
	if err != nil {
		t.Fatalf("decode %q: %v", raw, err)
	}
	return iq
}

func resultIQ(t *testing.T, payload string) *protocol.IQ {
	t.Helper()
	return decodeIQ(t, "<iq id='1' type='result'><query xmlns='urn:cryonline:k01'>"+payload+"</query></iq>")
}

func errorIQ(t *testing.T, code, custom int) *protocol.IQ {
	t.Helper()
	return decodeIQ(t, fmt.Sprintf("<iq id='1' type='error'><error type='cancel' code='%d' custom_code='%d'/></iq>", code, custom))
}

type fixture struct {
	session *model.Session
	rec     *recorder
	d       *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := directory.NewMemory(
		model.Channel{Resource: "pve_1", ServerID: 1, Type: "pve"},
		model.Channel{Resource: "pvp_pro_2", ServerID: 2, Type: "pvp_pro"},
	)
	session := model.NewSession("bot@warface/GameClient", "p42", "tok")
	rec := &recorder{}
	d, err := New(Params{GameVersion: "1.2.3", RegionID: "global", HardwareID: 77, BuildType: "--release"}, Dependencies{
		Session:       session,
		Sender:        rec,
		Directory:     dir,
		Collaborators: rec,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{session: session, rec: rec, d: d}
}

// join dispatches a request and returns a pointer to the recorded outcome.
func (f *fixture) join(t *testing.T, channel string) *outcome {
	t.Helper()
	o := &outcome{}
	if err := f.d.Join(context.Background(), channel, func(err error) {
		o.calls++
		o.err = err
	}); err != nil {
		t.Fatalf("Join(%q): %v", channel, err)
	}
	return o
}

type outcome struct {
	calls int
	err   error
}

const fullJoin = `<join_channel><character nick='bot' current_class='1' experience='15200'
 pvp_rating_points='1300' banner_badge='12' banner_mark='3' banner_stripe='7'
 game_money='5000' crown_money='300' cry_money='10'>
<item id='1' name='ar03_shop' slot='1' equipped='1'/>
<item id='2' name='mg03_shop' slot='32' equipped='1'/>
<unlocked_item id='10'/><unlocked_item id='11'/><unlocked_item id='12'/>
<expired_item id='500'/><expired_item id='501'/><expired_item id='502'/>
<notifications><notif id='900' type='8'/><notif id='901' type='64'/></notifications>
</character></join_channel>`

func TestNewRequiresSessionAndSender(t *testing.T) {
	if _, err := New(Params{}, Dependencies{Sender: &recorder{}}); !errors.Is(err, ErrMissingSession) {
		t.Errorf("New without session: got %v, want ErrMissingSession", err)
	}
	if _, err := New(Params{}, Dependencies{Session: &model.Session{}}); !errors.Is(err, ErrMissingSender) {
		t.Errorf("New without sender: got %v, want ErrMissingSender", err)
	}
}

func TestJoinEmptyChannelIsNoop(t *testing.T) {
	f := newFixture(t)
	called := false
	if err := f.d.Join(context.Background(), "", func(error) { called = true }); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if len(f.rec.log) != 0 || called {
		t.Fatalf("expected no activity, got log %v called=%v", f.rec.log, called)
	}
	if got := f.d.Metrics().InFlight.Load(); got != 0 {
		t.Errorf("InFlight = %d, want 0", got)
	}
}

func TestJoinRoutesByStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   model.Status
		wantTo   string
		wantName string
		wantHW   bool
	}{
		{"offline joins through k01", model.StatusOffline, "k01.warface", "join_channel", true},
		{"online only still joins", model.StatusOnline, "k01.warface", "join_channel", true},
		{"lobby switches", model.StatusOnline | model.StatusLobby, "masterserver@warface/pvp_pro_2", "switch_channel", false},
		{"playing switches", model.StatusPlaying, "masterserver@warface/pvp_pro_2", "switch_channel", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.session.Online.Status = tt.status

			var gotTo string
			var gotQuery protocol.Query
			f.d.sender = senderFunc(func(to string, q protocol.Query) {
				gotTo, gotQuery = to, q
			})
			f.join(t, "pvp_pro_2")

			if gotTo != tt.wantTo {
				t.Errorf("to = %q, want %q", gotTo, tt.wantTo)
			}
			if name := queryName(gotQuery); name != tt.wantName {
				t.Errorf("query = %q, want %q", name, tt.wantName)
			}
			body := gotQuery.Body()
			for _, want := range []string{
				"version='1.2.3'", "token='tok'", "region_id='global'", "profile_id='p42'",
				"user_id='bot@warface/GameClient'", "resource='pvp_pro_2'", "build_type='--release'",
			} {
				if !strings.Contains(body, want) {
					t.Errorf("query %s: missing %s", body, want)
				}
			}
			if got := strings.Contains(body, "hw_id='77'"); got != tt.wantHW {
				t.Errorf("hw_id present = %v, want %v", got, tt.wantHW)
			}
		})
	}
}

type senderFunc func(to string, q protocol.Query)

func (f senderFunc) SendIQ(_ context.Context, to string, q protocol.Query, _ stream.Handler) error {
	f(to, q)
	return nil
}

func TestJoinSendFailureReleasesRequest(t *testing.T) {
	f := newFixture(t)
	f.rec.sendErr = stream.ErrClosed

	err := f.d.Join(context.Background(), "pve_1", func(error) { t.Errorf("done called after send failure") })
	if !errors.Is(err, stream.ErrClosed) {
		t.Fatalf("Join: got %v, want ErrClosed", err)
	}
	m := f.d.Metrics().Snapshot()
	if m.InFlight != 0 || m.Released != 1 {
		t.Errorf("InFlight=%d Released=%d, want 0 and 1", m.InFlight, m.Released)
	}
}

func TestFirstJoinSuccess(t *testing.T) {
	f := newFixture(t)
	o := f.join(t, "pve_1")
	f.rec.answer(t, resultIQ(t, fullJoin))

	if o.calls != 1 || o.err != nil {
		t.Fatalf("done: calls=%d err=%v, want one nil call", o.calls, o.err)
	}

	want := model.Session{
		Online: model.Online{
			Status:      model.StatusOffline,
			Channel:     "pve_1",
			ChannelType: "pve",
			ActiveToken: "tok",
			ID:          "bot@warface/GameClient",
		},
		Profile: model.Profile{
			ID:            "p42",
			Experience:    15200,
			Money:         model.Money{Game: 5000, Crown: 300, Cry: 10},
			Banner:        model.Banner{Badge: 12, Mark: 3, Stripe: 7},
			PrimaryWeapon: "mg03_shop",
			Stats:         model.Stats{PvPRatingPoints: 1300, ItemsUnlocked: 3},
		},
	}
	if diff := cmp.Diff(want, f.session.Snapshot()); diff != "" {
		t.Errorf("session mismatch (-want +got):\n%s", diff)
	}

	wantLog := []string{
		"leave",
		"send masterserver@warface/pve_1 notify_expired_items",
		"confirm pve_1 900",
		"confirm pve_1 901",
		"shop",
		"stats",
		"achievements p42",
		"missions",
		"status online|lobby",
	}
	if diff := cmp.Diff(wantLog, f.rec.log); diff != "" {
		t.Errorf("activity mismatch (-want +got):\n%s", diff)
	}

	wantExpired := []string{"<notify_expired_items><item item_id='500'/><item item_id='501'/><item item_id='502'/></notify_expired_items>"}
	if diff := cmp.Diff(wantExpired, f.rec.bodies["notify_expired_items"]); diff != "" {
		t.Errorf("expired items batch mismatch (-want +got):\n%s", diff)
	}

	m := f.d.Metrics().Snapshot()
	if m.Joins != 1 || m.Succeeded != 1 || m.InFlight != 0 || m.Released != 1 {
		t.Errorf("metrics = %+v", m)
	}
	if m.ExpiredAcks != 1 || m.NotificationAcks != 2 || m.LogoutNotices != 0 {
		t.Errorf("ack metrics = %+v", m)
	}
}

func TestSwitchLeavesPriorChannel(t *testing.T) {
	f := newFixture(t)
	f.session.Online.Status = model.StatusOnline | model.StatusLobby
	f.session.Online.Channel = "pve_1"
	f.session.Online.ChannelType = "pve"
	f.session.Profile.Money = model.Money{Game: 1, Crown: 2, Cry: 3}

	o := f.join(t, "pvp_pro_2")
	f.rec.answer(t, resultIQ(t, `<switch_channel><character experience='20000' game_money='999' crown_money='999' cry_money='999'/></switch_channel>`))

	if o.calls != 1 || o.err != nil {
		t.Fatalf("done: calls=%d err=%v", o.calls, o.err)
	}
	s := f.session.Snapshot()
	if s.Online.Channel != "pvp_pro_2" || s.Online.ChannelType != "pvp_pro" {
		t.Errorf("channel = %q/%q, want pvp_pro_2/pvp_pro", s.Online.Channel, s.Online.ChannelType)
	}
	if s.Profile.Experience != 20000 {
		t.Errorf("Experience = %d, want 20000", s.Profile.Experience)
	}
	if diff := cmp.Diff(model.Money{Game: 1, Crown: 2, Cry: 3}, s.Profile.Money); diff != "" {
		t.Errorf("money changed by a switch answer (-want +got):\n%s", diff)
	}

	wantLog := []string{
		"leave",
		"send masterserver@warface/pve_1 channel_logout",
		"shop",
		"stats",
		"achievements p42",
		"missions",
		"status online|lobby",
	}
	if diff := cmp.Diff(wantLog, f.rec.log); diff != "" {
		t.Errorf("activity mismatch (-want +got):\n%s", diff)
	}
	if got := f.d.Metrics().Switches.Load(); got != 1 {
		t.Errorf("Switches = %d, want 1", got)
	}
}

func TestRejoinSameChannelSendsNoLogout(t *testing.T) {
	f := newFixture(t)
	f.session.Online.Status = model.StatusOnline | model.StatusLobby
	f.session.Online.Channel = "pve_1"

	f.join(t, "pve_1")
	f.rec.answer(t, resultIQ(t, `<switch_channel><character experience='1'/></switch_channel>`))

	for _, entry := range f.rec.log {
		if strings.HasSuffix(entry, "channel_logout") {
			t.Fatalf("unexpected logout: %v", f.rec.log)
		}
	}
}

func TestUnknownChannelClearsType(t *testing.T) {
	f := newFixture(t)
	f.session.Online.Status = model.StatusOnline | model.StatusLobby
	f.session.Online.Channel = "pve_1"
	f.session.Online.ChannelType = "pve"

	f.join(t, "unlisted_9")
	f.rec.answer(t, resultIQ(t, `<switch_channel><character/></switch_channel>`))

	if got := f.session.Online.ChannelType; got != "" {
		t.Errorf("ChannelType = %q, want empty", got)
	}
	if got := f.session.Online.Channel; got != "unlisted_9" {
		t.Errorf("Channel = %q, want unlisted_9", got)
	}
}

func TestIgnoreZeroValues(t *testing.T) {
	f := newFixture(t)
	f.session.Profile = model.Profile{
		ID:         "p42",
		Experience: 100,
		Money:      model.Money{Game: 7, Crown: 8, Cry: 9},
		Banner:     model.Banner{Badge: 1, Mark: 2, Stripe: 3},
		Stats:      model.Stats{PvPRatingPoints: 50, ItemsUnlocked: 4},
	}
	before := f.session.Profile

	f.join(t, "pve_1")
	f.rec.answer(t, resultIQ(t, `<join_channel><character experience='0' pvp_rating_points='-5'
 banner_badge='0' banner_mark='' banner_stripe='x' game_money='0' crown_money='0' cry_money='-1'/></join_channel>`))

	if diff := cmp.Diff(before, f.session.Profile); diff != "" {
		t.Errorf("zero values overwrote profile (-want +got):\n%s", diff)
	}
}

func TestUnlockedItemsCapped(t *testing.T) {
	f := newFixture(t)
	payload := "<join_channel><character>" + strings.Repeat("<unlocked_item id='1'/>", 150) + "</character></join_channel>"

	f.join(t, "pve_1")
	f.rec.answer(t, resultIQ(t, payload))

	if got := f.session.Profile.Stats.ItemsUnlocked; got != MaxUnlockedItems {
		t.Errorf("ItemsUnlocked = %d, want %d", got, MaxUnlockedItems)
	}
}

func TestEmptyAnswerChangesNothing(t *testing.T) {
	tests := []struct {
		name string
		iq   string
	}{
		{"no query", "<iq id='1' type='result'/>"},
		{"empty query", "<iq id='1' type='result'><query xmlns='urn:cryonline:k01'/></iq>"},
		{"corrupt compressed data", "<iq id='1' type='result'><query xmlns='urn:cryonline:k01'><data query_name='join_channel' compressedData='!!!'/></query></iq>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.session.Online.Status = model.StatusOnline | model.StatusLobby
			f.session.Online.Channel = "pve_1"
			before := f.session.Snapshot()

			o := f.join(t, "pvp_pro_2")
			f.rec.answer(t, decodeIQ(t, tt.iq))

			if o.calls != 1 || o.err != nil {
				t.Fatalf("done: calls=%d err=%v, want one nil call", o.calls, o.err)
			}
			if diff := cmp.Diff(before, f.session.Snapshot()); diff != "" {
				t.Errorf("session changed (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]string{"leave"}, f.rec.log); diff != "" {
				t.Errorf("activity mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCompressedAnswer(t *testing.T) {
	f := newFixture(t)
	data, err := protocol.Compress("join_channel", []byte(fullJoin))
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}

	f.join(t, "pve_1")
	f.rec.answer(t, resultIQ(t, data))

	if got := f.session.Profile.Experience; got != 15200 {
		t.Errorf("Experience = %d, want 15200", got)
	}
	if got := f.session.Online.Channel; got != "pve_1" {
		t.Errorf("Channel = %q, want pve_1", got)
	}
}

func TestMalformedCompressedSwitchStillCommits(t *testing.T) {
	f := newFixture(t)
	f.session.Online.Status = model.StatusOnline | model.StatusLobby
	f.session.Online.Channel = "pve_1"

	data, err := protocol.Compress("switch_channel", []byte(`<switch_channel><character experience='900'/><clan name='x&y'/></switch_channel>`))
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}

	o := f.join(t, "pvp_pro_2")
	f.rec.answer(t, resultIQ(t, data))

	if o.calls != 1 || o.err != nil {
		t.Fatalf("done: calls=%d err=%v, want one nil call", o.calls, o.err)
	}
	s := f.session.Snapshot()
	if s.Online.Channel != "pvp_pro_2" || s.Online.ChannelType != "pvp_pro" {
		t.Errorf("channel = %q/%q, want pvp_pro_2/pvp_pro", s.Online.Channel, s.Online.ChannelType)
	}
	if s.Profile.Experience != 900 {
		t.Errorf("Experience = %d, want 900", s.Profile.Experience)
	}

	wantLog := []string{
		"leave",
		"send masterserver@warface/pve_1 channel_logout",
		"shop",
		"stats",
		"achievements p42",
		"missions",
		"status online|lobby",
	}
	if diff := cmp.Diff(wantLog, f.rec.log); diff != "" {
		t.Errorf("activity mismatch (-want +got):\n%s", diff)
	}
}

func TestUnterminatedAnswerKeepsFieldsRead(t *testing.T) {
	f := newFixture(t)
	data, err := protocol.Compress("join_channel", []byte(`<join_channel><character experience='77'/><!-- cut`))
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}

	o := f.join(t, "pve_1")
	f.rec.answer(t, resultIQ(t, data))

	if o.calls != 1 || o.err != nil {
		t.Fatalf("done: calls=%d err=%v, want one nil call", o.calls, o.err)
	}
	if got := f.session.Online.Channel; got != "pve_1" {
		t.Errorf("Channel = %q, want pve_1", got)
	}
	if got := f.session.Profile.Experience; got != 77 {
		t.Errorf("Experience = %d, want 77", got)
	}
}

func TestErrorAnswers(t *testing.T) {
	tests := []struct {
		code, custom int
		want         string
	}{
		{1006, 0, "QoS limit reached"},
		{503, 0, "Invalid channel"},
		{8, 0, "Invalid token or user id"},
		{8, 1, "Profile does not exist"},
		{8, 2, "Game version mismatch"},
		{8, 3, "Banned"},
		{8, 5, "Rank restricted"},
		{8, 4, "8:4"},
		{500, 0, "500:0"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			f := newFixture(t)
			before := f.session.Snapshot()

			o := f.join(t, "pve_1")
			f.rec.answer(t, errorIQ(t, tt.code, tt.custom))

			if o.calls != 1 {
				t.Fatalf("done called %d times, want 1", o.calls)
			}
			var jerr *Error
			if !errors.As(o.err, &jerr) {
				t.Fatalf("done error = %v, want *Error", o.err)
			}
			if got := jerr.Reason(); got != tt.want {
				t.Errorf("Reason() = %q, want %q", got, tt.want)
			}
			if got := jerr.Error(); got != "join channel: "+tt.want {
				t.Errorf("Error() = %q", got)
			}
			if diff := cmp.Diff(before, f.session.Snapshot()); diff != "" {
				t.Errorf("session changed on error (-want +got):\n%s", diff)
			}
			if len(f.rec.log) != 0 {
				t.Errorf("unexpected activity: %v", f.rec.log)
			}
			if m := f.d.Metrics().Snapshot(); m.Failed != 1 || m.InFlight != 0 {
				t.Errorf("metrics = %+v", m)
			}
		})
	}
}

func TestErrorAnswerLogsOutOfRequestedChannel(t *testing.T) {
	tests := []struct {
		name    string
		current string
		want    []string
	}{
		{"no channel yet", "", nil},
		{"same channel", "pvp_pro_2", nil},
		{"other channel", "pve_1", []string{"send masterserver@warface/pvp_pro_2 channel_logout"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.current != "" {
				f.session.Online.Status = model.StatusOnline | model.StatusLobby
				f.session.Online.Channel = tt.current
			}

			f.join(t, "pvp_pro_2")
			f.rec.answer(t, errorIQ(t, 8, 5))

			if diff := cmp.Diff(tt.want, f.rec.log); diff != "" {
				t.Errorf("activity mismatch (-want +got):\n%s", diff)
			}
			if got := f.session.Online.Channel; got != tt.current {
				t.Errorf("Channel = %q, want %q", got, tt.current)
			}
		})
	}
}

func TestAbandonedRequest(t *testing.T) {
	f := newFixture(t)
	before := f.session.Snapshot()

	o := f.join(t, "pve_1")
	f.rec.answer(t, nil)

	if o.calls != 0 {
		t.Errorf("done called %d times on abandonment", o.calls)
	}
	if diff := cmp.Diff(before, f.session.Snapshot()); diff != "" {
		t.Errorf("session changed (-want +got):\n%s", diff)
	}
	if len(f.rec.log) != 0 {
		t.Errorf("unexpected activity: %v", f.rec.log)
	}
	m := f.d.Metrics().Snapshot()
	if m.Abandoned != 1 || m.InFlight != 0 || m.Released != 1 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestNilCallback(t *testing.T) {
	f := newFixture(t)
	if err := f.d.Join(context.Background(), "pve_1", nil); err != nil {
		t.Fatalf("Join: %v", err)
	}
	f.rec.answer(t, resultIQ(t, fullJoin))

	if got := f.session.Online.Channel; got != "pve_1" {
		t.Errorf("Channel = %q, want pve_1", got)
	}
}

func TestResolveWeapon(t *testing.T) {
	items := []protocol.Item{
		{Name: "rifle", Equipped: true, Slot: 1},
		{Name: "heavy_spare", Equipped: false, Slot: 32},
		{Name: "heavy_first", Equipped: true, Slot: 32},
		{Name: "heavy_last", Equipped: true, Slot: 32},
		{Name: "medic", Equipped: true, Slot: 1 << 15},
	}

	tests := []struct {
		name  string
		class int64
		want  string
	}{
		{"rifleman", 0, "rifle"},
		{"last equipped wins", 1, "heavy_last"},
		{"sniper has nothing equipped", 2, "previous"},
		{"medic", 3, "medic"},
		{"out of range class", 13, "previous"},
		{"negative class", -1, "previous"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &model.Profile{PrimaryWeapon: "previous"}
			resolveWeapon(p, &protocol.JoinResult{CurrentClass: tt.class, Items: items})
			if p.PrimaryWeapon != tt.want {
				t.Errorf("PrimaryWeapon = %q, want %q", p.PrimaryWeapon, tt.want)
			}
		})
	}
}

func TestReasonTable(t *testing.T) {
	if _, ok := Reason(8, 4); ok {
		t.Errorf("Reason(8, 4) classified, want unknown")
	}
	if got, ok := Reason(503, 9); !ok || got != "Invalid channel" {
		t.Errorf("Reason(503, 9) = %q, %v", got, ok)
	}
}
