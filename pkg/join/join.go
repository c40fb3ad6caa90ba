// Package join implements joining and switching game channels.
//
// A join request is sent once; its answer arrives later as a continuation
// on the transport's event loop. The continuation reconciles the session
// against the answer, leaves the previous channel and triggers the
// follow-up requests that refresh the rest of the client state.
package join

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CuBnIcK/warfacebot/pkg/directory"
	"github.com/CuBnIcK/warfacebot/pkg/model"
	"github.com/CuBnIcK/warfacebot/pkg/protocol"
	"github.com/CuBnIcK/warfacebot/pkg/stream"
)

// detachTimeout bounds the write of a fire-and-forget request.
const detachTimeout = 10 * time.Second

// Sender sends an IQ request. A nil handler marks a detached request whose
// answer nobody waits for.
type Sender interface {
	SendIQ(ctx context.Context, to string, q protocol.Query, handler stream.Handler) error
}

// Collaborators are the operations a successful join triggers. Each one is
// fire-and-forget: the workflow never waits for or inspects its outcome.
type Collaborators interface {
	LeaveGameRoom(ctx context.Context)
	ShopGetOffers(ctx context.Context)
	GetPlayerStats(ctx context.Context)
	GetAchievements(ctx context.Context, profileID string)
	MissionListUpdate(ctx context.Context)
	PlayerStatus(ctx context.Context, status model.Status)
	ConfirmNotification(ctx context.Context, channel string, n protocol.Notification)
}

// Params are the fixed request fields taken from client configuration.
type Params struct {
	Domain      string
	GameVersion string
	RegionID    string
	HardwareID  int32
	BuildType   string
}

// Dependencies are the collaborators a Dispatcher works with.
type Dependencies struct {
	Session       *model.Session
	Sender        Sender
	Directory     directory.Directory
	Collaborators Collaborators
	Metrics       *Metrics // optional
}

var (
	ErrMissingSession = errors.New("join: missing session")
	ErrMissingSender  = errors.New("join: missing sender")
)

// Dispatcher issues join and switch requests for one session.
//
// Like the Session it owns, a Dispatcher must only be used from the
// transport's event loop. Overlapping requests are not guarded against;
// callers issue one request at a time.
type Dispatcher struct {
	params  Params
	session *model.Session
	sender  Sender
	dir     directory.Directory
	collab  Collaborators
	metrics *Metrics
}

// New creates a Dispatcher.
func New(params Params, deps Dependencies) (*Dispatcher, error) {
	if deps.Session == nil {
		return nil, ErrMissingSession
	}
	if deps.Sender == nil {
		return nil, ErrMissingSender
	}
	if params.Domain == "" {
		params.Domain = protocol.DefaultDomain
	}
	if deps.Directory == nil {
		deps.Directory = directory.NewMemory()
	}
	if deps.Collaborators == nil {
		deps.Collaborators = nopCollaborators{}
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	return &Dispatcher{
		params:  params,
		session: deps.Session,
		sender:  deps.Sender,
		dir:     deps.Directory,
		collab:  deps.Collaborators,
		metrics: deps.Metrics,
	}, nil
}

// Metrics returns the dispatcher's counters.
func (d *Dispatcher) Metrics() *Metrics {
	return d.metrics
}

// request is the state carried from dispatch to the continuation.
type request struct {
	channel  string
	isSwitch bool
	done     func(error)

	metrics  *Metrics
	released bool
}

func (r *request) release() {
	if r.released {
		return
	}
	r.released = true
	r.metrics.InFlight.Add(-1)
	r.metrics.Released.Add(1)
}

// Join enters channel. The first entry into the channel system is a join
// sent to the matchmaking service; once the session sits in a channel it is
// a switch sent to the target channel's masterserver.
//
// Join returns as soon as the request is written. done, when non-nil, runs
// on the event loop after the answer is processed: with nil on success or
// an *Error on a protocol error. It is not called when the request is
// abandoned. An empty channel is a no-op.
func (d *Dispatcher) Join(ctx context.Context, channel string, done func(error)) error {
	if channel == "" {
		return nil
	}

	r := &request{
		channel:  channel,
		isSwitch: d.session.Online.Status.Joined(),
		done:     done,
		metrics:  d.metrics,
	}

	login := protocol.ChannelLogin{
		Version:   d.params.GameVersion,
		Token:     d.session.Online.ActiveToken,
		RegionID:  d.params.RegionID,
		ProfileID: d.session.Profile.ID,
		UserID:    d.session.Online.ID,
		Resource:  channel,
		BuildType: d.params.BuildType,
	}

	var (
		to   string
		q    protocol.Query
		kind string
	)
	if r.isSwitch {
		to, q, kind = protocol.MasterServer(d.params.Domain, channel), protocol.SwitchChannel(login), "switch"
		d.metrics.Switches.Add(1)
	} else {
		to, q, kind = protocol.K01(d.params.Domain), protocol.JoinChannel(login, d.params.HardwareID), "join"
		d.metrics.Joins.Add(1)
	}

	d.metrics.InFlight.Add(1)
	if err := d.sender.SendIQ(ctx, to, q, func(iq *protocol.IQ) { d.complete(r, iq) }); err != nil {
		r.release()
		return fmt.Errorf("join: send %s request: %w", kind, err)
	}

	slog.Debug("channel request sent", "kind", kind, "channel", channel, "to", to)
	return nil
}

// complete is the continuation of a join or switch request. It runs once
// per request and always releases the request state.
func (d *Dispatcher) complete(r *request, iq *protocol.IQ) {
	defer r.release()

	switch {
	case iq == nil:
		d.metrics.Abandoned.Add(1)
		slog.Debug("channel request abandoned", "channel", r.channel)
	case iq.IsError():
		d.fail(r, iq)
	default:
		d.succeed(r, iq)
	}
}

func (d *Dispatcher) fail(r *request, iq *protocol.IQ) {
	err := &Error{}
	if iq.Error != nil {
		err.Code = iq.Error.Code()
		err.CustomCode = iq.Error.CustomCode()
	}
	d.metrics.Failed.Add(1)
	slog.Error("failed to join channel", "channel", r.channel, "reason", err.Reason())

	// The target may hold a half-open login; release it unless it is the
	// channel the session still sits in.
	d.logoutPrevious(r.channel)

	if r.done != nil {
		r.done(err)
	}
}

func (d *Dispatcher) succeed(r *request, iq *protocol.IQ) {
	ctx, cancel := context.WithTimeout(context.Background(), detachTimeout)
	defer cancel()

	result := d.parse(r, iq)

	prior := d.session.Online.Channel
	d.collab.LeaveGameRoom(ctx)

	if result != nil {
		d.commitChannel(r.channel)
		applyResult(d.session, result)
		resolveWeapon(&d.session.Profile, result)
		d.logoutPrevious(prior)
		d.cascade(ctx, result)
	}

	d.metrics.Succeeded.Add(1)
	if r.done != nil {
		r.done(nil)
	}
}

// parse decodes the answer. An absent payload, or a compressed one that
// cannot be inflated, yields nil: there is nothing to update. Any other
// payload yields a result, holding whatever fields could be read.
func (d *Dispatcher) parse(r *request, iq *protocol.IQ) *protocol.JoinResult {
	content, err := protocol.QueryContent(iq.QueryInner())
	if err != nil {
		slog.Warn("unreadable channel answer", "channel", r.channel, "err", err)
		return nil
	}
	if content == nil {
		return nil
	}
	result, err := protocol.ParseJoinResult(content)
	if err != nil {
		slog.Warn("malformed channel answer, keeping fields read so far", "channel", r.channel, "err", err)
	}
	if result == nil {
		result = &protocol.JoinResult{}
	}
	return result
}

// detach sends a request nobody waits for. Failures are only logged.
func (d *Dispatcher) detach(ctx context.Context, to string, q protocol.Query) {
	if err := d.sender.SendIQ(ctx, to, q, nil); err != nil {
		slog.Debug("detached request failed", "to", to, "err", err)
	}
}

type nopCollaborators struct{}

func (nopCollaborators) LeaveGameRoom(context.Context)                                      {}
func (nopCollaborators) ShopGetOffers(context.Context)                                      {}
func (nopCollaborators) GetPlayerStats(context.Context)                                     {}
func (nopCollaborators) GetAchievements(context.Context, string)                            {}
func (nopCollaborators) MissionListUpdate(context.Context)                                  {}
func (nopCollaborators) PlayerStatus(context.Context, model.Status)                         {}
func (nopCollaborators) ConfirmNotification(context.Context, string, protocol.Notification) {}
