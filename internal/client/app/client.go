package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/atinyakov/liftlog/internal/client/authn"
	"github.com/atinyakov/liftlog/internal/client/collection"
	"github.com/atinyakov/liftlog/internal/client/config"
	"github.com/atinyakov/liftlog/internal/client/loading"
	"github.com/atinyakov/liftlog/internal/client/measurement"
	"github.com/atinyakov/liftlog/internal/client/offline"
	"github.com/atinyakov/liftlog/internal/client/remote"
	"github.com/atinyakov/liftlog/internal/client/session"
	"github.com/atinyakov/liftlog/internal/client/storage"
	"github.com/atinyakov/liftlog/internal/client/workout"
	"go.uber.org/zap"
)

const (
	requestTimeout = 30 * time.Second
	reloadTimeout  = 30 * time.Second

	// SignedOutMessage is shown whenever the session ends.
	SignedOutMessage = "Signed out. Use 'login' to continue."
)

// Client is a fully wired liftlog client.
type Client struct {
	Loading      *loading.Tracker
	Session      *session.Manager
	Queue        *offline.Queue
	Monitor      *offline.Monitor
	Workouts     *workout.Service
	Measurements *measurement.Service

	notifier offline.Notifier
	log      *zap.Logger
}

// New wires a Client over store. base is the innermost transport; nil means
// one built from cfg.CAFile.
func New(cfg config.Config, store storage.Store, base http.RoundTripper, notifier offline.Notifier, log *zap.Logger) (*Client, error) {
	if base == nil {
		var err error
		if base, err = remote.NewBaseTransport(cfg.CAFile); err != nil {
			return nil, err
		}
	}
	if notifier == nil {
		notifier = offline.NotifierFunc(func(string) {})
	}

	c := &Client{
		Loading:  loading.NewTracker(),
		notifier: notifier,
		log:      log,
	}
	c.Loading.Subscribe(func(busy bool) {
		log.Debug("loading state changed", zap.Bool("loading", busy))
	})

	plain, err := remote.NewClient(cfg.APIURL, c.httpClient(base))
	if err != nil {
		return nil, err
	}
	probe, err := remote.NewClient(cfg.APIURL, &http.Client{Transport: base, Timeout: requestTimeout})
	if err != nil {
		return nil, err
	}

	tokens := session.NewTokenStore(store, log)
	tokens.Load()
	c.Session = session.NewManager(tokens, remote.NewAuthClient(plain), log,
		session.WithTerminateHook(c.onSignedOut))

	authed := &authn.Transport{Base: base, Session: c.Session, Log: log}
	c.Queue = offline.NewQueue(store, c.httpClient(authed), notifier, log,
		offline.WithMaxAttempts(cfg.MaxAttempts),
		offline.WithReplayGate(c.Session.IsAuthenticated))

	api, err := remote.NewClient(cfg.APIURL, c.httpClient(&offline.CaptureTransport{
		Base:     authed,
		Queue:    c.Queue,
		Notifier: notifier,
	}))
	if err != nil {
		return nil, err
	}

	outbox := collection.WithOutbox(c.Queue)
	c.Workouts = workout.NewService(remote.NewResource[workout.Workout](api, remote.PathWorkouts), store, c.Session, log, outbox)
	c.Measurements = measurement.NewService(remote.NewResource[measurement.Measurement](api, remote.PathMeasurements), store, c.Session, log, outbox)

	c.Queue.OnReplayed(func(res offline.ReplayResult) {
		if res.Synced == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
		defer cancel()
		c.Reload(ctx)
	})
	c.Monitor = offline.NewMonitor(probe, c.Queue, log, cfg.ProbeInterval,
		offline.WithReadiness(c.Session.IsAuthenticated))
	return c, nil
}

func (c *Client) httpClient(rt http.RoundTripper) *http.Client {
	return &http.Client{
		Transport: &loading.Transport{Base: rt, Tracker: c.Loading},
		Timeout:   requestTimeout,
	}
}

// Start loads data and begins connectivity monitoring until ctx is done.
func (c *Client) Start(ctx context.Context) {
	c.Reload(ctx)
	c.Monitor.Start(ctx)
}

// Reload refreshes every domain service from its current source.
func (c *Client) Reload(ctx context.Context) {
	c.Workouts.Load(ctx)
	c.Measurements.Load(ctx)
}

func (c *Client) Login(ctx context.Context, email, password string) (session.User, error) {
	u, err := c.Session.Login(ctx, email, password)
	if err != nil {
		return session.User{}, err
	}
	c.signedIn(ctx)
	return u, nil
}

func (c *Client) Register(ctx context.Context, email, password string) (session.User, error) {
	u, err := c.Session.Register(ctx, email, password)
	if err != nil {
		return session.User{}, err
	}
	c.signedIn(ctx)
	return u, nil
}

func (c *Client) Logout() {
	c.Session.Logout()
}

// Sync replays the offline queue now.
func (c *Client) Sync(ctx context.Context) (offline.ReplayResult, error) {
	if !c.Session.IsAuthenticated() {
		return offline.ReplayResult{}, fmt.Errorf("sync: %w", session.ErrNoSession)
	}
	return c.Queue.Replay(ctx)
}

func (c *Client) signedIn(ctx context.Context) {
	c.Reload(ctx)
	c.Monitor.Trigger()
}

// onSignedOut runs after the session manager cleared the tokens.
func (c *Client) onSignedOut() {
	c.notifier.Notify(SignedOutMessage)
	ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
	defer cancel()
	c.Reload(ctx)
}
