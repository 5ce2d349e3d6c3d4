// Package controller keeps the device's tag state in sync with the remote
// actor resource. It decides, for every state change, whether to send a PUT
// for the current identity and when to DELETE the previous one.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/autoeyes/compass/internal/api"
)

// None is the selection value meaning "no direction" or "no urgency".
const None = "none"

// TimeLayout is the ISO-8601 form used for timeSeen, UTC with milliseconds.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// DefaultMinInterval is the shortest gap between two bearing-triggered sends.
const DefaultMinInterval = 50 * time.Millisecond

// Sender hands a composed request to the network without waiting for it.
type Sender interface {
	Send(req api.Request)
}

// State is a snapshot of the tags describing the device user.
// Empty strings mean "not selected".
type State struct {
	Identity   string
	Action     string
	Direction  string
	Urgency    string
	Bearing    int
	HasBearing bool
}

type throttle struct {
	lastBearing int
	sent        bool
	lastAt      time.Time
}

// Config tunes the controller.
type Config struct {
	MinInterval time.Duration
}

// Controller owns the tag and throttle state. It is driven by a single
// goroutine and does not lock; only CurrentIdentity may be called from others.
type Controller struct {
	cfg      Config
	state    State
	throttle throttle
	seq      uint64
	identity atomic.Value

	clock  clock.Clock
	sender Sender
	logger *slog.Logger

	sent       metric.Int64Counter
	suppressed metric.Int64Counter
}

// New creates a Controller with empty state.
func New(cfg Config, sender Sender, clk clock.Clock, logger *slog.Logger) (*Controller, error) {
	if sender == nil {
		return nil, fmt.Errorf("controller: nil sender")
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Controller{
		cfg:    cfg,
		clock:  clk,
		sender: sender,
		logger: logger,
	}

	m := meter()
	var err error
	c.sent, err = m.Int64Counter(
		"controller.requests.sent",
		metric.WithDescription("Requests handed to the sender"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sent counter: %w", err)
	}
	c.suppressed, err = m.Int64Counter(
		"controller.bearing.suppressed",
		metric.WithDescription("Bearing updates held back by the throttle"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating suppressed counter: %w", err)
	}

	return c, nil
}

// State returns a copy of the current tag state.
func (c *Controller) State() State {
	return c.state
}

// SetBearing floors the candidate and stores it. A PUT is sent only when an
// identity is selected, the value changed since the last bearing send and the
// minimum interval has passed.
func (c *Controller) SetBearing(candidate float64) {
	b := int(math.Floor(candidate))
	c.state.Bearing = b
	c.state.HasBearing = true

	if c.state.Identity == "" {
		return
	}

	now := c.clock.Now()
	if c.throttle.sent && b == c.throttle.lastBearing {
		c.suppressed.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", "unchanged")))
		return
	}
	if c.throttle.sent && now.Sub(c.throttle.lastAt) < c.cfg.MinInterval {
		c.suppressed.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", "interval")))
		return
	}

	c.throttle = throttle{lastBearing: b, sent: true, lastAt: now}
	c.put()
}

// SetAction stores the action and sends immediately.
func (c *Controller) SetAction(action string) {
	c.state.Action = action
	c.put()
}

// SetDirection stores the direction and sends immediately.
func (c *Controller) SetDirection(direction string) {
	c.state.Direction = direction
	c.put()
}

// SetUrgency stores the urgency and sends immediately.
func (c *Controller) SetUrgency(urgency string) {
	c.state.Urgency = urgency
	c.put()
}

// SetIdentity switches the identity the device reports as. Leaving a previous
// identity first deletes its resource; the PUT for the new one follows.
func (c *Controller) SetIdentity(identity string) {
	if identity != c.state.Identity && c.state.Identity != "" {
		c.logger.Debug("leaving identity", "previous", c.state.Identity, "next", identity)
		c.send(c.compose(http.MethodDelete))
	}
	c.state.Identity = identity
	c.identity.Store(identity)
	c.put()
}

// CurrentIdentity returns the selected identity. It is safe to call from any
// goroutine.
func (c *Controller) CurrentIdentity() string {
	id, _ := c.identity.Load().(string)
	return id
}

func (c *Controller) put() {
	if c.state.Identity == "" {
		c.logger.Debug("no identity selected")
		return
	}
	c.send(c.compose(http.MethodPut))
}

func (c *Controller) send(req api.Request) {
	c.sent.Add(context.Background(), 1, metric.WithAttributes(attribute.String("method", req.Method)))
	c.sender.Send(req)
}

// compose builds a request for the current identity. timeSeen is taken now,
// not when the sample arrived.
func (c *Controller) compose(method string) api.Request {
	c.seq++

	q := url.Values{}
	q.Set("timeSeen", c.clock.Now().UTC().Format(TimeLayout))
	q.Set("seq", strconv.FormatUint(c.seq, 10))

	if method == http.MethodPut {
		if c.state.HasBearing {
			q.Set("bearing", strconv.Itoa(c.state.Bearing))
		}
		if c.state.Action != "" {
			q.Set("action", c.state.Action)
		}
		if present(c.state.Direction) {
			q.Set("direction", c.state.Direction)
		}
		if present(c.state.Urgency) {
			q.Set("urgency", c.state.Urgency)
		}
	}

	return api.Request{
		Method:   method,
		Identity: c.state.Identity,
		Query:    q,
		Seq:      c.seq,
	}
}

func present(v string) bool {
	return v != "" && v != None
}
