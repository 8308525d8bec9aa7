package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tophand/backend/internal/apperr"
	"github.com/tophand/backend/internal/metrics"
	"github.com/tophand/backend/internal/models"
	"github.com/tophand/backend/internal/ports"
)

// Channel delivers a message over one transport. Send must return promptly
// once ctx is done; the escalator does not start the next channel until the
// current Send has returned.
type Channel interface {
	Name() string
	Send(ctx context.Context, recipientID, message string, data map[string]any) (Delivery, error)
}

// Delivery is what a transport reports back. A nil error with a non-delivered
// status is an explicit failure.
type Delivery struct {
	Status      string
	DeliveredAt *time.Time
	Error       string
}

type State string

const (
	StatePending   State = "pending"
	StateTrying    State = "trying"
	StateDelivered State = "delivered"
	StateExhausted State = "exhausted"
)

type Result struct {
	Outcome  State
	Method   string
	Status   string
	Attempts []models.NotificationAttempt
	Latency  time.Duration
}

func (r Result) Delivered() bool { return r.Outcome == StateDelivered }

func (r Result) LatencyMs() int64 { return r.Latency.Milliseconds() }

type Config struct {
	// DefaultOrder is used when the recipient has no stored channel preference.
	DefaultOrder []string
	// AttemptTimeout bounds each channel attempt; zero means unbounded.
	AttemptTimeout time.Duration
}

// Escalator walks a recipient's channel preference list one channel at a
// time until a delivery succeeds or the list is exhausted.
type Escalator struct {
	channels map[string]Channel
	prefs    ports.PreferenceLookup
	cfg      Config
	logger   zerolog.Logger
	metrics  metrics.Recorder
	now      func() time.Time
}

func NewEscalator(prefs ports.PreferenceLookup, channels []Channel, cfg Config, logger zerolog.Logger, rec metrics.Recorder) *Escalator {
	if len(cfg.DefaultOrder) == 0 {
		cfg.DefaultOrder = []string{"sms", "push", "call"}
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	byName := make(map[string]Channel, len(channels))
	for _, ch := range channels {
		byName[strings.ToLower(ch.Name())] = ch
	}
	return &Escalator{
		channels: byName,
		prefs:    prefs,
		cfg:      cfg,
		logger:   logger,
		metrics:  rec,
		now:      time.Now,
	}
}

// escalation is the per-call state machine:
// pending -> trying(ch) -> delivered | trying(next) -> ... -> exhausted.
type escalation struct {
	state    State
	order    []string
	next     int
	channel  string
	attempts []models.NotificationAttempt
}

func (es *escalation) advance() {
	if es.next >= len(es.order) {
		es.state = StateExhausted
		return
	}
	es.channel = es.order[es.next]
	es.next++
	es.state = StateTrying
}

func (es *escalation) record(a models.NotificationAttempt) {
	es.attempts = append(es.attempts, a)
	if a.Status == models.AttemptDelivered {
		es.state = StateDelivered
		return
	}
	es.advance()
}

func (es *escalation) done() bool {
	return es.state == StateDelivered || es.state == StateExhausted
}

// Escalate always runs to resolution. Cancellation of ctx does not abandon
// the escalation; only AttemptTimeout bounds individual attempts.
func (e *Escalator) Escalate(ctx context.Context, recipientID string, n models.Notification) Result {
	ctx = context.WithoutCancel(ctx)
	prefs := e.preferences(ctx, recipientID)
	order := e.channelOrder(prefs, n)

	es := &escalation{state: StatePending, order: order}
	start := e.now()
	for !es.done() {
		switch es.state {
		case StatePending:
			es.advance()
		case StateTrying:
			es.record(e.attempt(ctx, es.channel, recipientID, prefs, n))
		}
	}

	res := Result{
		Outcome:  es.state,
		Attempts: es.attempts,
		Latency:  e.now().Sub(start),
		Status:   models.AttemptFailed,
	}
	if last := len(es.attempts) - 1; last >= 0 {
		res.Method = es.attempts[last].Method
		res.Status = es.attempts[last].Status
	}
	e.metrics.Escalation(string(res.Outcome), res.Latency)

	if res.Delivered() {
		e.logger.Info().
			Str("recipient_id", recipientID).
			Str("type", n.Type).
			Str("method", res.Method).
			Int("attempts", len(res.Attempts)).
			Int64("latency_ms", res.LatencyMs()).
			Msg("notification delivered")
	} else {
		e.logger.Warn().
			Str("recipient_id", recipientID).
			Str("type", n.Type).
			Strs("channels", order).
			Int64("latency_ms", res.LatencyMs()).
			Msg("notification escalation exhausted")
	}
	return res
}

func (e *Escalator) preferences(ctx context.Context, recipientID string) models.RecipientPreferences {
	if e.prefs == nil {
		return models.RecipientPreferences{UserID: recipientID}
	}
	prefs, err := e.prefs.GetPreferences(ctx, recipientID)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			e.logger.Warn().Err(err).Str("recipient_id", recipientID).Msg("preference lookup failed, using default channel order")
		}
		return models.RecipientPreferences{UserID: recipientID}
	}
	return prefs
}

func (e *Escalator) channelOrder(prefs models.RecipientPreferences, n models.Notification) []string {
	source := prefs.Channels
	if len(source) == 0 {
		source = e.cfg.DefaultOrder
	}
	quiet := inQuietHours(prefs.QuietHours, e.now()) && !urgent(n.Priority)

	seen := map[string]struct{}{}
	order := make([]string, 0, len(source))
	for _, name := range source {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		if quiet && name == "call" {
			continue
		}
		seen[name] = struct{}{}
		order = append(order, name)
	}
	return order
}

type sendResult struct {
	delivery Delivery
	err      error
}

func (e *Escalator) attempt(ctx context.Context, name, recipientID string, prefs models.RecipientPreferences, n models.Notification) models.NotificationAttempt {
	att := models.NotificationAttempt{Method: name, Timestamp: e.now()}
	ch, ok := e.channels[name]
	if !ok {
		att.Status = models.AttemptFailed
		att.Error = "channel not configured"
		e.observe(recipientID, att)
		return att
	}

	attemptCtx, cancel := ctx, context.CancelFunc(func() {})
	if e.cfg.AttemptTimeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, e.cfg.AttemptTimeout)
	}
	defer cancel()

	data := map[string]any{
		"type":     n.Type,
		"priority": n.Priority,
		"title":    n.Title,
	}
	for k, v := range n.Data {
		data[k] = v
	}
	if contact, ok := prefs.Contacts[name]; ok {
		data["contact"] = contact
	}

	done := make(chan sendResult, 1)
	go func() {
		d, err := ch.Send(attemptCtx, recipientID, n.Message, data)
		done <- sendResult{delivery: d, err: err}
	}()

	var r sendResult
	select {
	case <-attemptCtx.Done():
		// Attempts never overlap: wait for the abandoned send before moving on.
		<-done
		r = sendResult{err: attemptCtx.Err()}
	case r = <-done:
	}
	switch {
	case r.err != nil && errors.Is(r.err, context.DeadlineExceeded):
		att.Status = models.AttemptFailed
		att.Error = fmt.Sprintf("attempt timed out after %s", e.cfg.AttemptTimeout)
	case r.err != nil:
		att.Status = models.AttemptFailed
		att.Error = (&apperr.ChannelError{Channel: name, Err: r.err}).Error()
	case r.delivery.Status != models.AttemptDelivered:
		att.Status = models.AttemptFailed
		att.Error = r.delivery.Error
		if att.Error == "" {
			att.Error = "channel reported status " + r.delivery.Status
		}
	default:
		att.Status = models.AttemptDelivered
	}
	e.observe(recipientID, att)
	return att
}

func (e *Escalator) observe(recipientID string, att models.NotificationAttempt) {
	e.metrics.NotificationAttempt(att.Method, att.Status)
	e.logger.Debug().
		Str("recipient_id", recipientID).
		Str("method", att.Method).
		Str("status", att.Status).
		Str("error", att.Error).
		Msg("notification attempt")
}

func urgent(priority string) bool {
	return priority == models.PriorityHigh || priority == models.PriorityUrgent
}

// inQuietHours reports whether now falls inside the window. Windows may wrap
// midnight ("22:00"-"06:00").
func inQuietHours(q *models.QuietHours, now time.Time) bool {
	if q == nil {
		return false
	}
	loc := time.UTC
	if q.Timezone != "" {
		if l, err := time.LoadLocation(q.Timezone); err == nil {
			loc = l
		}
	}
	start, err1 := time.Parse("15:04", q.Start)
	end, err2 := time.Parse("15:04", q.End)
	if err1 != nil || err2 != nil {
		return false
	}
	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()
	s := start.Hour()*60 + start.Minute()
	en := end.Hour()*60 + end.Minute()
	if s == en {
		return false
	}
	if s < en {
		return minute >= s && minute < en
	}
	return minute >= s || minute < en
}
