package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vsachain/core/events"
	"vsachain/core/types"
	"vsachain/observability/metrics"
)

const (
	HeaderEvent      = "X-VSA-Event"
	HeaderSignature  = "X-VSA-Signature"
	HeaderDeliveryID = "X-VSA-Delivery"

	defaultMaxAttempts = 5
	defaultMinBackoff  = 2 * time.Second
	defaultMaxBackoff  = 30 * time.Second
	defaultQueueSize   = 256
	defaultTimeout     = 15 * time.Second
)

// Payload is the JSON body posted for every committed event.
type Payload struct {
	DeliveryID string            `json:"deliveryId"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	EmittedAt  time.Time         `json:"emittedAt"`
}

// Dispatcher posts committed events to one endpoint with retry and exponential
// backoff. It implements events.Emitter.
type Dispatcher struct {
	endpoint    string
	destination string
	secret      []byte
	filter      map[string]struct{}
	client      *http.Client
	maxAttempts int
	minBackoff  time.Duration
	maxBackoff  time.Duration
	queueSize   int
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan delivery
	wg     sync.WaitGroup
}

type delivery struct {
	id        string
	eventType string
	body      []byte
}

// Option mutates dispatcher configuration.
type Option func(*Dispatcher)

// WithHTTPClient overrides the HTTP client used for deliveries.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		if client != nil {
			d.client = client
		}
	}
}

// WithRetryPolicy overrides the retry configuration.
func WithRetryPolicy(maxAttempts int, minBackoff, maxBackoff time.Duration) Option {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = maxAttempts
		}
		if minBackoff > 0 {
			d.minBackoff = minBackoff
		}
		if maxBackoff >= minBackoff && maxBackoff > 0 {
			d.maxBackoff = maxBackoff
		}
	}
}

// WithEvents restricts deliveries to the listed event types.
func WithEvents(eventTypes ...string) Option {
	return func(d *Dispatcher) {
		for _, typ := range eventTypes {
			typ = strings.TrimSpace(typ)
			if typ == "" {
				continue
			}
			if d.filter == nil {
				d.filter = make(map[string]struct{})
			}
			d.filter[typ] = struct{}{}
		}
	}
}

// WithQueueSize bounds the number of pending deliveries.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

// WithLogger sets the logger used for dropped and failed deliveries.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher constructs a dispatcher and spawns the worker goroutine.
func NewDispatcher(endpoint string, secret []byte, opts ...Option) (*Dispatcher, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("webhook: endpoint required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("webhook: invalid endpoint %q", endpoint)
	}
	if len(secret) == 0 {
		return nil, errors.New("webhook: secret required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	dispatcher := &Dispatcher{
		endpoint:    endpoint,
		destination: parsed.Host,
		secret:      append([]byte(nil), secret...),
		client:      &http.Client{Timeout: defaultTimeout},
		maxAttempts: defaultMaxAttempts,
		minBackoff:  defaultMinBackoff,
		maxBackoff:  defaultMaxBackoff,
		queueSize:   defaultQueueSize,
		logger:      slog.Default(),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(dispatcher)
	}
	dispatcher.queue = make(chan delivery, dispatcher.queueSize)
	dispatcher.wg.Add(1)
	go dispatcher.worker()
	return dispatcher, nil
}

// Close stops the dispatcher and waits for the inflight delivery to finish.
// Queued deliveries that have not started are discarded.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.cancel()
	d.wg.Wait()
}

// Emit implements events.Emitter. Events outside the filter are ignored and a
// full queue drops the delivery.
func (d *Dispatcher) Emit(evt events.Event) {
	typed := events.ToTyped(evt)
	if typed == nil || !d.wants(typed.Type) {
		return
	}
	if err := d.Enqueue(typed); err != nil {
		metrics.Integrations().IncWebhookFailure(d.destination)
		d.logger.Warn("webhook delivery dropped",
			slog.String("destination", d.destination),
			slog.String("type", typed.Type),
			slog.Any("error", err))
	}
}

func (d *Dispatcher) wants(eventType string) bool {
	if d.filter == nil {
		return true
	}
	_, ok := d.filter[eventType]
	return ok
}

// Enqueue schedules a delivery without blocking.
func (d *Dispatcher) Enqueue(evt *types.Event) error {
	if d == nil {
		return errors.New("webhook: dispatcher not initialised")
	}
	if evt == nil {
		return errors.New("webhook: event required")
	}
	payload := Payload{
		DeliveryID: uuid.NewString(),
		Type:       evt.Type,
		Attributes: evt.Clone().Attributes,
		EmittedAt:  time.Now().UTC(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	select {
	case <-d.ctx.Done():
		return errors.New("webhook: dispatcher closed")
	default:
	}
	select {
	case d.queue <- delivery{id: payload.DeliveryID, eventType: payload.Type, body: data}:
		return nil
	default:
		return errors.New("webhook: queue full")
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.queue:
			d.process(job)
		case <-d.ctx.Done():
			return
		}
	}
}

// attemptTimeout bounds one delivery. Clients without a timeout get the
// default.
func (d *Dispatcher) attemptTimeout() time.Duration {
	if d.client.Timeout > 0 {
		return d.client.Timeout
	}
	return defaultTimeout
}

func (d *Dispatcher) process(job delivery) {
	attempt := 0
	backoff := d.minBackoff
	for {
		attempt++
		ctx, cancel := context.WithTimeout(d.ctx, d.attemptTimeout())
		err := d.send(ctx, job)
		cancel()
		if err == nil {
			metrics.Integrations().IncWebhookDelivery(d.destination)
			return
		}
		metrics.Integrations().IncWebhookFailure(d.destination)
		if attempt >= d.maxAttempts {
			d.logger.Error("webhook delivery abandoned",
				slog.String("destination", d.destination),
				slog.String("delivery", job.id),
				slog.Int("attempts", attempt),
				slog.Any("error", err))
			return
		}
		select {
		case <-time.After(backoff):
		case <-d.ctx.Done():
			return
		}
		backoff = nextBackoff(backoff, d.maxBackoff)
	}
}

func (d *Dispatcher) send(ctx context.Context, job delivery) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(job.body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, job.eventType)
	req.Header.Set(HeaderDeliveryID, job.id)
	req.Header.Set(HeaderSignature, Sign(d.secret, job.body))
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook: delivery failed with status %d", resp.StatusCode)
}

// Sign returns the signature header value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature header produced by Sign.
func Verify(secret, body []byte, header string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(strings.TrimSpace(header)))
}

func nextBackoff(current, ceiling time.Duration) time.Duration {
	next := current * 2
	if next > ceiling || next < current {
		return ceiling
	}
	return next
}
