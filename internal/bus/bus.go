// Package bus provides the in-process event bus: synchronous delivery in
// subscription order, handler error isolation, bounded history and exact
// latency percentiles. The bus does not persist and does not survive
// restart; producers commit storage transactions before emitting.
package bus

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Priority is metadata carried on events. It is used for logging and
// metrics only and never affects delivery order.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityNormal   Priority = "NORMAL"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Event is one emitted event. Data is a free-form payload map; subscribers
// define their own schemas for the keys they care about.
type Event struct {
	Name          string         `json:"name"`
	Data          map[string]any `json:"data"`
	Timestamp     time.Time      `json:"timestamp"`
	Priority      Priority       `json:"priority"`
	CorrelationID string         `json:"correlation_id"`
}

// Handler processes one event. A returned error is counted and logged but
// never aborts delivery to later handlers.
type Handler func(Event) error

// Metrics is a snapshot of the bus counters and latency percentiles.
// Percentiles are exact over the last 1000 samples per series, in
// milliseconds.
type Metrics struct {
	EventsEmitted   int64 `json:"events_emitted"`
	EventsDelivered int64 `json:"events_delivered"`
	HandlerErrors   int64 `json:"handler_errors"`

	TotalHandlerTimeMS  float64 `json:"total_handler_time_ms"`
	TotalEmissionTimeMS float64 `json:"total_emission_time_ms"`

	EventCounts map[string]int64 `json:"event_counts"`

	HandlerLatencyP50 float64 `json:"handler_latency_p50"`
	HandlerLatencyP95 float64 `json:"handler_latency_p95"`
	HandlerLatencyP99 float64 `json:"handler_latency_p99"`

	EmissionLatencyP50 float64 `json:"emission_latency_p50"`
	EmissionLatencyP95 float64 `json:"emission_latency_p95"`
	EmissionLatencyP99 float64 `json:"emission_latency_p99"`
}

const (
	defaultHistoryCapacity = 1000
	latencyWindow          = 1000
	defaultSlowThreshold   = 100 * time.Millisecond
)

type subscription struct {
	name    string
	handler Handler
}

// Bus is the event bus. All state is guarded by one bus-level lock;
// handlers execute on the emitting goroutine outside the lock, so handlers
// may emit recursively.
type Bus struct {
	mu sync.Mutex

	subscribers map[string][]subscription

	eventsEmitted   int64
	eventsDelivered int64
	handlerErrors   int64
	totalHandler    time.Duration
	totalEmission   time.Duration
	eventCounts     map[string]int64

	handlerLatencies  *ring[time.Duration]
	emissionLatencies *ring[time.Duration]
	history           *ring[Event]

	slowThreshold time.Duration
}

// Options configures a Bus.
type Options struct {
	// HistoryCapacity bounds the event history ring (default 1000).
	HistoryCapacity int
	// SlowHandlerThreshold marks handlers slower than this for logging
	// (default 100ms).
	SlowHandlerThreshold time.Duration
}

// New creates an event bus.
func New(opts Options) *Bus {
	if opts.HistoryCapacity <= 0 {
		opts.HistoryCapacity = defaultHistoryCapacity
	}
	if opts.SlowHandlerThreshold <= 0 {
		opts.SlowHandlerThreshold = defaultSlowThreshold
	}
	return &Bus{
		subscribers:       make(map[string][]subscription),
		eventCounts:       make(map[string]int64),
		handlerLatencies:  newRing[time.Duration](latencyWindow),
		emissionLatencies: newRing[time.Duration](latencyWindow),
		history:           newRing[Event](opts.HistoryCapacity),
		slowThreshold:     opts.SlowHandlerThreshold,
	}
}

var (
	defaultBus  *Bus
	defaultOnce sync.Once
)

// Default returns the process-wide bus singleton, lazily initialized.
func Default() *Bus {
	defaultOnce.Do(func() {
		defaultBus = New(Options{})
	})
	return defaultBus
}

// Subscribe registers a handler for an event name. The handlerName
// identifies the subscription; subscribing the same (event, handlerName)
// pair twice is a no-op.
func (b *Bus) Subscribe(event, handlerName string, h Handler) {
	if h == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subscribers[event] {
		if sub.name == handlerName {
			return
		}
	}
	b.subscribers[event] = append(b.subscribers[event], subscription{name: handlerName, handler: h})
}

// Unsubscribe removes a handler by name. Unknown pairs are ignored.
func (b *Bus) Unsubscribe(event, handlerName string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[event]
	for i, sub := range subs {
		if sub.name == handlerName {
			b.subscribers[event] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Emit delivers an event with NORMAL priority. See EmitWithPriority.
func (b *Bus) Emit(event string, data map[string]any) Event {
	return b.EmitWithPriority(event, data, PriorityNormal)
}

// EmitWithPriority synchronously invokes every subscriber in registration
// order and returns the emitted event. Handler panics and errors are
// isolated: they are counted and logged, and later handlers still run.
// Handlers run outside the bus lock, so a handler may Emit recursively; the
// nested emission completes before the outer one returns.
func (b *Bus) EmitWithPriority(event string, data map[string]any, priority Priority) Event {
	ev := Event{
		Name:          event,
		Data:          data,
		Timestamp:     time.Now().UTC(),
		Priority:      priority,
		CorrelationID: uuid.NewString(),
	}

	b.mu.Lock()
	b.eventsEmitted++
	b.eventCounts[event]++
	b.history.add(ev)
	subs := make([]subscription, len(b.subscribers[event]))
	copy(subs, b.subscribers[event])
	b.mu.Unlock()

	emitStart := time.Now()
	for _, sub := range subs {
		b.invoke(ev, sub)
	}
	emitElapsed := time.Since(emitStart)

	b.mu.Lock()
	b.totalEmission += emitElapsed
	b.emissionLatencies.add(emitElapsed)
	b.mu.Unlock()

	return ev
}

// invoke runs one handler with panic recovery and latency accounting.
func (b *Bus) invoke(ev Event, sub subscription) {
	start := time.Now()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &handlerPanic{value: r}
			}
		}()
		return sub.handler(ev)
	}()

	elapsed := time.Since(start)

	b.mu.Lock()
	b.totalHandler += elapsed
	b.handlerLatencies.add(elapsed)
	if err != nil {
		b.handlerErrors++
	} else {
		b.eventsDelivered++
	}
	b.mu.Unlock()

	if err != nil {
		slog.Error("event handler failed",
			"event", ev.Name, "handler", sub.name,
			"priority", string(ev.Priority), "error", err)
	}
	if elapsed > b.slowThreshold {
		slog.Warn("slow event handler",
			"event", ev.Name, "handler", sub.name,
			"elapsed_ms", float64(elapsed.Microseconds())/1000.0)
	}
}

type handlerPanic struct {
	value any
}

func (p *handlerPanic) Error() string {
	return "handler panic"
}

// GetMetrics returns a snapshot of the counters and exact percentiles.
func (b *Bus) GetMetrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	counts := make(map[string]int64, len(b.eventCounts))
	for k, v := range b.eventCounts {
		counts[k] = v
	}

	handlerSamples := b.handlerLatencies.items()
	emissionSamples := b.emissionLatencies.items()

	return Metrics{
		EventsEmitted:       b.eventsEmitted,
		EventsDelivered:     b.eventsDelivered,
		HandlerErrors:       b.handlerErrors,
		TotalHandlerTimeMS:  durToMS(b.totalHandler),
		TotalEmissionTimeMS: durToMS(b.totalEmission),
		EventCounts:         counts,
		HandlerLatencyP50:   percentile(handlerSamples, 50),
		HandlerLatencyP95:   percentile(handlerSamples, 95),
		HandlerLatencyP99:   percentile(handlerSamples, 99),
		EmissionLatencyP50:  percentile(emissionSamples, 50),
		EmissionLatencyP95:  percentile(emissionSamples, 95),
		EmissionLatencyP99:  percentile(emissionSamples, 99),
	}
}

// GetHistory returns the most recent events, newest first, up to limit.
func (b *Bus) GetHistory(limit int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	all := b.history.items()
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}

	out := make([]Event, 0, limit)
	for i := len(all) - 1; i >= len(all)-limit; i-- {
		out = append(out, all[i])
	}
	return out
}

// ClearSubscribers drops subscriptions for one event name, or all of them
// when event is empty. Test helper.
func (b *Bus) ClearSubscribers(event string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if event == "" {
		b.subscribers = make(map[string][]subscription)
		return
	}
	delete(b.subscribers, event)
}

// ResetMetrics zeroes all counters and latency windows. Test helper.
func (b *Bus) ResetMetrics() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.eventsEmitted = 0
	b.eventsDelivered = 0
	b.handlerErrors = 0
	b.totalHandler = 0
	b.totalEmission = 0
	b.eventCounts = make(map[string]int64)
	b.handlerLatencies.clear()
	b.emissionLatencies.clear()
}

// ClearHistory empties the history ring. Test helper.
func (b *Bus) ClearHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history.clear()
}

// percentile computes an exact percentile over the sample window using the
// nearest-rank method, in milliseconds. Empty windows yield 0.
func percentile(samples []time.Duration, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rank := int(float64(len(sorted))*p/100.0+0.5) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return durToMS(sorted[rank])
}

func durToMS(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
