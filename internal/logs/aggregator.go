// Package logs provides the per-bot log aggregator: a bounded ring of
// combined deployment and runtime lines with fan-out to live subscribers.
package logs

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/common/logger"
	v1 "github.com/whatsapp110x-ctrl/Host-Elite-sub000/pkg/api/v1"
)

// Aggregator retains a bounded, ordered line buffer per bot and fans new
// lines out to any number of subscribers. Each subscriber owns its own
// delivery queue so one slow consumer never blocks the others; when a
// queue is full, lines are dropped for that subscriber only.
type Aggregator struct {
	logger    *logger.Logger
	capacity  int // max retained lines per bot
	queueSize int // per-subscriber channel depth

	mu      sync.RWMutex
	buffers map[string]*botBuffer
}

// botBuffer holds one bot's ring and its subscribers.
// Lines are appended under the buffer lock so emission order is retained
// exactly for both the ring and the fan-out.
type botBuffer struct {
	mu          sync.Mutex
	lines       []v1.LogLine
	subscribers map[int]chan v1.LogLine
	nextSubID   int
	dropped     int64
}

// NewAggregator creates a log aggregator.
// capacity bounds the retained lines per bot (oldest dropped first);
// queueSize is each subscriber's delivery queue depth.
func NewAggregator(capacity, queueSize int, log *logger.Logger) *Aggregator {
	if capacity <= 0 {
		capacity = 1000
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Aggregator{
		logger:    log.WithFields(zap.String("component", "log-aggregator")),
		capacity:  capacity,
		queueSize: queueSize,
		buffers:   make(map[string]*botBuffer),
	}
}

// Append pushes a timestamped line onto the bot's buffer and delivers it to
// every current subscriber. Trailing newlines are stripped; multi-line text
// is split so subscribers always receive single lines.
func (a *Aggregator) Append(botID, text string) {
	buf := a.buffer(botID)

	now := time.Now().UTC()
	buf.mu.Lock()
	defer buf.mu.Unlock()

	for _, line := range splitLines(text) {
		entry := v1.LogLine{BotID: botID, Timestamp: now, Text: line}

		buf.lines = append(buf.lines, entry)
		if len(buf.lines) > a.capacity {
			buf.lines = buf.lines[len(buf.lines)-a.capacity:]
		}

		for id, ch := range buf.subscribers {
			select {
			case ch <- entry:
			default:
				buf.dropped++
				if buf.dropped%100 == 1 {
					a.logger.Warn("slow log subscriber, dropping lines",
						zap.String("bot_id", botID),
						zap.Int("subscriber", id),
						zap.Int64("dropped_total", buf.dropped))
				}
			}
		}
	}
}

// GetAll returns the bot's retained lines in emission order.
// Deployment-phase and runtime-phase lines share the one ordered stream.
func (a *Aggregator) GetAll(botID string) []v1.LogLine {
	a.mu.RLock()
	buf, ok := a.buffers[botID]
	a.mu.RUnlock()
	if !ok {
		return []v1.LogLine{}
	}

	buf.mu.Lock()
	defer buf.mu.Unlock()
	out := make([]v1.LogLine, len(buf.lines))
	copy(out, buf.lines)
	return out
}

// Subscribe registers a sink for a bot's new lines and returns the delivery
// channel plus an unsubscribe function. The channel carries only lines
// appended after the call; callers wanting backfill should read GetAll
// first, then drain the channel (no duplicate delivery through it).
func (a *Aggregator) Subscribe(botID string) (<-chan v1.LogLine, func()) {
	_, ch, unsubscribe := a.subscribe(botID, false)
	return ch, unsubscribe
}

// SnapshotAndSubscribe atomically copies the retained backfill and registers
// a subscriber under the buffer lock. A line appended concurrently lands
// either in the snapshot or on the channel, never both, so callers replaying
// the snapshot before draining the channel deliver each line exactly once.
func (a *Aggregator) SnapshotAndSubscribe(botID string) ([]v1.LogLine, <-chan v1.LogLine, func()) {
	return a.subscribe(botID, true)
}

func (a *Aggregator) subscribe(botID string, withSnapshot bool) ([]v1.LogLine, <-chan v1.LogLine, func()) {
	buf := a.buffer(botID)

	buf.mu.Lock()
	var snapshot []v1.LogLine
	if withSnapshot {
		snapshot = make([]v1.LogLine, len(buf.lines))
		copy(snapshot, buf.lines)
	}
	id := buf.nextSubID
	buf.nextSubID++
	ch := make(chan v1.LogLine, a.queueSize)
	buf.subscribers[id] = ch
	buf.mu.Unlock()

	unsubscribe := func() {
		buf.mu.Lock()
		defer buf.mu.Unlock()
		if existing, ok := buf.subscribers[id]; ok {
			delete(buf.subscribers, id)
			close(existing)
		}
	}
	return snapshot, ch, unsubscribe
}

// SubscriberCount returns the number of live subscribers for a bot.
func (a *Aggregator) SubscriberCount(botID string) int {
	a.mu.RLock()
	buf, ok := a.buffers[botID]
	a.mu.RUnlock()
	if !ok {
		return 0
	}
	buf.mu.Lock()
	defer buf.mu.Unlock()
	return len(buf.subscribers)
}

// Remove drops a bot's buffer and closes all of its subscriber channels.
// Called when the bot is deleted.
func (a *Aggregator) Remove(botID string) {
	a.mu.Lock()
	buf, ok := a.buffers[botID]
	delete(a.buffers, botID)
	a.mu.Unlock()
	if !ok {
		return
	}

	buf.mu.Lock()
	defer buf.mu.Unlock()
	for id, ch := range buf.subscribers {
		delete(buf.subscribers, id)
		close(ch)
	}
	buf.lines = nil
}

func (a *Aggregator) buffer(botID string) *botBuffer {
	a.mu.RLock()
	buf, ok := a.buffers[botID]
	a.mu.RUnlock()
	if ok {
		return buf
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if buf, ok = a.buffers[botID]; ok {
		return buf
	}
	buf = &botBuffer{subscribers: make(map[int]chan v1.LogLine)}
	a.buffers[botID] = buf
	return buf
}

func splitLines(text string) []string {
	text = strings.TrimRight(text, "\r\n")
	if text == "" {
		return []string{""}
	}
	parts := strings.Split(text, "\n")
	for i, p := range parts {
		parts[i] = strings.TrimRight(p, "\r")
	}
	return parts
}
