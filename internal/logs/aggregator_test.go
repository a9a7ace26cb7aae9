package logs

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/common/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "console"})
	require.NoError(t, err)
	return log
}

func TestAggregatorAppendAndGetAll(t *testing.T) {
	agg := NewAggregator(10, 8, testLogger(t))

	agg.Append("bot-1", "starting up")
	agg.Append("bot-1", "listening on port 20123")
	agg.Append("bot-2", "other bot line")

	lines := agg.GetAll("bot-1")
	require.Len(t, lines, 2)
	assert.Equal(t, "starting up", lines[0].Text)
	assert.Equal(t, "listening on port 20123", lines[1].Text)
	assert.Equal(t, "bot-1", lines[0].BotID)
	assert.False(t, lines[0].Timestamp.IsZero())

	assert.Len(t, agg.GetAll("bot-2"), 1)
	assert.Empty(t, agg.GetAll("unknown"))
}

func TestAggregatorDropsOldestAtCapacity(t *testing.T) {
	agg := NewAggregator(3, 8, testLogger(t))

	for i := 0; i < 5; i++ {
		agg.Append("bot-1", fmt.Sprintf("line %d", i))
	}

	lines := agg.GetAll("bot-1")
	require.Len(t, lines, 3)
	assert.Equal(t, "line 2", lines[0].Text)
	assert.Equal(t, "line 4", lines[2].Text)
}

func TestAggregatorSplitsMultiLineText(t *testing.T) {
	agg := NewAggregator(10, 8, testLogger(t))

	agg.Append("bot-1", "first\r\nsecond\nthird\n")

	lines := agg.GetAll("bot-1")
	require.Len(t, lines, 3)
	assert.Equal(t, "first", lines[0].Text)
	assert.Equal(t, "second", lines[1].Text)
	assert.Equal(t, "third", lines[2].Text)
}

func TestAggregatorSubscribeDeliversNewLines(t *testing.T) {
	agg := NewAggregator(10, 8, testLogger(t))

	agg.Append("bot-1", "before subscribe")

	ch, unsubscribe := agg.Subscribe("bot-1")
	defer unsubscribe()

	agg.Append("bot-1", "after subscribe")

	select {
	case line := <-ch:
		assert.Equal(t, "after subscribe", line.Text)
	case <-time.After(time.Second):
		t.Fatal("expected a live line")
	}

	// No duplicate of the pre-subscribe line on the channel.
	select {
	case line := <-ch:
		t.Fatalf("unexpected line: %q", line.Text)
	default:
	}
}

func TestAggregatorSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	agg := NewAggregator(100, 2, testLogger(t))

	slow, unsubSlow := agg.Subscribe("bot-1")
	defer unsubSlow()
	fast, unsubFast := agg.Subscribe("bot-1")
	defer unsubFast()

	// Drain the fast subscriber between appends so its queue never
	// fills; the slow one is never read and overflows at its depth.
	for i := 0; i < 10; i++ {
		done := make(chan struct{})
		go func() {
			defer close(done)
			agg.Append("bot-1", fmt.Sprintf("line %d", i))
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("append blocked on a slow subscriber")
		}

		select {
		case line := <-fast:
			assert.Equal(t, fmt.Sprintf("line %d", i), line.Text)
		case <-time.After(time.Second):
			t.Fatalf("fast subscriber missed line %d", i)
		}
	}

	// The slow subscriber's queue holds at most its depth; the rest
	// were dropped rather than blocking the producer.
	assert.LessOrEqual(t, len(slow), 2)
	assert.Len(t, agg.GetAll("bot-1"), 10)
}

func TestAggregatorSnapshotAndSubscribeExactlyOnce(t *testing.T) {
	agg := NewAggregator(10, 8, testLogger(t))

	agg.Append("bot-1", "before 1")
	agg.Append("bot-1", "before 2")

	snapshot, ch, unsubscribe := agg.SnapshotAndSubscribe("bot-1")
	defer unsubscribe()

	require.Len(t, snapshot, 2)
	assert.Equal(t, "before 1", snapshot[0].Text)
	assert.Equal(t, "before 2", snapshot[1].Text)

	agg.Append("bot-1", "after 1")

	// Lines retained before the call arrive only in the snapshot, lines
	// appended after only on the channel.
	select {
	case line := <-ch:
		assert.Equal(t, "after 1", line.Text)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive the new line")
	}
	select {
	case line := <-ch:
		t.Fatalf("unexpected duplicate delivery: %q", line.Text)
	default:
	}
}

func TestAggregatorUnsubscribeClosesChannel(t *testing.T) {
	agg := NewAggregator(10, 8, testLogger(t))

	ch, unsubscribe := agg.Subscribe("bot-1")
	assert.Equal(t, 1, agg.SubscriberCount("bot-1"))

	unsubscribe()
	assert.Equal(t, 0, agg.SubscriberCount("bot-1"))

	_, open := <-ch
	assert.False(t, open)

	// Idempotent.
	unsubscribe()
}

func TestAggregatorRemove(t *testing.T) {
	agg := NewAggregator(10, 8, testLogger(t))

	agg.Append("bot-1", "line")
	ch, _ := agg.Subscribe("bot-1")

	agg.Remove("bot-1")

	assert.Empty(t, agg.GetAll("bot-1"))
	_, open := <-ch
	assert.False(t, open)
}
