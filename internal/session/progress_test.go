package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressSink_FirstReportAlwaysSent(t *testing.T) {
	var events []ProgressEvent
	sink := NewProgressSink(func(ev ProgressEvent) { events = append(events, ev) })

	sink.Report("tok1", 0.5, nil, "halfway")

	require.Len(t, events, 1)
	assert.Equal(t, "tok1", events[0].Token)
	assert.Equal(t, 0.5, events[0].Progress)
}

func TestProgressSink_BurstIsCoalesced(t *testing.T) {
	var events []ProgressEvent
	sink := NewProgressSink(func(ev ProgressEvent) { events = append(events, ev) })

	for i := 0; i < 10; i++ {
		sink.Report("tok1", float64(i), nil, "")
	}

	assert.Less(t, len(events), 10)
}

func TestProgressSink_EvictRemovesLimiter(t *testing.T) {
	sink := NewProgressSink(func(ProgressEvent) {})
	sink.Report("tok1", 1, nil, "")
	sink.Evict("tok1")

	sink.mu.Lock()
	_, exists := sink.limiters["tok1"]
	sink.mu.Unlock()
	assert.False(t, exists)
}

func TestCancelToken_FireClosesDone(t *testing.T) {
	tok := NewCancelToken()
	assert.False(t, tok.Fired())

	tok.Fire()

	select {
	case <-tok.Done():
	case <-time.After(time.Second):
		t.Fatal("Done channel not closed after Fire")
	}
	assert.True(t, tok.Fired())
}

func TestCancelToken_FireIsIdempotent(t *testing.T) {
	tok := NewCancelToken()
	assert.NotPanics(t, func() {
		tok.Fire()
		tok.Fire()
	})
}
