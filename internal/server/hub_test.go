package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/marketd/internal/marketplace"
)

func TestHub_FanOut(t *testing.T) {
	h := NewHub(nil)

	ch1, cancel1 := h.Subscribe()
	ch2, cancel2 := h.Subscribe()
	defer cancel1()
	defer cancel2()

	require.Equal(t, 2, h.Subscribers())

	want := marketplace.Event{Kind: marketplace.EventNote, Data: marketplace.Note{Message: "hi"}}
	h.Emit(want)

	for _, ch := range []<-chan marketplace.Event{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatal("event never arrived")
		}
	}
}

func TestHub_CancelClosesChannel(t *testing.T) {
	h := NewHub(nil)

	ch, cancel := h.Subscribe()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, h.Subscribers())

	// Cancel is idempotent and late events go nowhere.
	cancel()
	h.Emit(marketplace.Event{Kind: marketplace.EventNote})
}

func TestHub_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub(nil)

	_, cancel := h.Subscribe()
	defer cancel()

	// Overfill the buffer; Emit must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			h.Emit(marketplace.Event{Kind: marketplace.EventNote})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked on a slow subscriber")
	}
}
