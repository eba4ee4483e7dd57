package events

import (
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_PublishJSON(t *testing.T) {
	logger := zerolog.New(io.Discard)
	bus := NewEventBus(&logger)

	var got []string
	bus.Subscribe(BookingCommitted, func(e Event) error {
		var p struct {
			ID string `json:"id"`
		}
		require.NoError(t, e.Decode(&p))
		got = append(got, p.ID)
		assert.NotZero(t, e.ID)
		assert.False(t, e.CreatedAt.IsZero())
		return errors.New("ignored")
	})
	bus.Subscribe(BookingCommitted, func(e Event) error {
		got = append(got, "second")
		return nil
	})
	bus.Subscribe(RatesUpdated, func(Event) error {
		t.Fatal("wrong subscriber")
		return nil
	})

	require.NoError(t, bus.PublishJSON(BookingCommitted, map[string]string{"id": "b1"}))
	assert.Equal(t, []string{"b1", "second"}, got)

	assert.Error(t, bus.PublishJSON(BookingCommitted, make(chan int)))
}
