package mqtt

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxEmptyDrain(t *testing.T) {
	o := newOutbox(10)
	got, dropped := o.drain()
	assert.Nil(t, got)
	assert.Zero(t, dropped)
}

func TestOutboxPushAndDrain(t *testing.T) {
	o := newOutbox(10)
	for i := 0; i < 5; i++ {
		o.push(bufferedMsg{topic: "t", payload: []byte{byte(i)}})
	}

	got, dropped := o.drain()
	require.Len(t, got, 5)
	assert.Zero(t, dropped)
	for i := range got {
		assert.Equal(t, byte(i), got[i].payload[0], "oldest first")
	}

	got, _ = o.drain()
	assert.Nil(t, got, "second drain should be empty")
}

func TestOutboxOverflowDropsOldest(t *testing.T) {
	capacity := 5
	o := newOutbox(capacity)

	// Push 0..7, outbox keeps the most recent 5 (3..7)
	for i := 0; i < capacity+3; i++ {
		o.push(bufferedMsg{topic: "t", payload: []byte{byte(i)}})
	}

	got, dropped := o.drain()
	require.Len(t, got, capacity)
	assert.Equal(t, 3, dropped)
	for i := range got {
		assert.Equal(t, byte(i+3), got[i].payload[0])
	}

	// Drop count resets after drain
	o.push(bufferedMsg{topic: "t"})
	_, dropped = o.drain()
	assert.Zero(t, dropped)
}

func TestOutboxPreservesFields(t *testing.T) {
	o := newOutbox(10)
	o.push(bufferedMsg{
		topic:    "messenger/test",
		payload:  []byte(`{"test":true}`),
		qos:      1,
		retained: true,
	})

	got, _ := o.drain()
	require.Len(t, got, 1)
	assert.Equal(t, "messenger/test", got[0].topic)
	assert.Equal(t, `{"test":true}`, string(got[0].payload))
	assert.Equal(t, byte(1), got[0].qos)
	assert.True(t, got[0].retained)
}

func TestOutboxLen(t *testing.T) {
	o := newOutbox(10)
	assert.Equal(t, 0, o.len())

	o.push(bufferedMsg{topic: "t"})
	o.push(bufferedMsg{topic: "t"})
	assert.Equal(t, 2, o.len())

	o.drain()
	assert.Equal(t, 0, o.len())
}

func TestOutboxMinimumCapacity(t *testing.T) {
	o := newOutbox(0)
	o.push(bufferedMsg{topic: "a"})
	o.push(bufferedMsg{topic: "b"})

	got, dropped := o.drain()
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].topic)
	assert.Equal(t, 1, dropped)
}

func TestOutboxConcurrentPush(t *testing.T) {
	o := newOutbox(1000)
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				o.push(bufferedMsg{topic: "t"})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 400, o.len())
}
