package mqtt

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds messages published while the broker is unreachable. When full
// the oldest message is dropped. Safe for concurrent use: paho's connect
// handler drains it from its own goroutine.
type outbox struct {
	mu       sync.Mutex
	msgs     []bufferedMsg
	capacity int
	dropped  int // messages lost since the last drain
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &outbox{capacity: capacity}
}

func (o *outbox) push(msg bufferedMsg) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.msgs) == o.capacity {
		if o.dropped == 0 {
			log.Warnf("mqtt: outbox full (%d messages), dropping oldest", o.capacity)
		}
		o.dropped++
		copy(o.msgs, o.msgs[1:])
		o.msgs = o.msgs[:len(o.msgs)-1]
	}
	o.msgs = append(o.msgs, msg)
}

// drain returns buffered messages oldest first, the number dropped since the
// previous drain, and empties the outbox.
func (o *outbox) drain() ([]bufferedMsg, int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.msgs) == 0 {
		dropped := o.dropped
		o.dropped = 0
		return nil, dropped
	}
	out := o.msgs
	dropped := o.dropped
	o.msgs = make([]bufferedMsg, 0, o.capacity)
	o.dropped = 0
	return out, dropped
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.msgs)
}
