package mqtt

import "github.com/sirupsen/logrus"

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// replayBuffer holds messages accepted while the broker is unreachable.
// It keeps the newest capacity messages, counting what it sheds so the
// loss is reported once per outage on drain. Not safe for concurrent
// use; the publisher's mutex covers it.
type replayBuffer struct {
	slots    []bufferedMsg
	capacity int
	dropped  int
}

func newReplayBuffer(capacity int) *replayBuffer {
	return &replayBuffer{
		slots:    make([]bufferedMsg, 0, capacity),
		capacity: capacity,
	}
}

func (b *replayBuffer) push(msg bufferedMsg) {
	if len(b.slots) == b.capacity {
		if b.dropped == 0 {
			logrus.WithField("capacity", b.capacity).Warn("mqtt: buffer full, shedding oldest")
		}
		copy(b.slots, b.slots[1:])
		b.slots[len(b.slots)-1] = msg
		b.dropped++
		return
	}
	b.slots = append(b.slots, msg)
}

// drain returns the held messages oldest first and empties the buffer.
func (b *replayBuffer) drain() []bufferedMsg {
	if len(b.slots) == 0 {
		return nil
	}
	if b.dropped > 0 {
		logrus.WithField("dropped", b.dropped).Warn("mqtt: messages lost while disconnected")
	}

	out := b.slots
	b.slots = make([]bufferedMsg, 0, b.capacity)
	b.dropped = 0
	return out
}

func (b *replayBuffer) len() int {
	return len(b.slots)
}
