// Package series holds the append-only sample buffers for each measurement
// channel. Buffers are owned by the engine; consumers (plotting, HTTP status)
// only ever see copies.
package series

import "fmt"

// Channel identifies one physical quantity tracked by the rig.
type Channel int

const (
	Conductance Channel = iota
	Resistance
	GasConcentration
	AmbientTemperature
	Humidity
	MeasuredTemperature
	HeaterSetpoint

	numChannels
)

// NumChannels is the number of defined channels.
const NumChannels = int(numChannels)

var channelNames = [numChannels]string{
	"conductance",
	"resistance",
	"gas_concentration",
	"ambient_temperature",
	"humidity",
	"measured_temperature",
	"heater_setpoint",
}

func (c Channel) String() string {
	if c < 0 || c >= numChannels {
		return fmt.Sprintf("channel(%d)", int(c))
	}
	return channelNames[c]
}

// ParseChannel maps a channel name back to its Channel value.
func ParseChannel(name string) (Channel, bool) {
	for i, n := range channelNames {
		if n == name {
			return Channel(i), true
		}
	}
	return 0, false
}

// Valid reports whether c names a defined channel.
func (c Channel) Valid() bool {
	return c >= 0 && c < numChannels
}

// Sample is a single timestamped reading. T is seconds relative to the
// channel's start time, corrected for accumulated pause time.
type Sample struct {
	T float64
	V float64
}

// Set is the collection of per-channel buffers.
// Not safe for concurrent use; the engine is single-threaded.
type Set struct {
	buf [numChannels][]Sample
}

// NewSet creates an empty buffer set.
func NewSet() *Set {
	return &Set{}
}

// Append adds a sample to a channel. Timestamps within a channel are kept
// non-decreasing: a sample arriving with an earlier timestamp than the last
// one is clamped to the last timestamp rather than breaking the invariant.
func (s *Set) Append(ch Channel, t, v float64) {
	if !ch.Valid() {
		return
	}
	b := s.buf[ch]
	if n := len(b); n > 0 && t < b[n-1].T {
		t = b[n-1].T
	}
	s.buf[ch] = append(b, Sample{T: t, V: v})
}

// Len returns the number of samples in a channel.
func (s *Set) Len(ch Channel) int {
	if !ch.Valid() {
		return 0
	}
	return len(s.buf[ch])
}

// Last returns the most recent sample of a channel, if any.
func (s *Set) Last(ch Channel) (Sample, bool) {
	if !ch.Valid() || len(s.buf[ch]) == 0 {
		return Sample{}, false
	}
	return s.buf[ch][len(s.buf[ch])-1], true
}

// Tail returns a copy of the last n samples of a channel.
// Returns fewer samples if the channel holds fewer than n.
func (s *Set) Tail(ch Channel, n int) []Sample {
	if !ch.Valid() || n <= 0 {
		return nil
	}
	b := s.buf[ch]
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return nil
	}
	out := make([]Sample, n)
	copy(out, b[len(b)-n:])
	return out
}

// Since returns a copy of all samples of a channel with T >= t.
func (s *Set) Since(ch Channel, t float64) []Sample {
	if !ch.Valid() {
		return nil
	}
	b := s.buf[ch]
	// Buffers are time-ordered; scan back from the end.
	i := len(b)
	for i > 0 && b[i-1].T >= t {
		i--
	}
	if i == len(b) {
		return nil
	}
	out := make([]Sample, len(b)-i)
	copy(out, b[i:])
	return out
}

// Snapshot returns a copy of the entire channel buffer for the
// plotting collaborator.
func (s *Set) Snapshot(ch Channel) []Sample {
	if !ch.Valid() || len(s.buf[ch]) == 0 {
		return nil
	}
	out := make([]Sample, len(s.buf[ch]))
	copy(out, s.buf[ch])
	return out
}

// Reset clears a single channel buffer without touching the others.
func (s *Set) Reset(ch Channel) {
	if !ch.Valid() {
		return
	}
	s.buf[ch] = nil
}
