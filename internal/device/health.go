package device

// Health tracks consecutive read failures for one device and surfaces
// a connectivity flag once failures repeat. It replaces ambient global
// counters: the engine owns one Health per device and feeds every read
// outcome through it.
type Health struct {
	// FailureThreshold is the number of consecutive failures after
	// which the device is reported disconnected.
	FailureThreshold int

	consecutive int
	total       int
}

// NewHealth creates a tracker with the given failure threshold.
// A threshold <= 0 defaults to 3.
func NewHealth(threshold int) *Health {
	if threshold <= 0 {
		threshold = 3
	}
	return &Health{FailureThreshold: threshold}
}

// RecordSuccess clears the consecutive-failure count.
func (h *Health) RecordSuccess() {
	h.consecutive = 0
}

// RecordFailure counts a failed read.
func (h *Health) RecordFailure() {
	h.consecutive++
	h.total++
}

// Connected reports whether the device is considered reachable.
func (h *Health) Connected() bool {
	return h.consecutive < h.FailureThreshold
}

// ConsecutiveFailures returns the current failure streak.
func (h *Health) ConsecutiveFailures() int {
	return h.consecutive
}

// TotalFailures returns the lifetime failure count.
func (h *Health) TotalFailures() int {
	return h.total
}
