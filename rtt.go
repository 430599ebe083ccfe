package rdt

import "time"

// rttEstimator keeps a smoothed round-trip estimate that sizes the
// retransmission timeout. Pure state machine: callers feed it timeout events
// and samples, it never reads a clock or touches a socket.
type rttEstimator struct {
	estimated time.Duration
	deviation time.Duration
}

func newRTTEstimator(initial, deviation time.Duration) *rttEstimator {
	return &rttEstimator{estimated: initial, deviation: deviation}
}

// onTimeout backs the estimate off multiplicatively and returns the new
// retransmission timeout.
func (r *rttEstimator) onTimeout() time.Duration {
	r.estimated = capRTT(time.Duration(float64(r.estimated) * backoffFactor))
	return r.timeout()
}

// onSample folds a measured round trip into the estimate and returns the new
// retransmission timeout. Samples must come from an acknowledgment matching
// the outstanding segment, measured against its latest transmission.
func (r *rttEstimator) onSample(sample time.Duration) time.Duration {
	diff := r.estimated - sample
	if diff < 0 {
		diff = -diff
	}
	r.deviation = time.Duration((1-deviationGain)*float64(r.deviation) + deviationGain*float64(diff))
	r.estimated = capRTT(time.Duration((1-rttSampleGain)*float64(r.estimated) + rttSampleGain*float64(sample)))
	return r.timeout()
}

// timeout derives the active retransmission timeout from the current
// estimate.
func (r *rttEstimator) timeout() time.Duration {
	t := time.Duration(float64(r.estimated) * timeoutFactor)
	if t > rttCeiling {
		t = rttCeiling
	}
	if t < timeoutFloor {
		t = timeoutFloor
	}
	return t
}

func capRTT(d time.Duration) time.Duration {
	if d > rttCeiling {
		return rttCeiling
	}
	return d
}
