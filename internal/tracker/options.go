package tracker

import "time"

const (
	DefaultTolerance    = 3 * time.Second
	DefaultShortConfirm = 500 * time.Millisecond
	DefaultLongConfirm  = 7 * time.Second
	DefaultSettle       = 2 * time.Second
	DefaultRetry        = 5 * time.Second
	DefaultOpTimeout    = 10 * time.Second
	DefaultConcurrency  = 8
)

// Options holds the tracker timings. Zero fields take the defaults.
type Options struct {
	// Tolerance is the skew allowed between a message and the read receipt
	Tolerance time.Duration
	// ShortConfirm is the delay between the receipt write and the first re-read
	ShortConfirm time.Duration
	// LongConfirm is the delay between the receipt write and the presence check
	LongConfirm time.Duration
	// Settle is the delay between a confirmed receipt and the verifying count
	Settle time.Duration
	// Retry is the delay before the single repeat of a failed presence check
	Retry time.Duration
	// OpTimeout bounds each store call
	OpTimeout time.Duration
	// Concurrency bounds parallel per-conversation counts during aggregation
	Concurrency int
}

// DefaultOptions returns the standard timings
func DefaultOptions() Options {
	return Options{}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.ShortConfirm <= 0 {
		o.ShortConfirm = DefaultShortConfirm
	}
	if o.LongConfirm <= 0 {
		o.LongConfirm = DefaultLongConfirm
	}
	if o.LongConfirm < o.ShortConfirm {
		o.LongConfirm = o.ShortConfirm
	}
	if o.Settle <= 0 {
		o.Settle = DefaultSettle
	}
	if o.Retry <= 0 {
		o.Retry = DefaultRetry
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = DefaultOpTimeout
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	return o
}
