package looper

// loopOptions collects the configuration understood by NewMessageQueue,
// Prepare and NewLooperThread (NewHandler takes no options). Mirrors the teacher's
// options.go: a private config struct, an Option interface implemented
// by a closure type, and a resolve* collector that skips nil options.
type loopOptions struct {
	poolMaxSize    int
	logger         Logger
	metricsEnabled bool
	testWaitMs     int64
	instanceID     string
}

// Option configures a MessageQueue, a Looper (through Prepare) or a
// LooperThread.
type Option interface {
	apply(*loopOptions)
}

type optionFunc func(*loopOptions)

func (f optionFunc) apply(o *loopOptions) { f(o) }

// WithPoolMaxSize sets the recycle pool cap Prepare uses (default
// DefaultPoolMaxSize). NewMessageQueue and NewLooperThread take the cap
// as an argument, and that argument wins over this option.
func WithPoolMaxSize(n int) Option {
	return optionFunc(func(o *loopOptions) { o.poolMaxSize = n })
}

// WithLogger attaches a structured Logger (spec §6 log sink).
func WithLogger(l Logger) Option {
	return optionFunc(func(o *loopOptions) { o.logger = l })
}

// WithMetrics enables the Prometheus-exposed queue/dispatch counters.
func WithMetrics(enabled bool) Option {
	return optionFunc(func(o *loopOptions) { o.metricsEnabled = enabled })
}

// WithTestWaitTime plumbs outTimeTest (spec §3, a test-only field) in
// through construction instead of a later SetTestWaitTime call.
func WithTestWaitTime(ms int64) Option {
	return optionFunc(func(o *loopOptions) { o.testWaitMs = ms })
}

// WithInstanceID stamps the queue's diagnostic instance id (SPEC_FULL.md
// §12), surfaced in its log lines and in DumpPending/DumpPool output.
// Looper.Prepare supplies its own UUID here; direct NewMessageQueue
// callers may leave it unset.
func WithInstanceID(id string) Option {
	return optionFunc(func(o *loopOptions) { o.instanceID = id })
}

func resolveOptions(opts []Option) loopOptions {
	cfg := loopOptions{poolMaxSize: DefaultPoolMaxSize}
	for _, o := range opts {
		if o == nil {
			continue
		}
		o.apply(&cfg)
	}
	return cfg
}
