package xenconsole

// Observer receives lifecycle events of a Stream, typically to export metrics.
// Methods are called from the read chain and must not block.
type Observer interface {
	// MessageReceived is called once per dispatched message.
	MessageReceived(bytes int)
	// Disconnected is called when the peer closes the channel.
	Disconnected()
	// Fault is called when the read chain stops on an error.
	Fault(err error)
}

type nopObserver struct{}

func (nopObserver) MessageReceived(int) {}
func (nopObserver) Disconnected()       {}
func (nopObserver) Fault(error)         {}

// options holds the configuration for a stream.
type options struct {
	logger   Logger
	decoder  Decoder
	observer Observer
}

// Option is a function that configures stream options.
type Option func(*options)

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// DecoderOption returns an Option that sets how message bytes become text.
// Defaults to UTF8Decoder. A decoder error stops the read chain.
func DecoderOption(decoder Decoder) Option {
	return func(o *options) {
		o.decoder = decoder
	}
}

// ObserverOption returns an Option that sets the lifecycle observer.
func ObserverOption(observer Observer) Option {
	return func(o *options) {
		o.observer = observer
	}
}

// checkOptions sets default values for unset options.
func checkOptions(opts *options) {
	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	if opts.decoder == nil {
		opts.decoder = UTF8Decoder
	}

	if opts.observer == nil {
		opts.observer = nopObserver{}
	}
}
