package reactor

import "time"

// loopOptions holds configuration resolved once at EventLoop construction.
type loopOptions struct {
	logger Logger
}

// LoopOption configures an EventLoop.
type LoopOption interface {
	applyLoop(*loopOptions)
}

type loopOptionFunc func(*loopOptions)

func (f loopOptionFunc) applyLoop(o *loopOptions) { f(o) }

// WithLoopLogger sets the Logger an EventLoop uses for its own diagnostics
// (poller errors, wakeup failures). Defaults to a no-op logger.
func WithLoopLogger(l Logger) LoopOption {
	return loopOptionFunc(func(o *loopOptions) { o.logger = l })
}

func resolveLoopOptions(opts []LoopOption) *loopOptions {
	cfg := &loopOptions{logger: NewNoOpLogger()}
	for _, opt := range opts {
		if opt != nil {
			opt.applyLoop(cfg)
		}
	}
	return cfg
}

// serverOptions holds configuration resolved once at Server construction.
type serverOptions struct {
	logger          Logger
	threadCount     int
	threadInitCB    func(*EventLoop)
	highWaterMark   int
	tcpNoDelay      bool
	reusePort       bool
	acceptRates     map[time.Duration]int
}

// ServerOption configures a Server.
type ServerOption interface {
	applyServer(*serverOptions)
}

type serverOptionFunc func(*serverOptions)

func (f serverOptionFunc) applyServer(o *serverOptions) { f(o) }

// WithLogger sets the Logger used by the Server, its Acceptor, and every
// Conn it creates. Defaults to a no-op logger.
func WithLogger(l Logger) ServerOption {
	return serverOptionFunc(func(o *serverOptions) { o.logger = l })
}

// WithThreadCount sets the size of the EventLoopThreadPool. A count of 0
// (the default) makes the base loop itself service every connection,
// matching muduo's behavior when no sub-reactors are configured.
func WithThreadCount(n int) ServerOption {
	return serverOptionFunc(func(o *serverOptions) { o.threadCount = n })
}

// WithThreadInitCallback sets a callback invoked once on each worker
// loop's own goroutine, immediately before that loop starts running, so
// before it services any connections. Useful for per-thread setup (e.g. thread-local
// resources).
func WithThreadInitCallback(cb func(*EventLoop)) ServerOption {
	return serverOptionFunc(func(o *serverOptions) { o.threadInitCB = cb })
}

// WithHighWaterMark sets the output-buffer byte threshold above which a
// Conn's high-water-mark callback fires. Defaults to 64MiB.
func WithHighWaterMark(bytes int) ServerOption {
	return serverOptionFunc(func(o *serverOptions) { o.highWaterMark = bytes })
}

// WithTCPNoDelay sets the default TCP_NODELAY value applied to every
// accepted connection. Defaults to true, matching muduo's Acceptor.
func WithTCPNoDelay(enabled bool) ServerOption {
	return serverOptionFunc(func(o *serverOptions) { o.tcpNoDelay = enabled })
}

// WithReusePort enables SO_REUSEPORT on the listening socket, allowing
// multiple processes (or multiple Acceptors) to share one port.
func WithReusePort(enabled bool) ServerOption {
	return serverOptionFunc(func(o *serverOptions) { o.reusePort = enabled })
}

// WithAcceptRateLimit configures a per-peer-IP sliding-window rate limit
// on inbound connections, enforced by the Acceptor via go-catrate. nil
// (the default) disables rate limiting entirely.
func WithAcceptRateLimit(rates map[time.Duration]int) ServerOption {
	return serverOptionFunc(func(o *serverOptions) { o.acceptRates = rates })
}

const defaultHighWaterMark = 64 * 1024 * 1024

func resolveServerOptions(opts []ServerOption) *serverOptions {
	cfg := &serverOptions{
		logger:        NewNoOpLogger(),
		highWaterMark: defaultHighWaterMark,
		tcpNoDelay:    true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt.applyServer(cfg)
		}
	}
	return cfg
}
