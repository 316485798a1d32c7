// Package reactor implements a multi-reactor, non-blocking TCP server core
// built on the "one loop per goroutine + pool" pattern.
//
// # Architecture
//
// A [Server] owns one base [EventLoop] (which runs an [Acceptor]) and an
// [EventLoopThreadPool] of worker loops. Each accepted connection is handed
// off to exactly one worker loop and stays bound to it for its entire life;
// all of a [Conn]'s state — its [Channel], its input and output [Buffer] —
// is touched only from that worker's goroutine.
//
// # Platform support
//
// I/O readiness is dispatched through an internal poller. On Linux the default is
// epoll ([golang.org/x/sys/unix.EpollWait]); setting the GOREACTOR_USE_POLL
// environment variable switches to a poll(2)-based poller on any unix
// target. Both report level-triggered readiness: a connection that does not
// drain a socket in one read will be re-notified.
//
// # Thread safety
//
// [EventLoop.RunInLoop] and [EventLoop.QueueInLoop] are safe to call from any
// goroutine. Everything reachable only through a [Channel] or [Conn] is
// confined to its owning loop's goroutine and must not be touched from
// outside it except via those two methods.
//
// # Usage
//
//	srv, err := reactor.NewServer("127.0.0.1:8000", "echo", reactor.WithThreadCount(3))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv.SetMessageCallback(func(c *reactor.Conn, buf *reactor.Buffer, _ time.Time) {
//	    c.SendString(buf.RetrieveAllString())
//	})
//	if err := srv.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Loop(); err != nil {
//	    log.Fatal(err)
//	}
package reactor
