// Command echoserver is a minimal reactor-based TCP echo server: the first
// chunk of input a connection receives is written straight back, then the
// connection is half-closed. It exists to exercise Server end-to-end the way muduo's
// own examples/testserver.cc exercises TcpServer.
package main

import (
	"log"
	"os"
	"time"

	"github.com/goreactor/reactor"
)

func main() {
	logger := reactor.NewDefaultLogger(os.Stderr)

	srv, err := reactor.NewServer("0.0.0.0:8000", "echo-server",
		reactor.WithLogger(logger),
		reactor.WithThreadCount(3),
		reactor.WithAcceptRateLimit(map[time.Duration]int{
			time.Second: 50,
		}),
	)
	if err != nil {
		log.Fatalf("create server: %v", err)
	}

	srv.SetConnectionCallback(func(c *reactor.Conn) {
		if c.State() == reactor.StateConnected {
			logger.Infof("conn UP: %s", c.PeerAddr())
		} else {
			logger.Infof("conn DOWN: %s", c.PeerAddr())
		}
	})

	srv.SetMessageCallback(func(c *reactor.Conn, buf *reactor.Buffer, _ time.Time) {
		msg := buf.RetrieveAllString()
		c.SendString(msg)
		c.Shutdown()
	})

	if err := srv.Start(); err != nil {
		log.Fatalf("start server: %v", err)
	}

	if err := srv.Loop(); err != nil {
		log.Fatalf("loop: %v", err)
	}
}
