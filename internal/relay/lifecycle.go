package relay

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
)

// StartAsync starts the server in a goroutine and returns any startup errors.
//
// The returned channel receives nil if startup succeeded, or an error if
// the listener could not be created (e.g., port already in use).
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)

	// Create the listener first to detect port conflicts immediately.
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		errCh <- fmt.Errorf("failed to listen on %s: %w", s.addr, err)
		close(errCh)
		return errCh
	}

	s.mu.Lock()
	s.listenAddr = ln.Addr().String()
	s.httpServer = &http.Server{Handler: s.Handler()}
	srv := s.httpServer
	s.mu.Unlock()

	s.Prepare(context.Background())

	go func() {
		log.Printf("relay: listening on %s", ln.Addr())
		errCh <- nil
		close(errCh)

		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("relay: server error: %v", err)
		}
	}()

	return errCh
}

// Stop closes every tab connection, stops the sweeper and shuts down the
// HTTP server.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true

	// writePump sends the close frame when it sees done.
	for t := range s.tabs {
		t.closeSend()
	}
	s.tabs = make(map[*tab]bool)
	srv := s.httpServer
	s.mu.Unlock()

	// Never prepared: there is no sweeper to wait for.
	s.prepareOnce.Do(func() { close(s.sweepDone) })
	close(s.stopSweep)
	<-s.sweepDone

	if srv != nil {
		return srv.Close()
	}
	return nil
}
