package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"
)

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// ListeningAddress is the address the relay is listening on.
	ListeningAddress string `json:"listening_address"`

	// ConnectedTabs is the number of connected tabs.
	ConnectedTabs int `json:"connected_tabs"`

	// UptimeSeconds is how long the relay has been running.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// Relayed counts envelopes forwarded (once per envelope, not per tab).
	Relayed int64 `json:"relayed"`

	// DuplicatesDropped counts envelopes suppressed by the duplicate cache.
	DuplicatesDropped int64 `json:"duplicates_dropped"`

	// RateLimited counts envelopes dropped for exceeding a tab's budget.
	RateLimited int64 `json:"rate_limited"`

	// StoreAvailable is false when the relay runs without a shared store.
	StoreAvailable bool `json:"store_available"`
}

// StatusHandler serves relay status to local callers only.
type StatusHandler struct {
	server *Server
}

// NewStatusHandler creates a StatusHandler for s.
func NewStatusHandler(s *Server) *StatusHandler {
	return &StatusHandler{server: s}
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !isLoopbackRequest(r) {
		http.Error(w, "Forbidden: status endpoint is local-only", http.StatusForbidden)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s := h.server
	resp := StatusResponse{
		ListeningAddress:  s.Addr(),
		ConnectedTabs:     s.TabCount(),
		UptimeSeconds:     int64(time.Since(s.startTime).Seconds()),
		Relayed:           s.relayed.Load(),
		DuplicatesDropped: s.duplicates.Load(),
		RateLimited:       s.rateLimited.Load(),
		StoreAvailable:    s.opts.Store.Available(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// isLoopbackRequest reports whether r came from the local machine.
func isLoopbackRequest(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		log.Printf("relay: failed to parse RemoteAddr %q: %v", r.RemoteAddr, err)
		return false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}

// FetchStatus queries the relay at addr.
func FetchStatus(ctx context.Context, addr string) (*StatusResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/status", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relay not reachable at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("relay returned status %d", resp.StatusCode)
	}

	var status StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &status, nil
}
