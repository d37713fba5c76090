package session

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"time"
)

// Discovery resolves the set of servers a session may connect to,
// either from a literal configured list or from a discovery endpoint
// whose response is cached for a configurable TTL.
type Discovery struct {
	Literal      []string
	URL          string
	TTL          time.Duration
	HTTPClient   *http.Client

	cached   []string
	cachedAt time.Time
}

// NewDiscovery returns a Discovery over either a literal server list or
// a discovery URL - exactly one should be non-empty.
func NewDiscovery(literal []string, url string, ttl time.Duration) *Discovery {
	client := http.DefaultClient
	return &Discovery{Literal: literal, URL: url, TTL: ttl, HTTPClient: client}
}

// Servers returns the current candidate server list, shuffled so
// repeated calls do not favor the same entry first. A literal list is
// reshuffled on every call; a discovered list is cached until TTL
// expires, then refetched and reshuffled.
func (d *Discovery) Servers(ctx context.Context) ([]string, error) {
	if len(d.Literal) > 0 {
		return shuffled(d.Literal), nil
	}

	if d.cached != nil && time.Since(d.cachedAt) < d.TTL {
		return shuffled(d.cached), nil
	}

	servers, err := d.fetch(ctx)
	if err != nil {
		return nil, err
	}
	d.cached = servers
	d.cachedAt = time.Now()
	return shuffled(servers), nil
}

func (d *Discovery) fetch(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("building discovery request: %w", err)
	}

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discovery request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery endpoint returned status %d", resp.StatusCode)
	}

	var body struct {
		Servers []string `json:"servers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding discovery response: %w", err)
	}
	return body.Servers, nil
}

func shuffled(in []string) []string {
	out := append([]string{}, in...)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// ServerURL forms the wss:// URL a session dials for one server host.
// It prefers an account-scoped subdomain (account.host) when that name
// actually resolves, and falls back to a plain query parameter against
// the bare host when it does not - letting an operator run either a
// wildcard-DNS multi-tenant edge or a single shared endpoint without
// the client needing to know which.
func ServerURL(host, accountID string) string {
	scoped := accountID + "." + host
	if _, err := net.LookupHost(scoped); err == nil {
		return fmt.Sprintf("wss://%s/", scoped)
	}
	return fmt.Sprintf("wss://%s/?account=%s", host, accountID)
}
