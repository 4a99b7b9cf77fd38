package enrich

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Location is the subset of geolocation data kept on alerts
type Location struct {
	Country string
	City    string
}

// Geolocator resolves source IPs against an ip-api style endpoint.
// Results are cached with a TTL so a noisy attacker costs one lookup,
// not one per alert.
type Geolocator struct {
	baseURL string
	client  *http.Client
	ttl     time.Duration

	mu    sync.Mutex
	cache map[string]geoCacheEntry
}

type geoCacheEntry struct {
	loc     Location
	fetched time.Time
}

func NewGeolocator(baseURL string) *Geolocator {
	if baseURL == "" {
		baseURL = "http://ip-api.com/json"
	}
	return &Geolocator{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		ttl:     24 * time.Hour,
		cache:   make(map[string]geoCacheEntry),
	}
}

type geoResponse struct {
	Status  string `json:"status"`
	Country string `json:"country"`
	City    string `json:"city"`
}

func (g *Geolocator) Lookup(ip string) (Location, error) {
	g.mu.Lock()
	if e, ok := g.cache[ip]; ok && time.Since(e.fetched) < g.ttl {
		g.mu.Unlock()
		return e.loc, nil
	}
	g.mu.Unlock()

	resp, err := g.client.Get(g.baseURL + "/" + ip)
	if err != nil {
		return Location{}, fmt.Errorf("geo lookup for %s: %w", ip, err)
	}
	defer resp.Body.Close()

	var body geoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Location{}, fmt.Errorf("decode geo response for %s: %w", ip, err)
	}
	if body.Status != "success" {
		// Private and reserved ranges come back as failures; cache the
		// empty result so they are not retried per alert.
		loc := Location{}
		g.store(ip, loc)
		return loc, nil
	}

	loc := Location{Country: body.Country, City: body.City}
	g.store(ip, loc)
	return loc, nil
}

func (g *Geolocator) store(ip string, loc Location) {
	g.mu.Lock()
	g.cache[ip] = geoCacheEntry{loc: loc, fetched: time.Now()}
	g.mu.Unlock()
}
