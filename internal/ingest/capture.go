package ingest

import (
	"log"
	"time"

	"websentry/internal/normalize"
)

// CaptureClient fetches structured request records from a traffic
// capture collaborator (a proxy sidecar or sensor API). The client is
// opaque here; polling and fan-in are this source's job.
type CaptureClient interface {
	Fetch() ([]normalize.CaptureRecord, error)
}

// CaptureSource polls a capture client on an interval and emits records
type CaptureSource struct {
	client   CaptureClient
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewCaptureSource(client CaptureClient, interval time.Duration) *CaptureSource {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &CaptureSource{
		client:   client,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (c *CaptureSource) Start() (<-chan normalize.RawRecord, error) {
	out := make(chan normalize.RawRecord)

	go func() {
		defer close(out)
		defer close(c.done)

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				records, err := c.client.Fetch()
				if err != nil {
					log.Printf("[INGEST] Capture fetch failed: %v", err)
					continue
				}
				for i := range records {
					rec := records[i]
					select {
					case out <- normalize.RawRecord{Capture: &rec}:
					case <-c.stop:
						return
					}
				}
			}
		}
	}()

	return out, nil
}

func (c *CaptureSource) Stop() error {
	close(c.stop)
	<-c.done
	return nil
}
