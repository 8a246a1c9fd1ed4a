package httpserver

import (
	"sync"
	"time"

	"github.com/consultease/central/internal/auth"
)

// scanCache holds the most recent RFID scan outcome so the kiosk's polling
// loop can render it without the HTTP layer being in the scan's call path
// (scans arrive as push events from internal/rfid, not HTTP requests).
type scanCache struct {
	mu     sync.Mutex
	seq    int64
	result auth.StudentLoginResult
	err    error
	at     time.Time
}

func newScanCache() *scanCache {
	return &scanCache{}
}

// Set records a new scan outcome, bumping the sequence number so pollers
// can distinguish a fresh result from a repeat of the same one.
func (c *scanCache) Set(result auth.StudentLoginResult, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.result = result
	c.err = err
	c.at = time.Now()
}

func (c *scanCache) Get() (seq int64, result auth.StudentLoginResult, err error, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq, c.result, c.err, c.at
}

// OnResult adapts scanCache.Set to the callback signature StudentAuthenticator expects.
func (c *scanCache) OnResult(result auth.StudentLoginResult, err error) {
	c.Set(result, err)
}
