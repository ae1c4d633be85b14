package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/use-agent/pagerender/models"
)

const (
	cleanupInterval = 5 * time.Minute
	entryTTL        = time.Hour
)

// entry holds a cached response with its creation timestamp.
type entry struct {
	response  models.RenderResponse
	createdAt time.Time
}

// Cache is an in-memory cache of render responses. It is safe for
// concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a Cache holding at most maxEntries responses. A background
// goroutine evicts entries older than an hour until Close is called.
func New(maxEntries int) *Cache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		stop:       make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// keyFields are the request fields that change what a render returns.
type keyFields struct {
	URL               string   `json:"url"`
	UserAgent         string   `json:"ua"`
	PageWidth         int      `json:"pw"`
	PageHeight        int      `json:"ph"`
	Stealth           *bool    `json:"st"`
	Intercept         bool     `json:"ic"`
	Interceptor       string   `json:"ih"`
	AwaitInterceptors bool     `json:"aw"`
	DelayMs           int      `json:"dl"`
	WaitFor           string   `json:"wf"`
	Script            string   `json:"sc"`
	OutputFormat      string   `json:"of"`
	ExtractMode       string   `json:"em"`
	CSSSelector       string   `json:"cs"`
	IncludeTags       []string `json:"in"`
	ExcludeTags       []string `json:"ex"`
	Citations         bool     `json:"ci"`
	IncludeLinks      bool     `json:"li"`
}

// Key fingerprints the parts of req that affect the response. Timeout,
// MaxAge and WebhookURL do not contribute.
func Key(req *models.RenderRequest) string {
	b, _ := json.Marshal(keyFields{
		URL:               req.URL,
		UserAgent:         req.UserAgent,
		PageWidth:         req.PageWidth,
		PageHeight:        req.PageHeight,
		Stealth:           req.Stealth,
		Intercept:         req.Intercept,
		Interceptor:       req.Interceptor,
		AwaitInterceptors: req.AwaitInterceptors,
		DelayMs:           req.DelayMs,
		WaitFor:           req.WaitFor,
		Script:            req.Script,
		OutputFormat:      req.OutputFormat,
		ExtractMode:       req.ExtractMode,
		CSSSelector:       req.CSSSelector,
		IncludeTags:       req.IncludeTags,
		ExcludeTags:       req.ExcludeTags,
		Citations:         req.Citations,
		IncludeLinks:      req.IncludeLinks,
	})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Get returns a copy of the cached response if it is younger than maxAgeMs
// milliseconds. maxAgeMs <= 0 never hits.
func (c *Cache) Get(key string, maxAgeMs int) (*models.RenderResponse, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}
	resp, createdAt, ok := c.lookup(key)
	if !ok || time.Since(createdAt) > time.Duration(maxAgeMs)*time.Millisecond {
		return nil, false
	}
	return resp, true
}

// Peek returns a copy of the cached response regardless of age.
func (c *Cache) Peek(key string) (*models.RenderResponse, bool) {
	resp, _, ok := c.lookup(key)
	return resp, ok
}

func (c *Cache) lookup(key string) (*models.RenderResponse, time.Time, bool) {
	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()
	if !ok {
		return nil, time.Time{}, false
	}
	resp := e.response
	return &resp, e.createdAt, true
}

// Set stores a copy of resp. At capacity an arbitrary entry is evicted.
func (c *Cache) Set(key string, resp *models.RenderResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}
	c.store[key] = &entry{response: *resp, createdAt: time.Now()}
}

// Len returns the number of cached responses.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Close stops the cleanup goroutine.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.evictOlderThan(time.Now().Add(-entryTTL))
		}
	}
}

func (c *Cache) evictOlderThan(cutoff time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
}
