package imaging

import (
	"container/list"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultFrameCacheSize is the number of frames a FrameCache keeps when
// NewFrameCache is given a non-positive limit.
const DefaultFrameCacheSize = 8

// FrameCache keeps recently decoded frames in memory, keyed by cleaned file
// path.
//
// Every Load stats the file. A cached frame is reused only while the file's
// modification time and size are unchanged, so a capture process that
// rewrites one path frame after frame is always read afresh, while detect,
// track and overlay calls on an unchanged frame decode it once.
//
// At most limit frames are kept; the least recently used one is dropped
// first. FrameCache is safe for concurrent use.
type FrameCache struct {
	mu      sync.Mutex
	limit   int
	entries map[string]*list.Element
	order   *list.List // front is most recently used
	stats   CacheStats
}

// CacheStats counts FrameCache lookups.
type CacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`

	// Reloads counts misses caused by a changed file rather than a cold
	// cache.
	Reloads uint64 `json:"reloads"`
}

type cachedFrame struct {
	path    string
	img     image.Image
	modTime time.Time
	size    int64
}

func (e *cachedFrame) fresh(stat os.FileInfo) bool {
	return e.size == stat.Size() && e.modTime.Equal(stat.ModTime())
}

// NewFrameCache creates an empty cache holding up to limit frames.
func NewFrameCache(limit int) *FrameCache {
	if limit <= 0 {
		limit = DefaultFrameCacheSize
	}
	return &FrameCache{
		limit:   limit,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Load returns the decoded frame at path.
//
// Supported formats are PNG, JPEG and GIF.
func (c *FrameCache) Load(path string) (image.Image, error) {
	e, err := c.load(path)
	if err != nil {
		return nil, err
	}
	return e.img, nil
}

func (c *FrameCache) load(path string) (*cachedFrame, error) {
	key := filepath.Clean(path)
	stat, err := os.Stat(key)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	c.mu.Lock()
	el, cached := c.entries[key]
	if cached {
		if e := el.Value.(*cachedFrame); e.fresh(stat) {
			c.order.MoveToFront(el)
			c.stats.Hits++
			c.mu.Unlock()
			return e, nil
		}
	}
	c.mu.Unlock()

	f, err := os.Open(key)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	e := &cachedFrame{path: key, img: img, modTime: stat.ModTime(), size: stat.Size()}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Misses++
	if cached {
		c.stats.Reloads++
	}
	if old, ok := c.entries[key]; ok {
		c.order.Remove(old)
	}
	c.entries[key] = c.order.PushFront(e)
	for c.order.Len() > c.limit {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cachedFrame).path)
	}
	return e, nil
}

// Len returns the number of cached frames.
func (c *FrameCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns the lookup counters.
func (c *FrameCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = c.order.Len()
	return s
}

// Clear drops every cached frame. Counters are kept.
func (c *FrameCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
	c.mu.Unlock()
}

// FrameInfo describes a frame file.
type FrameInfo struct {
	// Width is the frame width in pixels.
	Width int `json:"width"`

	// Height is the frame height in pixels.
	Height int `json:"height"`

	// Format is "png", "jpeg", "gif" or "unknown", derived from the file
	// extension.
	Format string `json:"format"`

	// Grayscale is true when the decoded frame has a single luminance
	// channel, in which case preprocessing skips color conversion work.
	Grayscale bool `json:"grayscale"`

	// FileSizeBytes is the size of the file on disk.
	FileSizeBytes int64 `json:"file_size_bytes"`

	// Modified is the file's modification time when it was decoded.
	Modified time.Time `json:"modified"`
}

// LoadFrameInfo loads a frame through the cache and describes it.
func LoadFrameInfo(cache *FrameCache, path string) (*FrameInfo, error) {
	e, err := cache.load(path)
	if err != nil {
		return nil, err
	}

	format := "unknown"
	switch filepath.Ext(path) {
	case ".png":
		format = "png"
	case ".jpg", ".jpeg":
		format = "jpeg"
	case ".gif":
		format = "gif"
	}

	grayscale := false
	switch e.img.(type) {
	case *image.Gray, *image.Gray16:
		grayscale = true
	}

	bounds := e.img.Bounds()
	return &FrameInfo{
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
		Format:        format,
		Grayscale:     grayscale,
		FileSizeBytes: e.size,
		Modified:      e.modTime,
	}, nil
}
