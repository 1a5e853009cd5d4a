package bot

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// PhotoCache remembers Telegram file IDs of uploaded images so the same bytes
// are only uploaded once.
type PhotoCache struct {
	mu    sync.RWMutex
	items map[string]string
}

func NewPhotoCache() *PhotoCache {
	return &PhotoCache{items: make(map[string]string)}
}

func photoKey(img []byte) string {
	sum := sha256.Sum256(img)

	return hex.EncodeToString(sum[:])
}

func (c *PhotoCache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	fileID, ok := c.items[key]
	return fileID, ok
}

func (c *PhotoCache) Set(key string, fileID string) {
	if key == "" || fileID == "" {
		return
	}

	c.mu.Lock()
	c.items[key] = fileID
	c.mu.Unlock()
}

func (c *PhotoCache) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

func (c *PhotoCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}
