// Package cache holds fetched page content for the duration of its TTL so
// repeated get_content calls on the same URL within or across runs skip the
// network.
package cache

import (
	"container/list"
	"context"
	"crypto/md5"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/harukawa/deepresearch/internal/config"
	"github.com/harukawa/deepresearch/internal/metrics"
)

// entry is a cached fetch result: extracted text plus the page title.
type entry struct {
	Title string
	Text  string
}

// LocalLRU is a simple in-process LRU with TTL.
type LocalLRU struct {
	mu   sync.Mutex
	cap  int
	list *list.List               // front = most recent
	m    map[string]*list.Element // key -> element
}

type lruEntry struct {
	key string
	val entry
	exp time.Time
}

// NewLocalLRU creates an LRU holding up to capacity entries.
func NewLocalLRU(capacity int) *LocalLRU {
	if capacity <= 0 {
		capacity = 256
	}
	return &LocalLRU{cap: capacity, list: list.New(), m: make(map[string]*list.Element, capacity)}
}

func (l *LocalLRU) get(key string) (entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.m[key]; ok {
		ent := el.Value.(lruEntry)
		if ent.exp.After(time.Now()) {
			l.list.MoveToFront(el)
			return ent.val, true
		}
		// expired: remove
		l.list.Remove(el)
		delete(l.m, key)
	}
	return entry{}, false
}

func (l *LocalLRU) set(key string, v entry, ttl time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.m[key]; ok {
		el.Value = lruEntry{key: key, val: v, exp: time.Now().Add(ttl)}
		l.list.MoveToFront(el)
		return
	}
	el := l.list.PushFront(lruEntry{key: key, val: v, exp: time.Now().Add(ttl)})
	l.m[key] = el
	if l.list.Len() > l.cap {
		last := l.list.Back()
		if last != nil {
			ent := last.Value.(lruEntry)
			delete(l.m, ent.key)
			l.list.Remove(last)
		}
	}
}

// ContentCache layers the local LRU over an optional Redis backend. Redis
// failures degrade to the local layer, never to an error.
type ContentCache struct {
	lru    *LocalLRU
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// New builds the cache from configuration. A Redis address that does not
// answer a ping leaves the cache local-only.
func New(cfg config.CacheConfig, logger *zap.Logger) *ContentCache {
	c := &ContentCache{
		lru:    NewLocalLRU(cfg.LocalSize),
		ttl:    cfg.TTL,
		logger: logger,
	}
	if c.ttl <= 0 {
		c.ttl = 24 * time.Hour
	}
	if cfg.RedisAddr != "" {
		cli := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := cli.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unreachable, content cache is local-only",
				zap.String("addr", cfg.RedisAddr), zap.Error(err))
			_ = cli.Close()
		} else {
			c.redis = cli
		}
	}
	return c
}

func key(url string) string {
	h := md5.Sum([]byte(url))
	return "page:" + hex.EncodeToString(h[:])
}

// Get returns cached text and title for a URL.
func (c *ContentCache) Get(ctx context.Context, url string) (text, title string, ok bool) {
	k := key(url)
	if e, ok := c.lru.get(k); ok {
		metrics.CacheHits.WithLabelValues("local").Inc()
		return e.Text, e.Title, true
	}
	if c.redis != nil {
		vals, err := c.redis.HGetAll(ctx, k).Result()
		if err == nil && len(vals) > 0 {
			e := entry{Title: vals["title"], Text: vals["text"]}
			c.lru.set(k, e, c.ttl)
			metrics.CacheHits.WithLabelValues("redis").Inc()
			return e.Text, e.Title, true
		}
	}
	metrics.CacheMisses.Inc()
	return "", "", false
}

// Set stores fetched content for a URL.
func (c *ContentCache) Set(ctx context.Context, url, text, title string) {
	k := key(url)
	c.lru.set(k, entry{Title: title, Text: text}, c.ttl)
	if c.redis != nil {
		if err := c.redis.HSet(ctx, k, "title", title, "text", text).Err(); err != nil {
			c.logger.Debug("Redis set failed", zap.Error(err))
			return
		}
		_ = c.redis.Expire(ctx, k, c.ttl).Err()
	}
}

// Close releases the Redis connection if one was established.
func (c *ContentCache) Close() error {
	if c.redis != nil {
		return c.redis.Close()
	}
	return nil
}
