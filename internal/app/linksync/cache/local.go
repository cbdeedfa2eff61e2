package cache

import (
	"strconv"
	"time"

	"github.com/dgraph-io/ristretto"
)

// DisplayCache 缓存 item id → 短链的展示查询，挡掉高频读。
// 只用于展示：它的结果永远不能用来抑制创建（库才是权威）。
type DisplayCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

func NewDisplayCache(maxItems int64, maxCost int64) (*DisplayCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &DisplayCache{
		cache: cache,
		ttl:   5 * time.Minute,
	}, nil
}

func key(itemID int64) string {
	return strconv.FormatInt(itemID, 10)
}

func (d *DisplayCache) Get(itemID int64) (string, bool) {
	if v, ok := d.cache.Get(key(itemID)); ok {
		return v.(string), true
	}
	return "", false
}

func (d *DisplayCache) Set(itemID int64, shortURL string) {
	// cost=1 表示按条目数限制
	d.cache.SetWithTTL(key(itemID), shortURL, 1, d.ttl)
}

func (d *DisplayCache) Del(itemID int64) {
	d.cache.Del(key(itemID))
}

func (d *DisplayCache) Close() {
	d.cache.Close()
}
