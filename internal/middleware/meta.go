package middleware

import "github.com/gin-gonic/gin"

const (
	responseMetaKey = "screen_groups.response_meta"
	cacheHitKey     = "cache_hit"
)

// WithResponseMeta gives every request an empty meta map that handlers fill
// before writing the envelope.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseMetaKey, map[string]interface{}{})
		c.Next()
	}
}

// SetCacheHit records whether the payload was served from the health cache.
// The flag is mirrored in X-Cache for clients that only read headers.
func SetCacheHit(c *gin.Context, hit bool) {
	if c == nil {
		return
	}
	meta, ok := metaFrom(c)
	if !ok {
		meta = map[string]interface{}{}
		c.Set(responseMetaKey, meta)
	}
	meta[cacheHitKey] = hit
	if hit {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}
}

// ExtractMeta returns the meta recorded for the request, or nil when empty.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	meta, ok := metaFrom(c)
	if !ok || len(meta) == 0 {
		return nil
	}
	return meta
}

func metaFrom(c *gin.Context) (map[string]interface{}, bool) {
	value, exists := c.Get(responseMetaKey)
	if !exists {
		return nil, false
	}
	meta, ok := value.(map[string]interface{})
	return meta, ok
}
