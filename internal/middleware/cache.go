package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/superhero-manager/backend/internal/metrics"
	"github.com/superhero-manager/backend/pkg/logger"
	"go.uber.org/zap"
)

// ResponseCache stores successful GET responses in Redis. Entries are
// namespaced by a generation counter; Invalidate bumps it so every older
// entry becomes unreachable at once and expires on its own.
type ResponseCache struct {
	rdb     *redis.Client
	ttl     time.Duration
	prefix  string
	maxBody int
	metrics *metrics.Metrics
}

func NewResponseCache(rdb *redis.Client, prefix string, ttl time.Duration, m *metrics.Metrics) *ResponseCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ResponseCache{
		rdb:     rdb,
		ttl:     ttl,
		prefix:  prefix,
		maxBody: 4 << 20,
		metrics: m,
	}
}

// captureWriter records the body while forwarding it to the client
type captureWriter struct {
	gin.ResponseWriter
	buf      bytes.Buffer
	overflow bool
	limit    int
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	if !cw.overflow {
		if cw.buf.Len()+len(b) > cw.limit {
			cw.overflow = true
			cw.buf.Reset()
		} else {
			cw.buf.Write(b)
		}
	}
	return cw.ResponseWriter.Write(b)
}

func (cw *captureWriter) WriteString(s string) (int, error) {
	return cw.Write([]byte(s))
}

func (rc *ResponseCache) generationKey() string {
	return rc.prefix + ":gen"
}

// cacheKey hashes the path and raw query under the current generation
func (rc *ResponseCache) cacheKey(ctx context.Context, r *http.Request) (string, error) {
	gen, err := rc.rdb.Get(ctx, rc.generationKey()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	sum := sha1.Sum([]byte(r.URL.Path + "?" + r.URL.RawQuery))
	return fmt.Sprintf("%s:%d:%x", rc.prefix, gen, sum[:]), nil
}

// encodePayload packs: [4 bytes status][4 bytes headerLen][headerJSON][body]
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdrJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdrJSON)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
	copy(out[8:8+len(hdrJSON)], hdrJSON)
	copy(out[8+len(hdrJSON):], body)
	return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status = int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	header = make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &header); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, header, bs[8+hlen:], true
}

// Middleware serves GET requests from the cache and fills it on a miss.
// Redis errors degrade to an uncached response.
func (rc *ResponseCache) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key, err := rc.cacheKey(ctx, c.Request)
		if err != nil {
			logger.Log.Warn("Response cache unavailable", zap.Error(err))
			c.Next()
			return
		}

		if bs, err := rc.rdb.Get(ctx, key).Bytes(); err == nil {
			if status, hdr, body, ok := decodePayload(bs); ok {
				rc.metrics.CacheLookup(true)
				for k, vals := range hdr {
					if strings.EqualFold(k, "Content-Length") {
						continue
					}
					for _, v := range vals {
						c.Writer.Header().Add(k, v)
					}
				}
				c.Header("X-Cache", "HIT")
				c.Status(status)
				c.Writer.Write(body)
				c.Abort()
				return
			}
		}

		rc.metrics.CacheLookup(false)
		cw := &captureWriter{ResponseWriter: c.Writer, limit: rc.maxBody}
		c.Writer = cw
		c.Header("X-Cache", "MISS")

		c.Next()

		if cw.Status() != http.StatusOK || cw.overflow {
			return
		}
		hdr := http.Header{}
		if ct := cw.Header().Get("Content-Type"); ct != "" {
			hdr.Set("Content-Type", ct)
		}
		payload, err := encodePayload(cw.Status(), hdr, cw.buf.Bytes())
		if err != nil {
			return
		}
		if err := rc.rdb.Set(context.WithoutCancel(ctx), key, payload, rc.ttl).Err(); err != nil {
			logger.Log.Warn("Failed to store cached response", zap.Error(err))
		}
	}
}

// Invalidate drops every cached response
func (rc *ResponseCache) Invalidate(ctx context.Context) error {
	return rc.rdb.Incr(ctx, rc.generationKey()).Err()
}

// InvalidateOnWrite clears the cache after a successful non-GET request
func (rc *ResponseCache) InvalidateOnWrite() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method == http.MethodGet || c.Writer.Status() >= http.StatusBadRequest {
			return
		}
		if err := rc.Invalidate(context.WithoutCancel(c.Request.Context())); err != nil {
			logger.Log.Warn("Failed to invalidate response cache", zap.Error(err))
		}
	}
}
