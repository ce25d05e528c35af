package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/parking-lot-reservation/internal/config"
)

// captureWriter captures response body/status while forwarding to the client.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	size   int64
	limit  int64
}

func (cw *captureWriter) WriteHeader(code int) { cw.status = code; cw.ResponseWriter.WriteHeader(code) }
func (cw *captureWriter) Write(b []byte) (int, error) {
	if cw.limit <= 0 || cw.size < cw.limit {
		remain := cw.limit - cw.size
		if cw.limit <= 0 {
			cw.buf.Write(b)
		} else if remain > 0 {
			if int64(len(b)) <= remain {
				cw.buf.Write(b)
			} else {
				cw.buf.Write(b[:remain])
			}
		}
		cw.size += int64(len(b))
	}
	return cw.ResponseWriter.Write(b)
}

// RedisCache caches successful GET responses in Redis and indexes every
// cached key under an entity tag derived from the route ("lots",
// "spots", "reservations"). Write paths call Invalidate with the tags
// they touched, which drops exactly those entries instead of flushing
// the whole cache. A nil client or disabled config degrades to a
// pass-through middleware and no-op invalidation.
type RedisCache struct {
	cfg config.CacheConfig
	rdb *redis.Client
}

func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) *RedisCache {
	return &RedisCache{cfg: cfg, rdb: rdb}
}

func (rc *RedisCache) enabled() bool { return rc != nil && rc.cfg.Enabled && rc.rdb != nil }

// routeTag maps a route path to the entity tag its responses belong
// to: the last path segment that is neither an API prefix nor a
// parameter. "/v1/lots/:id/spots" tags as "spots", "/v1/lots/:id" as
// "lots", so invalidating a tag drops exactly the views of that
// entity.
func routeTag(path string) string {
	tag := "misc"
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "api" || strings.HasPrefix(seg, ":") {
			continue
		}
		if strings.HasPrefix(seg, "v") && len(seg) <= 3 {
			continue
		}
		tag = seg
	}
	return tag
}

// key builds the storage key: prefix, entity tag, then a digest of the
// route and query so variants stay distinct.
func (rc *RedisCache) key(c echo.Context) (tag, key string) {
	r := c.Request()
	tag = routeTag(c.Path())

	var material string
	switch strings.ToLower(rc.cfg.KeyStrategy) {
	case "route":
		material = c.Path()
	case "method_route":
		material = r.Method + ":" + c.Path()
	case "method_route_query":
		material = r.Method + ":" + c.Path() + "?" + r.URL.RawQuery
	default: // "route_query"
		material = c.Path() + "?" + r.URL.RawQuery
	}
	sum := sha1.Sum([]byte(material))
	return tag, fmt.Sprintf("%s:%s:%x", rc.cfg.Prefix, tag, sum[:])
}

func (rc *RedisCache) tagSetKey(tag string) string {
	return rc.cfg.Prefix + ":tag:" + tag
}

// Invalidate removes every cached response recorded under the given
// entity tags. It runs synchronously on the write path so a read that
// follows a booking never serves the stale availability snapshot.
// Errors are swallowed; a failed invalidation only shortens freshness
// to the entry's TTL.
func (rc *RedisCache) Invalidate(ctx context.Context, tags ...string) {
	if !rc.enabled() {
		return
	}
	for _, tag := range tags {
		setKey := rc.tagSetKey(tag)
		keys, err := rc.rdb.SMembers(ctx, setKey).Result()
		if err != nil {
			continue
		}
		if len(keys) > 0 {
			_ = rc.rdb.Del(ctx, keys...).Err()
		}
		_ = rc.rdb.Del(ctx, setKey).Err()
	}
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
	hdr := make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &hdr); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, hdr, bs[8+hlen:], true
}

// Middleware serves cached responses with their original headers so
// clients see identical formatting, and records fresh responses under
// the route's entity tag.
func (rc *RedisCache) Middleware() echo.MiddlewareFunc {
	if !rc.enabled() {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	ttl := rc.cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	maxBody := int64(rc.cfg.MaxBodyBytes)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !rc.cfg.Methods[strings.ToUpper(c.Request().Method)] {
				return next(c)
			}

			ctx := c.Request().Context()
			tag, key := rc.key(c)

			if bs, err := rc.rdb.Get(ctx, key).Bytes(); err == nil && len(bs) >= 8 {
				if status, hdr, body, ok := decodePayload(bs); ok {
					for k, vals := range hdr {
						if strings.EqualFold(k, "Content-Length") {
							continue
						}
						for _, v := range vals {
							c.Response().Header().Add(k, v)
						}
					}
					c.Response().Header().Set("X-Cache", "HIT")
					c.Response().WriteHeader(status)
					if len(body) > 0 {
						_, _ = c.Response().Write(body)
					}
					return nil
				}
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")

			if err := next(c); err != nil {
				return err
			}

			if cw.status == http.StatusOK {
				hdr := make(http.Header, len(c.Response().Header()))
				for k, vals := range c.Response().Header() {
					vv := make([]string, len(vals))
					copy(vv, vals)
					hdr[k] = vv
				}
				body := cw.buf.Bytes()
				if maxBody > 0 && int64(len(body)) > maxBody {
					body = body[:maxBody]
				}
				if payload, err := encodePayload(cw.status, hdr, body); err == nil {
					bg := context.Background()
					if err := rc.rdb.SetEx(bg, key, payload, ttl).Err(); err == nil {
						// Index under the tag so Invalidate can find it. The
						// set outlives entries slightly; stale members just
						// delete nothing.
						_ = rc.rdb.SAdd(bg, rc.tagSetKey(tag), key).Err()
						_ = rc.rdb.Expire(bg, rc.tagSetKey(tag), ttl+time.Minute).Err()
					}
				}
			}
			return nil
		}
	}
}
