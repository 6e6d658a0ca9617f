/*
Copyright The Helm Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package driver // import "helm.sh/release-store/pkg/storage/driver"

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"helm.sh/release-store/internal/logging"
	rspb "helm.sh/release-store/pkg/release"
)

var _ Driver = (*Redis)(nil)

// RedisDriverName is the string name of this driver.
const RedisDriverName = "Redis"

const (
	// redisKeyPrefix prefixes every key the driver writes.
	redisKeyPrefix = "helm:"
	// redisNamespacesKey is the set of namespaces holding at least one release.
	redisNamespacesKey = redisKeyPrefix + "namespaces"
	// redisLabelPrefix prefixes label fields in a release hash.
	redisLabelPrefix = "label:"
	redisPingTimeout = 5 * time.Second
)

// Redis is a storage driver keeping each release in a Redis hash. The
// hash holds the encoded release and one field per label; a set per
// namespace indexes the release keys.
type Redis struct {
	client    redis.UniversalClient
	namespace string
	logging.LogHolder
}

// NewRedis connects to the server at url, a redis:// or rediss:// URL. An
// empty namespace lists and queries across all namespaces.
func NewRedis(url, namespace string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "redis driver: failed to parse URL")
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, &BackendError{Op: "connect", Err: err}
	}
	return newRedisWithClient(client, namespace), nil
}

func newRedisWithClient(client redis.UniversalClient, namespace string) *Redis {
	r := &Redis{client: client, namespace: namespace}
	r.SetLogger(slog.Default().Handler())
	return r
}

// Close closes the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Name returns the name of the driver.
func (r *Redis) Name() string {
	return RedisDriverName
}

func (r *Redis) writeNamespace() string {
	if r.namespace == "" {
		return defaultNamespace
	}
	return r.namespace
}

func redisReleaseKey(namespace, key string) string {
	return redisKeyPrefix + "release:" + namespace + ":" + key
}

func redisIndexKey(namespace string) string {
	return redisKeyPrefix + "releases:" + namespace
}

// Get returns the release named by key or returns ErrReleaseNotFound.
func (r *Redis) Get(key string) (*rspb.Release, error) {
	ctx := context.Background()
	fields, err := r.client.HGetAll(ctx, redisReleaseKey(r.writeNamespace(), key)).Result()
	if err != nil {
		return nil, fromRedisError("get", err)
	}
	return decodeRedisFields(key, fields)
}

// List returns the list of all releases such that filter(release) == true
func (r *Redis) List(filter func(*rspb.Release) bool) ([]*rspb.Release, error) {
	return r.list("list", labels{"owner": owner}, filter)
}

// Query returns the set of releases that match the provided set of labels.
// No match yields an empty result.
func (r *Redis) Query(keyvals map[string]string) ([]*rspb.Release, error) {
	var lbs labels

	lbs.init()
	lbs.fromMap(keyvals)
	return r.list("query", lbs, func(*rspb.Release) bool { return true })
}

func (r *Redis) list(op string, lbs labels, filter func(*rspb.Release) bool) ([]*rspb.Release, error) {
	ctx := context.Background()

	namespaces := []string{r.namespace}
	if r.namespace == "" {
		var err error
		if namespaces, err = r.client.SMembers(ctx, redisNamespacesKey).Result(); err != nil {
			return nil, fromRedisError(op, err)
		}
	}

	var ls []*rspb.Release
	for _, ns := range namespaces {
		keys, err := r.client.SMembers(ctx, redisIndexKey(ns)).Result()
		if err != nil {
			return nil, fromRedisError(op, err)
		}
		for _, key := range keys {
			fields, err := r.client.HGetAll(ctx, redisReleaseKey(ns, key)).Result()
			if err != nil {
				return nil, fromRedisError(op, err)
			}
			// removed between the index read and now
			if len(fields) == 0 {
				continue
			}
			if !redisLabels(fields).match(lbs) {
				continue
			}
			rls, err := decodeRedisFields(key, fields)
			if err != nil {
				r.Logger().Warn("skipping release that failed to decode",
					slog.String("op", op),
					slog.String("key", key),
					slog.Any("error", err),
				)
				continue
			}
			if filter(rls) {
				ls = append(ls, rls)
			}
		}
	}
	return ls, nil
}

// Create creates a new release or returns ErrReleaseExists.
func (r *Redis) Create(key string, rls *rspb.Release) error {
	var lbs labels

	lbs.init()
	lbs.set("createdAt", strconv.FormatInt(time.Now().Unix(), 10))

	fields, err := newRedisFields(rls, lbs)
	if err != nil {
		return errors.WithMessagef(err, "create: failed to encode release %q", rls.Name)
	}

	ns := r.writeNamespace()
	hkey := redisReleaseKey(ns, key)
	err = r.client.Watch(context.Background(), func(tx *redis.Tx) error {
		ctx := context.Background()
		n, err := tx.Exists(ctx, hkey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrReleaseExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, hkey, fields)
			pipe.SAdd(ctx, redisIndexKey(ns), key)
			pipe.SAdd(ctx, redisNamespacesKey, ns)
			return nil
		})
		return err
	}, hkey)
	if err != nil {
		return fromRedisError("create", err)
	}
	r.Logger().Debug("created release hash", slog.String("key", key), slog.String("namespace", ns))
	return nil
}

// Update replaces a release or returns ErrReleaseNotFound.
func (r *Redis) Update(key string, rls *rspb.Release) error {
	var lbs labels

	lbs.init()
	lbs.set("modifiedAt", strconv.FormatInt(time.Now().Unix(), 10))

	fields, err := newRedisFields(rls, lbs)
	if err != nil {
		return errors.WithMessagef(err, "update: failed to encode release %q", rls.Name)
	}

	hkey := redisReleaseKey(r.writeNamespace(), key)
	err = r.client.Watch(context.Background(), func(tx *redis.Tx) error {
		ctx := context.Background()
		n, err := tx.Exists(ctx, hkey).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrReleaseNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, hkey)
			pipe.HSet(ctx, hkey, fields)
			return nil
		})
		return err
	}, hkey)
	if err != nil {
		return fromRedisError("update", err)
	}
	r.Logger().Debug("updated release hash", slog.String("key", key))
	return nil
}

// Delete deletes a release or returns ErrReleaseNotFound.
func (r *Redis) Delete(key string) (*rspb.Release, error) {
	ns := r.writeNamespace()
	hkey := redisReleaseKey(ns, key)

	var rls *rspb.Release
	err := r.client.Watch(context.Background(), func(tx *redis.Tx) error {
		ctx := context.Background()
		fields, err := tx.HGetAll(ctx, hkey).Result()
		if err != nil {
			return err
		}
		if rls, err = decodeRedisFields(key, fields); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, hkey)
			pipe.SRem(ctx, redisIndexKey(ns), key)
			return nil
		})
		return err
	}, hkey)
	if err != nil {
		return nil, fromRedisError("delete", err)
	}
	return rls, nil
}

// fromRedisError maps a Redis failure onto the driver error kinds. Errors
// that already are driver errors pass through.
func fromRedisError(op string, err error) error {
	var de *DecodeError
	switch {
	case errors.Is(err, redis.Nil):
		return ErrReleaseNotFound
	case errors.Is(err, redis.TxFailedErr):
		return errors.WithMessagef(ErrOutOfSync, "%s: %s", op, err)
	case errors.Is(err, ErrReleaseExists), errors.Is(err, ErrReleaseNotFound), errors.Is(err, ErrInvalidData), errors.As(err, &de):
		return err
	}
	return &BackendError{Op: op, Err: err}
}

// decodeRedisFields reads the release out of a hash. No fields means the
// hash does not exist.
func decodeRedisFields(key string, fields map[string]string) (*rspb.Release, error) {
	if len(fields) == 0 {
		return nil, ErrReleaseNotFound
	}
	body, ok := fields[releaseDataKey]
	if !ok {
		return nil, errors.WithMessagef(ErrInvalidData, "hash %q has no %q field", key, releaseDataKey)
	}
	return decodeRelease([]byte(body), decodeBase64)
}

// redisLabels extracts the label fields of a release hash.
func redisLabels(fields map[string]string) labels {
	lbs := labels{}
	for k, v := range fields {
		if name, ok := strings.CutPrefix(k, redisLabelPrefix); ok {
			lbs[name] = v
		}
	}
	return lbs
}

func newRedisFields(rls *rspb.Release, lbs labels) (map[string]interface{}, error) {
	s, err := encodeRelease(rls)
	if err != nil {
		return nil, err
	}
	fields := map[string]interface{}{releaseDataKey: s}
	for k, v := range releaseLabels(lbs, rls) {
		fields[redisLabelPrefix+k] = v
	}
	return fields, nil
}
