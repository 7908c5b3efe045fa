package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMemoryCache 测试内存缓存的基本功能
func TestMemoryCache(t *testing.T) {
	config := Config{
		Type:            "memory",
		DefaultTTL:      time.Second * 2,
		CleanupInterval: time.Second,
	}
	cache, err := NewMemoryCache(config)
	assert.NoError(t, err)
	assert.NotNil(t, cache)

	err = cache.Set("key1", "value1", 0)
	assert.NoError(t, err)

	val, found, err := cache.Get("key1")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "value1", val)

	val, found, err = cache.Get("non-existent")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, val)

	err = cache.Set("expire-soon", "temp-value", time.Millisecond*200)
	assert.NoError(t, err)
	time.Sleep(time.Millisecond * 500)

	_, found, err = cache.Get("expire-soon")
	assert.NoError(t, err)
	assert.False(t, found)

	err = cache.Set("to-delete", "delete-me", 0)
	assert.NoError(t, err)
	assert.NoError(t, cache.Delete("to-delete"))

	_, found, err = cache.Get("to-delete")
	assert.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, cache.Set("key2", "value2", 0))
	assert.NoError(t, cache.Clear())

	_, found, err = cache.Get("key2")
	assert.NoError(t, err)
	assert.False(t, found)
}

// TestRedisCache 使用miniredis测试Redis缓存
func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)

	cache, err := NewRedisCache(Config{
		Type:       "redis",
		RedisAddr:  mr.Addr(),
		KeyPrefix:  "test",
		DefaultTTL: time.Minute,
	})
	require.NoError(t, err)

	require.NoError(t, cache.Set("k1", "v1", 0))
	val, found, err := cache.Get("k1")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v1", val)

	// 键带前缀，默认TTL生效
	assert.True(t, mr.Exists("test:k1"))
	assert.Equal(t, time.Minute, mr.TTL("test:k1"))

	require.NoError(t, cache.Set("short", "v", time.Second))
	mr.FastForward(2 * time.Second)
	_, found, err = cache.Get("short")
	assert.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.Delete("k1"))
	_, found, err = cache.Get("k1")
	assert.NoError(t, err)
	assert.False(t, found)

	// Clear只删除本前缀的键
	require.NoError(t, mr.Set("other", "keep"))
	require.NoError(t, cache.Set("k2", "v2", 0))
	require.NoError(t, cache.Clear())
	assert.False(t, mr.Exists("test:k2"))
	assert.True(t, mr.Exists("other"))
}

// TestRedisCacheUnavailable 测试Redis不可用时创建失败
func TestRedisCacheUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisCache(Config{Type: "redis", RedisAddr: addr})
	assert.Error(t, err)
}

// TestCacheFactory 测试缓存工厂函数
func TestCacheFactory(t *testing.T) {
	memCache, err := NewCache(DefaultConfig())
	assert.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, memCache)

	mr := miniredis.RunT(t)
	redisCache, err := NewCache(Config{Type: "redis", RedisAddr: mr.Addr()})
	require.NoError(t, err)
	assert.IsType(t, &RedisCache{}, redisCache)

	// 未知类型回退到内存缓存
	unknownCache, err := NewCache(Config{Type: "unknown-type"})
	assert.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, unknownCache)
}

// TestGenerateCacheKey 测试缓存键生成
func TestGenerateCacheKey(t *testing.T) {
	assert.Equal(t, "prefix", GenerateCacheKey("prefix"))
	assert.Equal(t, "prefix:part1", GenerateCacheKey("prefix", "part1"))
	assert.Equal(t, "prefix:part1:part2:part3", GenerateCacheKey("prefix", "part1", "part2", "part3"))
}

// TestHashKey 测试哈希键生成
func TestHashKey(t *testing.T) {
	k1 := HashKey("verdict", "model", "doc", "chapter")
	k2 := HashKey("verdict", "model", "doc", "chapter")
	k3 := HashKey("verdict", "model", "doc", "other chapter")

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.Len(t, k1, len("verdict:")+64)
}
