package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupTestRedis(t *testing.T, prefix string) (*miniredis.Miniredis, *Manager) {
	mr := miniredis.RunT(t)

	manager, err := NewManager(Config{
		Addr:       mr.Addr(),
		KeyPrefix:  prefix,
		DefaultTTL: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	return mr, manager
}

func TestManager_SetAndGet(t *testing.T) {
	_, manager := setupTestRedis(t, "")
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "k", "v", time.Minute))
	value, err := manager.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)
}

func TestManager_KeyPrefix(t *testing.T) {
	mr, manager := setupTestRedis(t, "crowdflow:")
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "bundle", "x", 0))
	assert.True(t, mr.Exists("crowdflow:bundle"))
	assert.False(t, mr.Exists("bundle"))

	// ttl 为 0 时使用默认值
	assert.Equal(t, time.Minute, mr.TTL("crowdflow:bundle"))

	require.NoError(t, manager.Delete(ctx, "bundle"))
	assert.False(t, mr.Exists("crowdflow:bundle"))
}

func TestManager_Miss(t *testing.T) {
	_, manager := setupTestRedis(t, "")
	ctx := context.Background()

	value, err := manager.Get(ctx, "missing")
	assert.True(t, IsCacheMiss(err))
	assert.Empty(t, value)

	var dest map[string]any
	assert.True(t, IsCacheMiss(manager.GetJSON(ctx, "missing", &dest)))
	assert.False(t, IsCacheMiss(fmt.Errorf("other")))
}

func TestManager_JSON(t *testing.T) {
	_, manager := setupTestRedis(t, "")
	ctx := context.Background()

	type bundle struct {
		TaskType  string   `json:"task_type"`
		Resources []string `json:"resources"`
	}
	in := bundle{TaskType: "sa", Resources: []string{"html", "js"}}
	require.NoError(t, manager.SetJSON(ctx, "b", in, time.Minute))

	var out bundle
	require.NoError(t, manager.GetJSON(ctx, "b", &out))
	assert.Equal(t, in, out)

	require.NoError(t, manager.Set(ctx, "bad", "not json", time.Minute))
	err := manager.GetJSON(ctx, "bad", &out)
	assert.Error(t, err)
	assert.False(t, IsCacheMiss(err))

	assert.Error(t, manager.SetJSON(ctx, "chan", make(chan int), time.Minute))
}

func TestManager_Incr(t *testing.T) {
	_, manager := setupTestRedis(t, "p:")
	ctx := context.Background()

	n, err := manager.Incr(ctx, "gen")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = manager.Incr(ctx, "gen")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	value, err := manager.Get(ctx, "gen")
	require.NoError(t, err)
	assert.Equal(t, "2", value)
}

func TestManager_TTL(t *testing.T) {
	mr, manager := setupTestRedis(t, "")
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "ttl", "value", 100*time.Millisecond))
	_, err := manager.Get(ctx, "ttl")
	require.NoError(t, err)

	mr.FastForward(200 * time.Millisecond)
	_, err = manager.Get(ctx, "ttl")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_Closed(t *testing.T) {
	_, manager := setupTestRedis(t, "")
	ctx := context.Background()

	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	_, err := manager.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, manager.Ping(ctx), ErrClosed)
	_, err = manager.Incr(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestManager_ConnectFailure(t *testing.T) {
	manager, err := NewManager(Config{Addr: "127.0.0.1:1"}, zap.NewNop())
	assert.Nil(t, manager)
	assert.Error(t, err)
}

func TestManager_GetStats(t *testing.T) {
	_, manager := setupTestRedis(t, "")
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "a", "1", time.Minute))
	require.NoError(t, manager.Set(ctx, "b", "2", time.Minute))

	stats, err := manager.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Keys)
}

func TestParseInfo(t *testing.T) {
	fields := parseInfo("# Stats\r\nkeyspace_hits:12\r\nkeyspace_misses:3\r\n\r\n")
	assert.Equal(t, "12", fields["keyspace_hits"])
	assert.Equal(t, "3", fields["keyspace_misses"])
}

func TestManager_ConcurrentIncr(t *testing.T) {
	_, manager := setupTestRedis(t, "")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := manager.Incr(ctx, "counter")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	value, err := manager.Get(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, "10", value)
}

type fakeStatsRecorder struct {
	mu   sync.Mutex
	keys []int64
}

func (f *fakeStatsRecorder) RecordCacheKeys(cacheType string, keys int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, keys)
}

func (f *fakeStatsRecorder) snapshot() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.keys...)
}

func TestManager_ReportStats(t *testing.T) {
	_, manager := setupTestRedis(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, manager.Set(ctx, "a", "1", time.Minute))
	require.NoError(t, manager.Set(ctx, "b", "2", time.Minute))

	rec := &fakeStatsRecorder{}
	done := make(chan struct{})
	go func() {
		manager.ReportStats(ctx, "template_bundle", 10*time.Millisecond, rec)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(rec.snapshot()) >= 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(2), rec.snapshot()[0])

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ReportStats did not stop after cancel")
	}
}

func TestManager_ReportStatsStopsWhenClosed(t *testing.T) {
	_, manager := setupTestRedis(t, "")
	require.NoError(t, manager.Close())

	done := make(chan struct{})
	go func() {
		manager.ReportStats(context.Background(), "template_bundle", time.Hour, &fakeStatsRecorder{})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ReportStats did not stop on a closed manager")
	}
}
