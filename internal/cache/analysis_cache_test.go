package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"call-insights/internal/domain"
)

// fakeRedis keeps values in memory and builds commands the way go-redis
// returns them.
type fakeRedis struct {
	values map[string]string
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	switch v := value.(type) {
	case []byte:
		f.values[key] = string(v)
	case string:
		f.values[key] = v
	}
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func TestNewAnalysisCache(t *testing.T) {
	_, err := NewAnalysisCache(nil, time.Hour)
	require.Error(t, err)

	c, err := NewAnalysisCache(newFakeRedis(), 0)
	require.NoError(t, err)
	require.Equal(t, defaultTTL, c.ttl)
}

func TestAnalysisCache_RoundTrip(t *testing.T) {
	rdb := newFakeRedis()
	c, err := NewAnalysisCache(rdb, time.Hour)
	require.NoError(t, err)

	score := 0.4
	in := domain.ConversationAnalysis{
		OverallSentiment: domain.SentimentMixed,
		SentimentScore:   &score,
		Objections:       []string{"Es caro"},
		AnalysisModel:    "gpt-4o-mini",
	}
	require.NoError(t, c.Set(context.Background(), "abc123", in))
	require.Equal(t, time.Hour, rdb.ttls[keyPrefix+"abc123"])

	out, found, err := c.Get(context.Background(), "abc123")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, domain.SentimentMixed, out.OverallSentiment)
	require.InDelta(t, 0.4, *out.SentimentScore, 1e-9)
	require.Equal(t, []string{"Es caro"}, out.Objections)
}

func TestAnalysisCache_Miss(t *testing.T) {
	c, err := NewAnalysisCache(newFakeRedis(), time.Hour)
	require.NoError(t, err)
	_, found, err := c.Get(context.Background(), "nope")
	require.NoError(t, err)
	require.False(t, found)
}

func TestAnalysisCache_Errors(t *testing.T) {
	rdb := newFakeRedis()
	rdb.getErr = errors.New("connection refused")
	rdb.setErr = errors.New("READONLY")
	c, err := NewAnalysisCache(rdb, time.Hour)
	require.NoError(t, err)

	_, _, err = c.Get(context.Background(), "k")
	require.ErrorContains(t, err, "connection refused")
	err = c.Set(context.Background(), "k", domain.ConversationAnalysis{})
	require.ErrorContains(t, err, "READONLY")
}

func TestAnalysisCache_CorruptValue(t *testing.T) {
	rdb := newFakeRedis()
	rdb.values[keyPrefix+"k"] = "{broken"
	c, err := NewAnalysisCache(rdb, time.Hour)
	require.NoError(t, err)

	_, found, err := c.Get(context.Background(), "k")
	require.ErrorContains(t, err, "decode")
	require.False(t, found)
}
