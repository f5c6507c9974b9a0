package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/listforge/internal"
	"github.com/valpere/listforge/internal/evaluation"
)

func newTestCache(t *testing.T, ttl time.Duration) (*ListingCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, ttl), mr
}

func listing() internal.CachedListing {
	return internal.CachedListing{
		Fingerprint: "abc123",
		Language:    "pt",
		HTML:        "<p>Apartamento</p>",
		Evaluation: evaluation.Record{
			Criteria:             map[string]int{evaluation.StructureCompliance: 9},
			TotalScore:           9,
			MissingOrInvalidTags: []string{},
		},
		DetectedLanguage: "pt",
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "listing:es:f00", Key("f00", "es"))
}

func TestListingCache_Miss(t *testing.T) {
	c, _ := newTestCache(t, 0)

	got, found, err := c.GetCachedListing(context.Background(), "abc123", "pt")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestListingCache_RoundTrip(t *testing.T) {
	c, mr := newTestCache(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, c.SaveListing(ctx, listing()))
	assert.True(t, mr.Exists("listing:pt:abc123"))
	assert.Equal(t, time.Hour, mr.TTL("listing:pt:abc123"))

	got, found, err := c.GetCachedListing(ctx, "abc123", "pt")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "<p>Apartamento</p>", got.HTML)
	assert.Equal(t, 9, got.Evaluation.TotalScore)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestListingCache_DefaultTTL(t *testing.T) {
	c, mr := newTestCache(t, 0)

	require.NoError(t, c.SaveListing(context.Background(), listing()))
	assert.Equal(t, DefaultTTL, mr.TTL("listing:pt:abc123"))
}

func TestListingCache_Expiry(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.SaveListing(ctx, listing()))
	mr.FastForward(2 * time.Minute)

	_, found, err := c.GetCachedListing(ctx, "abc123", "pt")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestListingCache_Invalidate(t *testing.T) {
	c, _ := newTestCache(t, 0)
	ctx := context.Background()

	require.NoError(t, c.SaveListing(ctx, listing()))
	require.NoError(t, c.InvalidateListing(ctx, "abc123", "pt"))

	_, found, err := c.GetCachedListing(ctx, "abc123", "pt")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestListingCache_CorruptEntry(t *testing.T) {
	c, mr := newTestCache(t, 0)
	require.NoError(t, mr.Set("listing:pt:abc123", "not json"))

	_, _, err := c.GetCachedListing(context.Background(), "abc123", "pt")
	assert.Error(t, err)
}

func TestDial(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := Dial(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	rdb.Close()

	mr.Close()
	_, err = Dial(context.Background(), mr.Addr(), "", 0)
	assert.Error(t, err)
}
