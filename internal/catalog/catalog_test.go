package catalog_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahinestrog/campusbooks/internal/catalog"
	"github.com/ahinestrog/campusbooks/internal/inventory"
)

const matildaVolumes = `{
  "kind": "books#volumes",
  "totalItems": 1,
  "items": [{
    "id": "vol-1",
    "volumeInfo": {
      "title": "Matilda",
      "authors": ["Roald Dahl"],
      "publisher": "Puffin",
      "publishedDate": "1988",
      "pageCount": 240,
      "categories": ["Juvenile Fiction"],
      "averageRating": 4.5,
      "language": "en",
      "imageLinks": {"thumbnail": "http://img/t.jpg", "smallThumbnail": "http://img/s.jpg"}
    }
  }]
}`

func Test_GoogleBooks_Lookup_MapsFirstVolume(t *testing.T) {
	// setup
	var gotQuery, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotKey = r.URL.Query().Get("key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(matildaVolumes))
	}))
	defer srv.Close()
	gb := catalog.NewGoogleBooks(srv.URL, "secret", time.Second)

	// act
	m, err := gb.Lookup(context.Background(), "9780140328721")

	// assert
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "isbn:9780140328721", gotQuery)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "vol-1", *m.GoogleBooksID)
	assert.Equal(t, "Matilda", m.Title)
	assert.Nil(t, m.Subtitle)
	assert.Equal(t, []string{"Roald Dahl"}, m.Authors)
	assert.Equal(t, int64(240), *m.PageCount)
	assert.InDelta(t, 4.5, *m.AverageRating, 0.0001)
	assert.Nil(t, m.RatingsCount)
	assert.Equal(t, "http://img/t.jpg", *m.ThumbnailURL)
	assert.JSONEq(t, matildaVolumes, string(m.Raw))
}

func Test_GoogleBooks_Lookup_NoItemsIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"kind":"books#volumes","totalItems":0}`))
	}))
	defer srv.Close()

	m, err := catalog.NewGoogleBooks(srv.URL, "", time.Second).Lookup(context.Background(), "9780140328721")

	assert.NoError(t, err)
	assert.Nil(t, m)
}

func Test_GoogleBooks_Lookup_UpstreamErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	m, err := catalog.NewGoogleBooks(srv.URL, "", time.Second).Lookup(context.Background(), "9780140328721")

	assert.ErrorIs(t, err, catalog.ErrUnavailable)
	assert.Nil(t, m)
}

func Test_GoogleBooks_Lookup_TimeoutIsUnavailable(t *testing.T) {
	// setup
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// act
	_, err := catalog.NewGoogleBooks(srv.URL, "", 5*time.Second).Lookup(ctx, "9780140328721")

	// assert
	assert.ErrorIs(t, err, catalog.ErrUnavailable)
}

func Test_Placeholder_UnknownBookShape(t *testing.T) {
	m := catalog.Placeholder("9780140328721", "")

	assert.Equal(t, "Unknown Book (ISBN: 9780140328721)", m.Title)
	assert.Equal(t, []string{}, m.Authors)
	assert.Nil(t, m.Publisher)
	assert.Nil(t, m.GoogleBooksID)
	assert.JSONEq(t, `{"not_found_in_api":true,"error":"Book not found in Google Books API"}`, string(m.Raw))
}

func Test_Cached_RemembersHitsAndMisses(t *testing.T) {
	// setup
	upstream := catalog.NewOffline(map[string]inventory.Metadata{
		"9780140328721": {Title: "Matilda"},
	})
	c := catalog.NewCached(upstream, 16, time.Hour, time.Second)
	ctx := context.Background()

	// act
	for i := 0; i < 3; i++ {
		m, err := c.Lookup(ctx, "9780140328721")
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, "Matilda", m.Title)

		miss, err := c.Lookup(ctx, "9780306406157")
		require.NoError(t, err)
		assert.Nil(t, miss)
	}

	// assert
	assert.Equal(t, int64(2), upstream.Calls())
	assert.Equal(t, 2, c.Len())
}

func Test_Cached_DoesNotCacheFailures(t *testing.T) {
	// setup
	upstream := catalog.NewOffline(map[string]inventory.Metadata{"9780140328721": {Title: "Matilda"}})
	upstream.Fail(errors.New("boom"))
	c := catalog.NewCached(upstream, 16, time.Hour, time.Second)
	ctx := context.Background()

	// act
	_, failed := c.Lookup(ctx, "9780140328721")
	upstream.Fail(nil)
	m, err := c.Lookup(ctx, "9780140328721")

	// assert
	assert.Error(t, failed)
	require.NoError(t, err)
	assert.Equal(t, "Matilda", m.Title)
	assert.Equal(t, int64(2), upstream.Calls())
}

type slowLookup struct {
	calls   atomic.Int64
	release chan struct{}
}

func (s *slowLookup) Name() string { return "slow" }

func (s *slowLookup) Lookup(ctx context.Context, isbn string) (*inventory.Metadata, error) {
	s.calls.Add(1)
	<-s.release
	return &inventory.Metadata{Title: "Matilda"}, nil
}

func Test_Cached_CollapsesConcurrentLookups(t *testing.T) {
	// setup
	upstream := &slowLookup{release: make(chan struct{})}
	c := catalog.NewCached(upstream, 16, time.Hour, time.Second)
	var wg sync.WaitGroup
	const callers = 8

	// act
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := c.Lookup(context.Background(), "9780140328721")
			assert.NoError(t, err)
			assert.Equal(t, "Matilda", m.Title)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(upstream.release)
	wg.Wait()

	// assert
	assert.LessOrEqual(t, upstream.calls.Load(), int64(callers))
	assert.GreaterOrEqual(t, upstream.calls.Load(), int64(1))
	m, err := c.Lookup(context.Background(), "9780140328721")
	require.NoError(t, err)
	assert.Equal(t, "Matilda", m.Title)
}

type cancelAwareLookup struct {
	calls   atomic.Int64
	release chan struct{}
}

func (s *cancelAwareLookup) Name() string { return "cancel-aware" }

func (s *cancelAwareLookup) Lookup(ctx context.Context, isbn string) (*inventory.Metadata, error) {
	s.calls.Add(1)
	select {
	case <-s.release:
		return &inventory.Metadata{Title: "Matilda"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func Test_Cached_FirstCallerCancelDoesNotFailOthers(t *testing.T) {
	// setup
	upstream := &cancelAwareLookup{release: make(chan struct{})}
	c := catalog.NewCached(upstream, 16, time.Hour, 5*time.Second)
	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Lookup(first, "9780140328721")
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return upstream.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		m   *inventory.Metadata
		err error
	}
	second := make(chan result, 1)
	go func() {
		m, err := c.Lookup(context.Background(), "9780140328721")
		second <- result{m, err}
	}()

	// act
	cancel()
	err := <-firstErr
	close(upstream.release)
	got := <-second

	// assert
	assert.ErrorIs(t, err, catalog.ErrUnavailable)
	require.NoError(t, got.err)
	require.NotNil(t, got.m)
	assert.Equal(t, "Matilda", got.m.Title)
	assert.Equal(t, int64(1), upstream.calls.Load())
}
