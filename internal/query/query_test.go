package query_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahinestrog/campusbooks/internal/inventory"
	"github.com/ahinestrog/campusbooks/internal/query"
	"github.com/ahinestrog/campusbooks/internal/requests"
	"github.com/ahinestrog/campusbooks/internal/storage"
)

var fakeClock = time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)

type fixture struct {
	ctx   context.Context
	db    *storage.DB
	svc   *query.Service
	books *inventory.Repository
	reqs  *requests.Repository
}

func setup(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(ctx, filepath.Join(t.TempDir(), "query.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return fixture{
		ctx:   ctx,
		db:    db,
		svc:   query.NewService(db).WithClock(func() time.Time { return fakeClock.Add(3 * time.Hour) }),
		books: inventory.NewRepository(db),
		reqs:  requests.NewRepository(db),
	}
}

func (f fixture) book(t *testing.T, isbn, title string, copies int, authors ...string) {
	t.Helper()
	_, err := f.books.RecordFirstScan(f.ctx, isbn, inventory.Metadata{Title: title, Authors: authors}, fakeClock)
	require.NoError(t, err)
	for i := 1; i < copies; i++ {
		_, err := f.books.RecordRescan(f.ctx, isbn, fakeClock)
		require.NoError(t, err)
	}
}

func (f fixture) request(t *testing.T, id, prof, isbn string, qty int64, at time.Time) {
	t.Helper()
	require.NoError(t, f.reqs.Create(f.ctx, requests.Request{
		ID:                id,
		ProfessorID:       prof,
		ProfessorEmail:    prof + "@campus.edu",
		ISBN:              isbn,
		QuantityRequested: qty,
		Status:            requests.StatusPending,
		RequestedAt:       at,
	}))
}

func Test_Service_ListBooksWithPendingCounts_IsLive(t *testing.T) {
	// setup
	f := setup(t)
	f.book(t, "9780140328721", "Matilda", 5)
	f.book(t, "9780306406157", "Alpha", 1)
	f.request(t, "r1", "prof-a", "9780140328721", 2, fakeClock)
	f.request(t, "r2", "prof-b", "9780140328721", 1, fakeClock.Add(time.Minute))
	f.request(t, "r3", "prof-b", "9780306406157", 1, fakeClock)

	// act
	before, err := f.svc.ListBooksWithPendingCounts(f.ctx, query.BookFilter{})
	require.NoError(t, err)
	require.NoError(t, f.reqs.Resolve(f.ctx, "r1", requests.Resolution{Status: requests.StatusRejected, ProcessedAt: fakeClock}))
	after, err := f.svc.ListBooksWithPendingCounts(f.ctx, query.BookFilter{})
	require.NoError(t, err)

	// assert
	require.Len(t, before, 2)
	assert.Equal(t, "Alpha", before[0].Title)
	assert.Equal(t, 1, before[0].PendingCount)
	assert.Equal(t, "Matilda", before[1].Title)
	assert.Equal(t, 2, before[1].PendingCount)
	assert.Equal(t, "r2", before[1].PendingRequests[0].ID, "newest first")

	assert.Equal(t, 1, after[1].PendingCount)
	assert.Equal(t, "r2", after[1].PendingRequests[0].ID)
}

func Test_Service_ListBooksWithPendingCounts_SortAndSearch(t *testing.T) {
	// setup
	f := setup(t)
	f.book(t, "9780140328721", "Matilda", 5)
	f.book(t, "9780306406157", "Alpha", 1)

	// act
	byStock, err := f.svc.ListBooksWithPendingCounts(f.ctx, query.BookFilter{Sort: "quantity_available", Order: "DESC"})
	require.NoError(t, err)
	searched, err := f.svc.ListBooksWithPendingCounts(f.ctx, query.BookFilter{Search: " 0306 "})
	require.NoError(t, err)
	empty, err := f.svc.ListBooksWithPendingCounts(f.ctx, query.BookFilter{Search: "nothing matches"})
	require.NoError(t, err)

	// assert
	assert.Equal(t, "Matilda", byStock[0].Title)
	require.Len(t, searched, 1)
	assert.Equal(t, "Alpha", searched[0].Title)
	assert.Equal(t, []query.PendingRequest{}, searched[0].PendingRequests)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func Test_Service_ListBooksWithPendingCounts_SearchKeepsCounts(t *testing.T) {
	// setup
	f := setup(t)
	f.book(t, "9780140328721", "Matilda", 5)
	f.book(t, "9780306406157", "Alpha_1", 1)
	f.request(t, "r1", "prof-a", "9780140328721", 2, fakeClock)
	f.request(t, "r2", "prof-b", "9780306406157", 1, fakeClock)
	f.request(t, "r3", "prof-a", "9780306406157", 1, fakeClock.Add(time.Minute))

	// act
	alpha, err := f.svc.ListBooksWithPendingCounts(f.ctx, query.BookFilter{Search: "alpha_"})
	require.NoError(t, err)
	wildcard, err := f.svc.ListBooksWithPendingCounts(f.ctx, query.BookFilter{Search: "%"})
	require.NoError(t, err)

	// assert
	require.Len(t, alpha, 1)
	assert.Equal(t, 2, alpha[0].PendingCount)
	assert.Equal(t, "r3", alpha[0].PendingRequests[0].ID)
	assert.Empty(t, wildcard)
}

func Test_Service_ListRequestsForProfessor_OnlyOwnWithFallbackBook(t *testing.T) {
	// setup
	f := setup(t)
	f.book(t, "9780140328721", "Matilda", 1, "Roald Dahl")
	f.request(t, "r1", "prof-a", "9780140328721", 1, fakeClock)
	f.request(t, "r2", "prof-a", "9780306406157", 1, fakeClock.Add(time.Minute))
	f.request(t, "r3", "prof-b", "9780140328721", 1, fakeClock)

	// act
	views, err := f.svc.ListRequestsForProfessor(f.ctx, "prof-a")

	// assert
	require.NoError(t, err)
	require.Len(t, views, 2)
	orphan, known := views[0], views[1]
	assert.Equal(t, "r2", orphan.ID)
	assert.Equal(t, "Unknown Book", orphan.BookTitle)
	assert.Equal(t, []string{}, orphan.BookAuthors)
	assert.Nil(t, orphan.QuantityAvailable)
	assert.Equal(t, "Matilda", known.BookTitle)
	assert.Equal(t, []string{"Roald Dahl"}, known.BookAuthors)
	assert.Equal(t, "3 hours ago", known.RequestedAgo)
}

func Test_Service_ListRequestsForAdmin_FiltersAndStock(t *testing.T) {
	// setup
	f := setup(t)
	f.book(t, "9780140328721", "Matilda", 4)
	f.request(t, "r1", "prof-a", "9780140328721", 1, fakeClock)
	f.request(t, "r2", "prof-b", "9780306406157", 1, fakeClock)

	// act
	all, err := f.svc.ListRequestsForAdmin(f.ctx, query.AdminFilter{})
	require.NoError(t, err)
	byISBN, err := f.svc.ListRequestsForAdmin(f.ctx, query.AdminFilter{ISBN: "978-0-14-032872-1"})
	require.NoError(t, err)
	byEmail, err := f.svc.ListRequestsForAdmin(f.ctx, query.AdminFilter{ProfessorEmail: "prof-b@campus.edu"})
	require.NoError(t, err)
	approved, err := f.svc.ListRequestsForAdmin(f.ctx, query.AdminFilter{Status: requests.StatusApproved})
	require.NoError(t, err)

	// assert
	assert.Len(t, all, 2)
	require.Len(t, byISBN, 1)
	assert.Equal(t, int64(4), *byISBN[0].QuantityAvailable)
	require.Len(t, byEmail, 1)
	assert.Equal(t, int64(0), *byEmail[0].QuantityAvailable, "missing book has no stock")
	assert.Empty(t, approved)
}

func Test_Service_SearchBooks(t *testing.T) {
	// setup
	f := setup(t)
	f.book(t, "9780140328721", "Matilda", 1, "Roald Dahl")
	f.book(t, "9780142410318", "Charlie and the Chocolate Factory", 3, "Roald Dahl")

	// act
	byAuthor, err := f.svc.SearchBooks(f.ctx, "  dahl ")
	require.NoError(t, err)
	byHyphenated, err := f.svc.SearchBooks(f.ctx, "978-0-14-032")
	require.NoError(t, err)
	_, short := f.svc.SearchBooks(f.ctx, " a ")

	// assert
	assert.Equal(t, "dahl", byAuthor.Query)
	assert.Equal(t, 2, byAuthor.Count)
	assert.Equal(t, "Charlie and the Chocolate Factory", byAuthor.Results[0].Title)
	assert.Equal(t, 1, byHyphenated.Count)
	assert.Equal(t, "Matilda", byHyphenated.Results[0].Title)
	assert.ErrorIs(t, short, query.ErrInvalidQuery)
}

func Test_Service_GetBook(t *testing.T) {
	f := setup(t)
	f.book(t, "9780140328721", "Matilda", 2)

	got, err := f.svc.GetBook(f.ctx, "978-0-14-032872-1")
	require.NoError(t, err)
	_, unknown := f.svc.GetBook(f.ctx, "9780306406157")
	_, invalid := f.svc.GetBook(f.ctx, "12345")

	assert.Equal(t, "Matilda", got.Title)
	assert.Equal(t, int64(2), got.QuantityAvailable)
	assert.ErrorIs(t, unknown, inventory.ErrBookNotFound)
	assert.ErrorIs(t, invalid, query.ErrInvalidISBN)
}
