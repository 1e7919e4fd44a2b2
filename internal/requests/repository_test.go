package requests_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahinestrog/campusbooks/internal/inventory"
	"github.com/ahinestrog/campusbooks/internal/requests"
	"github.com/ahinestrog/campusbooks/internal/storage"
)

var fakeClock = time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)

type fixture struct {
	ctx   context.Context
	repo  *requests.Repository
	books *inventory.Repository
}

func setup(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(ctx, filepath.Join(t.TempDir(), "requests.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return fixture{ctx: ctx, repo: requests.NewRepository(db), books: inventory.NewRepository(db)}
}

func pending(id, professor, isbn string, qty int64, at time.Time) requests.Request {
	return requests.Request{
		ID:                id,
		ProfessorID:       professor,
		ProfessorEmail:    professor + "@campus.edu",
		ISBN:              isbn,
		QuantityRequested: qty,
		Status:            requests.StatusPending,
		RequestedAt:       at,
	}
}

func int64Ptr(n int64) *int64 { return &n }

func Test_Repository_CreateAndGet(t *testing.T) {
	// setup
	f := setup(t)
	req := pending("r1", "prof-a", "9780140328721", 3, fakeClock)
	course := "LIT-101"
	req.CourseCode = &course

	// act
	require.NoError(t, f.repo.Create(f.ctx, req))
	got, err := f.repo.Get(f.ctx, "r1")

	// assert
	require.NoError(t, err)
	assert.Equal(t, requests.StatusPending, got.Status)
	assert.Equal(t, int64(3), got.QuantityRequested)
	assert.Nil(t, got.QuantityApproved)
	assert.Nil(t, got.ProcessedAt)
	assert.Nil(t, got.CourseName)
	require.NotNil(t, got.CourseCode)
	assert.Equal(t, "LIT-101", *got.CourseCode)
	assert.True(t, got.RequestedAt.Equal(fakeClock))
}

func Test_Repository_Create_RejectsNonPending(t *testing.T) {
	f := setup(t)
	req := pending("r1", "prof-a", "9780140328721", 3, fakeClock)
	req.Status = requests.StatusApproved

	assert.Error(t, f.repo.Create(f.ctx, req))
}

func Test_Repository_Get_Unknown(t *testing.T) {
	f := setup(t)

	_, err := f.repo.Get(f.ctx, "missing")

	assert.ErrorIs(t, err, requests.ErrNotFound)
}

func Test_Repository_Resolve_OnlyOnce(t *testing.T) {
	// setup
	f := setup(t)
	require.NoError(t, f.repo.Create(f.ctx, pending("r1", "prof-a", "9780140328721", 3, fakeClock)))
	processedAt := fakeClock.Add(time.Hour)

	// act
	err := f.repo.Resolve(f.ctx, "r1", requests.Resolution{
		Status:           requests.StatusApproved,
		QuantityApproved: int64Ptr(3),
		ProcessedAt:      processedAt,
		ProcessedBy:      "admin-1",
	})
	require.NoError(t, err)
	again := f.repo.Resolve(f.ctx, "r1", requests.Resolution{
		Status:      requests.StatusRejected,
		ProcessedAt: processedAt.Add(time.Minute),
		ProcessedBy: "admin-2",
	})

	// assert
	assert.ErrorIs(t, again, requests.ErrNotPending)
	got, err := f.repo.Get(f.ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, requests.StatusApproved, got.Status)
	require.NotNil(t, got.QuantityApproved)
	assert.Equal(t, int64(3), *got.QuantityApproved)
	require.NotNil(t, got.ProcessedAt)
	assert.True(t, got.ProcessedAt.Equal(processedAt))
	assert.Equal(t, "admin-1", *got.ProcessedBy)
}

func Test_Repository_Resolve_UnknownRequestIsNotPending(t *testing.T) {
	f := setup(t)

	err := f.repo.Resolve(f.ctx, "missing", requests.Resolution{Status: requests.StatusRejected, ProcessedAt: fakeClock})

	assert.ErrorIs(t, err, requests.ErrNotPending)
}

func Test_Repository_Resolve_RejectsPendingTarget(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.repo.Create(f.ctx, pending("r1", "prof-a", "9780140328721", 3, fakeClock)))

	err := f.repo.Resolve(f.ctx, "r1", requests.Resolution{Status: requests.StatusPending, ProcessedAt: fakeClock})

	assert.Error(t, err)
	assert.NotErrorIs(t, err, requests.ErrNotPending)
}

func Test_Repository_Resolve_ApprovedAboveRequestedViolatesCheck(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.repo.Create(f.ctx, pending("r1", "prof-a", "9780140328721", 2, fakeClock)))

	err := f.repo.Resolve(f.ctx, "r1", requests.Resolution{
		Status:           requests.StatusApproved,
		QuantityApproved: int64Ptr(3),
		ProcessedAt:      fakeClock,
	})

	assert.Error(t, err)
}

func Test_Repository_List_FiltersNewestFirstWithBook(t *testing.T) {
	// setup
	f := setup(t)
	_, err := f.books.RecordFirstScan(f.ctx, "9780140328721", inventory.Metadata{
		Title:   "Matilda",
		Authors: []string{"Roald Dahl"},
	}, fakeClock)
	require.NoError(t, err)
	require.NoError(t, f.repo.Create(f.ctx, pending("r1", "prof-a", "9780140328721", 1, fakeClock)))
	require.NoError(t, f.repo.Create(f.ctx, pending("r2", "prof-a", "9780306406157", 2, fakeClock.Add(time.Minute))))
	require.NoError(t, f.repo.Create(f.ctx, pending("r3", "prof-b", "9780140328721", 4, fakeClock.Add(2*time.Minute))))
	require.NoError(t, f.repo.Resolve(f.ctx, "r3", requests.Resolution{Status: requests.StatusRejected, ProcessedAt: fakeClock}))

	// act
	all, err := f.repo.List(f.ctx, requests.ListFilter{})
	require.NoError(t, err)
	mine, err := f.repo.List(f.ctx, requests.ListFilter{ProfessorID: "prof-a"})
	require.NoError(t, err)
	rejected, err := f.repo.List(f.ctx, requests.ListFilter{Status: requests.StatusRejected})
	require.NoError(t, err)
	byEmail, err := f.repo.List(f.ctx, requests.ListFilter{ProfessorEmail: "prof-b@campus.edu"})
	require.NoError(t, err)
	byBook, err := f.repo.List(f.ctx, requests.ListFilter{BookSearch: "mati"})
	require.NoError(t, err)
	pendingByBook, err := f.repo.List(f.ctx, requests.ListFilter{Status: requests.StatusPending, BookSearch: "0140"})
	require.NoError(t, err)
	isbnAndBook, err := f.repo.List(f.ctx, requests.ListFilter{ISBN: "9780306406157", BookSearch: "mati"})
	require.NoError(t, err)

	// assert
	assert.Equal(t, []string{"r3", "r2", "r1"}, ids(all))
	assert.Equal(t, []string{"r2", "r1"}, ids(mine))
	assert.Equal(t, []string{"r3"}, ids(rejected))
	assert.Equal(t, []string{"r3"}, ids(byEmail))
	assert.Equal(t, []string{"r3", "r1"}, ids(byBook))
	assert.Equal(t, []string{"r1"}, ids(pendingByBook))
	assert.Empty(t, isbnAndBook, "filters combine instead of replacing each other")

	withBook := all[2]
	assert.True(t, withBook.Book.Present)
	assert.Equal(t, "Matilda", withBook.Book.Title)
	assert.Equal(t, []string{"Roald Dahl"}, withBook.Book.Authors)
	assert.Equal(t, int64(1), withBook.Book.QuantityAvailable)

	orphan := all[1]
	assert.False(t, orphan.Book.Present)
	assert.Equal(t, []string{}, orphan.Book.Authors)
}

func ids(in []requests.Listed) []string {
	out := make([]string, 0, len(in))
	for _, l := range in {
		out = append(out, l.ID)
	}
	return out
}
