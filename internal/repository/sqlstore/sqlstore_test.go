package sqlstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peoplecounter/internal/model"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func strPtr(s string) *string { return &s }

func insertResults(t *testing.T, repo *ResultRepository, n int) []*model.AnalysisResult {
	t.Helper()

	out := make([]*model.AnalysisResult, 0, n)
	for i := 0; i < n; i++ {
		res, err := repo.Create(context.Background(), &model.AnalysisResultInput{
			Filename:       fmt.Sprintf("photo_%02d.jpg", i),
			FileType:       model.FileTypeImage,
			PeopleCount:    i,
			Confidence:     0.5,
			ProcessingTime: 0.1,
		})
		require.NoError(t, err)
		out = append(out, res)
	}
	return out
}

func TestResultRepository_CreateAndGet(t *testing.T) {
	repo := NewResultRepository(setupTestDB(t))
	ctx := context.Background()

	created, err := repo.Create(ctx, &model.AnalysisResultInput{
		Filename:       "photo.jpg",
		FileType:       model.FileTypeImage,
		PeopleCount:    3,
		Confidence:     0.8,
		ProcessingTime: 1.25,
		ImagePath:      strPtr("static/results/result_1.jpg"),
	})
	require.NoError(t, err)
	assert.Positive(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)
	assert.Equal(t, "photo.jpg", got.Filename)
	assert.Equal(t, 3, got.PeopleCount)
	assert.InDelta(t, 0.8, got.Confidence, 1e-9)
	require.NotNil(t, got.ImagePath)
	assert.Equal(t, "static/results/result_1.jpg", *got.ImagePath)
	assert.Nil(t, got.SessionID)
	assert.Nil(t, got.LocationID)
}

func TestResultRepository_GetMissing(t *testing.T) {
	repo := NewResultRepository(setupTestDB(t))

	_, err := repo.Get(context.Background(), 4242)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestResultRepository_ListOrderedNewestFirst(t *testing.T) {
	repo := NewResultRepository(setupTestDB(t))
	insertResults(t, repo, 5)

	list, err := repo.List(context.Background(), 0, 100)
	require.NoError(t, err)
	require.Len(t, list, 5)

	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].CreatedAt.After(list[i-1].CreatedAt), "created_at must not increase")
		assert.Less(t, list[i].ID, list[i-1].ID)
	}
	assert.Equal(t, "photo_04.jpg", list[0].Filename)
}

func TestResultRepository_PagesAreContiguous(t *testing.T) {
	repo := NewResultRepository(setupTestDB(t))
	insertResults(t, repo, 7)
	ctx := context.Background()

	first, err := repo.List(ctx, 0, 3)
	require.NoError(t, err)
	second, err := repo.List(ctx, 3, 4)
	require.NoError(t, err)
	all, err := repo.List(ctx, 0, 7)
	require.NoError(t, err)

	assert.Equal(t, all, append(first, second...))

	beyond, err := repo.List(ctx, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, beyond)
}

func TestResultRepository_ConcurrentCreates(t *testing.T) {
	repo := NewResultRepository(setupTestDB(t))

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, err := repo.Create(context.Background(), &model.AnalysisResultInput{
				Filename: fmt.Sprintf("concurrent_%d.jpg", idx),
				FileType: model.FileTypeImage,
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	list, err := repo.List(context.Background(), 0, 100)
	require.NoError(t, err)
	assert.Len(t, list, 10)
}

func TestSessionAggregatesAndJoins(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	locations := NewLocationRepository(db)
	sessions := NewSessionRepository(db)
	results := NewResultRepository(db)

	loc, err := locations.Create(ctx, &model.Location{Name: "Main hall", MaxCapacity: 5, Code: "HALL-1"})
	require.NoError(t, err)

	session, err := sessions.Create(ctx, &model.AnalysisSession{LocationID: loc.ID, Name: "morning"})
	require.NoError(t, err)
	assert.Nil(t, session.EndTime)

	for _, count := range []int{2, 6, 4} {
		_, err := results.Create(ctx, &model.AnalysisResultInput{
			Filename:      "frame.jpg",
			FileType:      model.FileTypeImage,
			PeopleCount:   count,
			LocationID:    &loc.ID,
			SessionID:     &session.ID,
			IsOvercrowded: loc.Overcrowded(count),
		})
		require.NoError(t, err)
	}

	got, err := sessions.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalAnalyses)
	assert.Equal(t, 6, got.PeakPeopleCount)
	assert.InDelta(t, 4.0, got.AvgPeopleCount, 1e-9)

	bySession, err := results.ListBySession(ctx, session.ID, 0, 10)
	require.NoError(t, err)
	assert.Len(t, bySession, 3)

	byLocation, err := results.ListByLocation(ctx, loc.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, byLocation, 3)
	assert.True(t, byLocation[1].IsOvercrowded)
	assert.False(t, byLocation[0].IsOvercrowded)

	closed, err := sessions.Close(ctx, session.ID)
	require.NoError(t, err)
	assert.NotNil(t, closed.EndTime)
}

func TestResultRepository_UnknownSessionRollsBack(t *testing.T) {
	db := setupTestDB(t)
	results := NewResultRepository(db)
	missing := int64(99)

	_, err := results.Create(context.Background(), &model.AnalysisResultInput{
		Filename:  "x.jpg",
		FileType:  model.FileTypeImage,
		SessionID: &missing,
	})
	require.Error(t, err)

	list, err := results.List(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDeleteCascades(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	locations := NewLocationRepository(db)
	sessions := NewSessionRepository(db)
	results := NewResultRepository(db)

	loc, err := locations.Create(ctx, &model.Location{Name: "Lobby", MaxCapacity: 10, Code: "LOBBY"})
	require.NoError(t, err)
	session, err := sessions.Create(ctx, &model.AnalysisSession{LocationID: loc.ID})
	require.NoError(t, err)
	res, err := results.Create(ctx, &model.AnalysisResultInput{
		Filename: "a.jpg", FileType: model.FileTypeImage, LocationID: &loc.ID, SessionID: &session.ID,
	})
	require.NoError(t, err)

	require.NoError(t, locations.Delete(ctx, loc.ID))

	_, err = sessions.Get(ctx, session.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = results.Get(ctx, res.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, locations.Delete(ctx, loc.ID), model.ErrNotFound)
}

func TestLocationRepository_UniqueCode(t *testing.T) {
	locations := NewLocationRepository(setupTestDB(t))
	ctx := context.Background()

	_, err := locations.Create(ctx, &model.Location{Name: "Gate", MaxCapacity: 3, Code: "GATE"})
	require.NoError(t, err)
	_, err = locations.Create(ctx, &model.Location{Name: "Gate 2", MaxCapacity: 3, Code: "GATE"})
	assert.ErrorIs(t, err, model.ErrValidation)

	got, err := locations.GetByCode(ctx, "GATE")
	require.NoError(t, err)
	assert.Equal(t, "Gate", got.Name)

	all, err := locations.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestResultRepository_ClosedSessionRejectsResult(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	locations := NewLocationRepository(db)
	sessions := NewSessionRepository(db)
	results := NewResultRepository(db)

	loc, err := locations.Create(ctx, &model.Location{Name: "Atrium", MaxCapacity: 20, Code: "ATRIUM"})
	require.NoError(t, err)
	session, err := sessions.Create(ctx, &model.AnalysisSession{LocationID: loc.ID, Name: "evening"})
	require.NoError(t, err)
	_, err = sessions.Close(ctx, session.ID)
	require.NoError(t, err)

	_, err = results.Create(ctx, &model.AnalysisResultInput{
		Filename:    "late.jpg",
		FileType:    model.FileTypeImage,
		PeopleCount: 4,
		LocationID:  &loc.ID,
		SessionID:   &session.ID,
	})
	assert.ErrorIs(t, err, model.ErrValidation)

	list, err := results.List(ctx, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, list)

	got, err := sessions.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Zero(t, got.TotalAnalyses)
}

func TestLocationRepository_ConcurrentDuplicateCodes(t *testing.T) {
	locations := NewLocationRepository(setupTestDB(t))
	ctx := context.Background()

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = locations.Create(ctx, &model.Location{Name: fmt.Sprintf("Door %d", i), Code: "DOOR"})
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, model.ErrValidation)
	}
	assert.Equal(t, 1, created)
}
