package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/postly/job-harvester/internal/scraper"
)

func testPosting() scraper.JobPosting {
	now := time.Unix(1750000000, 0).UTC()
	posted := now.AddDate(0, 0, -3)
	return scraper.JobPosting{
		Title:          "Senior Go Engineer",
		Company:        "Acme",
		Location:       "Remote",
		SourceURL:      "https://board.example.com/jobs/101",
		Salary:         "USD 150000",
		EmploymentType: "FULL_TIME",
		Skills:         []string{"Go", "PostgreSQL"},
		Description:    "Build distributed systems.",
		PostedAt:       &posted,
		Source:         "board",
		ScrapedAt:      now,
	}
}

func upsertArgs(p scraper.JobPosting) []any {
	return []any{
		p.SourceURL, p.Title, p.Company, p.Location, p.Salary,
		p.EmploymentType, p.Skills, p.Description, p.PostedAt, p.Source, p.ScrapedAt,
	}
}

func TestUpsertInsertsNewPosting(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStoreWithPool(mock, "job_postings")
	require.NoError(t, err)

	p := testPosting()
	mock.ExpectQuery("INSERT INTO job_postings").
		WithArgs(upsertArgs(p)...).
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(false))

	wasUpdate, err := store.Upsert(context.Background(), p)
	require.NoError(t, err)
	require.False(t, wasUpdate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertReportsUpdateOfExistingRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStoreWithPool(mock, "job_postings")
	require.NoError(t, err)

	p := testPosting()
	mock.ExpectQuery("ON CONFLICT \\(source_url\\) DO UPDATE").
		WithArgs(upsertArgs(p)...).
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(true))

	wasUpdate, err := store.Upsert(context.Background(), p)
	require.NoError(t, err)
	require.True(t, wasUpdate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertValidatesRequiredFields(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStoreWithPool(mock, "job_postings")
	require.NoError(t, err)

	missingURL := testPosting()
	missingURL.SourceURL = ""
	_, err = store.Upsert(context.Background(), missingURL)
	var vErr *scraper.ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, "source_url", vErr.Field)

	missingTitle := testPosting()
	missingTitle.Title = ""
	_, err = store.Upsert(context.Background(), missingTitle)
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, "title", vErr.Field)
}

func TestUpsertWrapsQueryError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStoreWithPool(mock, "job_postings")
	require.NoError(t, err)

	p := testPosting()
	mock.ExpectQuery("INSERT INTO job_postings").
		WithArgs(upsertArgs(p)...).
		WillReturnError(errors.New("connection reset"))

	_, err = store.Upsert(context.Background(), p)
	require.Error(t, err)
	require.Contains(t, err.Error(), "upsert posting")
}

func TestNewJobStoreWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewJobStoreWithPool(mock, "job_postings; DROP TABLE")
	require.Error(t, err)

	_, err = NewJobStoreWithPool(nil, "job_postings")
	require.Error(t, err)
}
