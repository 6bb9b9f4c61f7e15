package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scrape-engine/internal/crawler"
	"github.com/JakeFAU/scrape-engine/internal/hash/sha256"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewWithPool(mock, "")
	require.NoError(t, err)
	return store, mock
}

func TestNewWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewWithPool(mock, "bad-name; DROP")
	require.ErrorContains(t, err, "invalid table name")

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)
	require.Equal(t, defaultTable, store.table)
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.ErrorContains(t, err, "db.dsn is required")
}

func TestRecordPageInsertsRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	page := crawler.Page{
		URL:       "https://example.com",
		Title:     "Example",
		Content:   crawler.MarkdownContent("# Example"),
		Metadata:  map[string]string{"description": "d"},
		Timestamp: now,
	}

	mock.ExpectExec("INSERT INTO scraped_data").
		WithArgs(
			page.URL,
			page.Title,
			"# Example",
			"markdown",
			[]byte(`{"description":"d"}`),
			now,
			"https://example.com|render_js=false",
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.RecordPage(context.Background(), page, "https://example.com|render_js=false"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordPageFieldContent(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	page := crawler.Page{URL: "u", Content: crawler.FieldContent(map[string][]string{"headline": {"Title"}})}

	mock.ExpectExec("INSERT INTO scraped_data").
		WithArgs("u", "", `{"headline":["Title"]}`, "fields", []byte(`{}`), time.Time{}, "k").
		WillReturnError(errors.New("db down"))

	err := store.RecordPage(context.Background(), page, "k")
	require.ErrorContains(t, err, "insert history")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListHistory(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows([]string{"id", "url", "title", "content", "content_kind", "page_metadata", "scraped_at", "cache_key"}).
		AddRow(int64(2), "https://example.com", "Example", "body", "text", []byte(`{"keywords":"k"}`), now, "key")

	mock.ExpectQuery("SELECT id, url, title").
		WithArgs("https://example.com", 10, 0).
		WillReturnRows(rows)

	entries, err := store.ListHistory(context.Background(), "https://example.com", 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(2), entries[0].ID)
	require.Equal(t, "k", entries[0].Metadata["keywords"])
	require.Equal(t, now, entries[0].ScrapedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS scraped_data").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS scraped_data_url_idx").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS scraped_data_cache_key_idx").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS api_keys").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateAPIKey(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("UPDATE api_keys SET last_used").WithArgs(sha256.Hex("good")).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := store.ValidateAPIKey(ctx, "good")
	require.NoError(t, err)
	require.True(t, ok)

	mock.ExpectExec("UPDATE api_keys SET last_used").WithArgs(sha256.Hex("bad")).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	ok, err = store.ValidateAPIKey(ctx, "bad")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = store.ValidateAPIKey(ctx, "")
	require.NoError(t, err)
	require.False(t, ok)

	require.Error(t, store.CreateAPIKey(ctx, "", "ci", ""))
	mock.ExpectExec("INSERT INTO api_keys").WithArgs(sha256.Hex("k"), "ci", "").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, store.CreateAPIKey(ctx, "k", "ci", ""))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store, err := NewWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectPing()
	require.NoError(t, store.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	require.ErrorContains(t, store.Ping(context.Background()), "postgres ping")

	require.NoError(t, mock.ExpectationsWereMet())
}
