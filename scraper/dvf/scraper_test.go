package dvf

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dvf-tools/models"
	"dvf-tools/storage"
	"dvf-tools/utils"
)

// listingServer serves totalPages pages of perPage records and empty pages after that.
func listingServer(t *testing.T, totalPages, perPage int, requests *int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(requests, 1)
		page, err := strconv.Atoi(r.URL.Query().Get("page"))
		assert.NoError(t, err)

		var items []string
		if page <= totalPages {
			for i := 0; i < perPage; i++ {
				items = append(items, fmt.Sprintf(`{"id":"%d-%d","price":%d,"area":%d}`, page, i, 1000*page+i, 10+i))
			}
		}
		fmt.Fprintf(w, `{"results":[%s]}`, strings.Join(items, ","))
	}))
}

func runScrape(t *testing.T, srvURL string, maxPages int, out string) (int, error) {
	t.Helper()
	cfg := testConfig(srvURL)
	cfg.MaxPages = maxPages

	client, err := NewClient(cfg, utils.Discard())
	require.NoError(t, err)

	csvWriter, err := storage.NewCSVWriter(out)
	require.NoError(t, err)
	defer csvWriter.Close()

	s := New(cfg, client, utils.Discard())
	s.AddSink(csvWriter)
	summary, err := s.Run(context.Background())
	assert.NotEmpty(t, summary.RunID)
	return summary.Records, err
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestScraperStopsOnEmptyPage(t *testing.T) {
	var requests int64
	srv := listingServer(t, 3, 2, &requests)
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "listings.csv")
	n, err := runScrape(t, srv.URL, 10, out)
	require.NoError(t, err)

	assert.Equal(t, 6, n)
	assert.EqualValues(t, 4, atomic.LoadInt64(&requests), "three full pages plus the empty one")

	rows := readRows(t, out)
	assert.Equal(t, []string{"id", "price", "area"}, rows[0])
	assert.Len(t, rows, 7)
	assert.Equal(t, []string{"1-0", "1000", "10"}, rows[1])
}

func TestScraperHonorsMaxPages(t *testing.T) {
	for _, maxPages := range []int{1, 2, 5} {
		t.Run(strconv.Itoa(maxPages), func(t *testing.T) {
			var requests int64
			srv := listingServer(t, 100, 3, &requests)
			defer srv.Close()

			out := filepath.Join(t.TempDir(), "listings.csv")
			n, err := runScrape(t, srv.URL, maxPages, out)
			require.NoError(t, err)

			assert.EqualValues(t, maxPages, atomic.LoadInt64(&requests))
			assert.Equal(t, 3*maxPages, n)
			assert.Len(t, readRows(t, out), 1+3*maxPages)
		})
	}
}

func TestScraperAppendsAcrossRuns(t *testing.T) {
	var requests int64
	srv := listingServer(t, 1, 2, &requests)
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "listings.csv")
	_, err := runScrape(t, srv.URL, 5, out)
	require.NoError(t, err)
	_, err = runScrape(t, srv.URL, 5, out)
	require.NoError(t, err)

	rows := readRows(t, out)
	assert.Len(t, rows, 1+4, "no dedup across runs, one header")
}

func TestScraperFailsOnServerError(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) == 1 {
			fmt.Fprint(w, `{"results":[{"id":"a"}]}`)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "listings.csv")
	n, err := runScrape(t, srv.URL, 5, out)
	require.Error(t, err)
	assert.Equal(t, 1, n)

	// rows from the successful page are kept
	assert.Equal(t, [][]string{{"id"}, {"a"}}, readRows(t, out))
}

func TestScraperFailsOnMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results": [`)
	}))
	defer srv.Close()

	_, err := runScrape(t, srv.URL, 3, filepath.Join(t.TempDir(), "listings.csv"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}

type fakeFetcher struct {
	pages [][]string
	calls int
}

func (f *fakeFetcher) FetchPage(_ context.Context, page, _ int) ([]models.Record, error) {
	f.calls++
	if page-1 >= len(f.pages) {
		return nil, nil
	}
	var out []models.Record
	for _, id := range f.pages[page-1] {
		r := models.NewRecord()
		r.Set("id", id)
		out = append(out, r)
	}
	return out, nil
}

type memorySink struct {
	pages []int
	ids   []string
}

func (m *memorySink) WriteRecords(page int, records []models.Record) error {
	m.pages = append(m.pages, page)
	for _, r := range records {
		m.ids = append(m.ids, r.Values["id"])
	}
	return nil
}

func (m *memorySink) Close() error { return nil }

func TestScraperFeedsEverySink(t *testing.T) {
	f := &fakeFetcher{pages: [][]string{{"a", "b"}, {"c"}}}
	cfg := testConfig("http://unused")
	cfg.MaxPages = 10

	s := New(cfg, f, utils.Discard())
	first, second := &memorySink{}, &memorySink{}
	s.AddSink(first)
	s.AddSink(second)

	summary, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Records)
	assert.Equal(t, 2, summary.Pages)
	assert.Equal(t, 3, summary.Requests)
	assert.Equal(t, 3, f.calls)
	for _, sink := range []*memorySink{first, second} {
		assert.Equal(t, []int{1, 2}, sink.pages)
		assert.Equal(t, []string{"a", "b", "c"}, sink.ids)
	}
}

func TestScraperSleepsBetweenRequestsOnly(t *testing.T) {
	f := &fakeFetcher{pages: [][]string{{"a"}, {"b"}, {"c"}}}
	cfg := testConfig("http://unused")
	cfg.MaxPages = 3
	cfg.DelaySeconds = 0.01

	s := New(cfg, f, utils.Discard())
	_, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, s.pacer.Sleeps())
}

func TestScraperStopsOnCancel(t *testing.T) {
	f := &fakeFetcher{pages: [][]string{{"a"}, {"b"}}}
	cfg := testConfig("http://unused")
	cfg.DelaySeconds = 3600

	ctx, cancel := context.WithCancel(context.Background())
	s := New(cfg, f, utils.Discard())
	s.AddSink(&cancelSink{cancel: cancel})

	summary, err := s.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, summary.Pages)
}

type cancelSink struct{ cancel context.CancelFunc }

func (c *cancelSink) WriteRecords(int, []models.Record) error { c.cancel(); return nil }
func (c *cancelSink) Close() error                            { return nil }
