package dashboard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/unitdash/internal/domain"
	"github.com/rpattn/unitdash/internal/gallery"
	"github.com/rpattn/unitdash/internal/ingestion"
	"github.com/rpattn/unitdash/internal/session"
	"github.com/rpattn/unitdash/internal/storage"
)

const firstUnitID = "1|SC011|1|20210304|1|7|ALM"

func unitTable(t *testing.T) domain.Table {
	t.Helper()
	day1 := time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2021, 3, 5, 0, 0, 0, 0, time.UTC)
	table, err := domain.NewTable(
		domain.Column{Name: domain.ColumnSubjectID, Type: domain.FieldTypeInteger, Values: []any{int64(1), int64(1), int64(2)}},
		domain.Column{Name: domain.ColumnH2O, Type: domain.FieldTypeString, Values: []any{"SC011", "SC011", "SC012"}},
		domain.Column{Name: domain.ColumnSession, Type: domain.FieldTypeInteger, Values: []any{int64(1), int64(1), int64(2)}},
		domain.Column{Name: domain.ColumnSessionDate, Type: domain.FieldTypeTimestamp, Values: []any{day1, day1, day2}},
		domain.Column{Name: domain.ColumnInsertionNumber, Type: domain.FieldTypeInteger, Values: []any{int64(1), int64(1), int64(1)}},
		domain.Column{Name: domain.ColumnUnit, Type: domain.FieldTypeInteger, Values: []any{int64(7), int64(8), int64(3)}},
		domain.Column{Name: domain.ColumnAreaOfInterest, Type: domain.FieldTypeString, Values: []any{"ALM", "ALM", "others"}},
	)
	require.NoError(t, err)
	return table
}

func figurePNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 6))))
	return buf.Bytes()
}

func newTestServer(t *testing.T, table domain.Table) *httptest.Server {
	t.Helper()
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/bucket/drift/SC011_1_1_1_007_drift.png", figurePNG(t), 0o644))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gal, err := gallery.NewService(storage.NewLocalStoreFs(fsys), gallery.Config{
		PSTHPrefix:         "bucket/psth/",
		DriftMetricsPrefix: "bucket/drift/",
	}, logger)
	require.NoError(t, err)

	server := NewServer(Config{
		Dataset:   ingestion.NewDataset(table, "units.csv"),
		Ingestion: ingestion.NewService(ingestion.WithLogger(logger)),
		Sessions:  session.NewManager(session.NewMemoryStore()),
		Gallery:   gal,
		Logger:    logger,
	})
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func get(t *testing.T, c *http.Client, u string) (int, string) {
	t.Helper()
	resp, err := c.Get(u)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func post(t *testing.T, c *http.Client, u string, form url.Values) (int, string) {
	t.Helper()
	resp, err := c.PostForm(u, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestRootRedirectsToUnits(t *testing.T) {
	ts := newTestServer(t, unitTable(t))
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}

	resp, err := client.Get(ts.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/units", resp.Header.Get("Location"))
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, unitTable(t))
	code, body := get(t, http.DefaultClient, ts.URL+"/healthz")
	require.Equal(t, http.StatusOK, code)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &payload))
	assert.Equal(t, "ok", payload["status"])
	assert.Equal(t, float64(3), payload["rows"])
}

func TestUnitsFilterSelectionFlow(t *testing.T) {
	ts := newTestServer(t, unitTable(t))
	client := newClient(t)

	code, body := get(t, client, ts.URL+"/units")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "3 units, 2 mice, 2 insertions")
	assert.Contains(t, body, `name="sel.area_of_interest"`)

	code, body = post(t, client, ts.URL+"/units/filters", url.Values{
		"control":               {domain.ColumnAreaOfInterest},
		"opts.area_of_interest": {"2"},
		"sel.area_of_interest":  {"ALM"},
	})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "2 units, 1 mice, 1 insertions")

	code, body = post(t, client, ts.URL+"/units/selection/filter", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "Selected: 2 units from filter")

	code, body = post(t, client, ts.URL+"/units/selection", url.Values{"unit": {firstUnitID, "not-a-unit"}})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "Selected: 1 units from table")
	assert.Contains(t, body, fmt.Sprintf(`value="%s" checked`, firstUnitID))

	code, body = get(t, client, ts.URL+"/units/export.csv")
	require.Equal(t, http.StatusOK, code)
	lines := strings.Split(strings.TrimSpace(body), "\n")
	assert.Len(t, lines, 3, "header plus the two filtered rows")
	assert.True(t, strings.HasPrefix(lines[0], "subject_id,h2o,session"))

	code, body = post(t, client, ts.URL+"/units/selection/filter/clear", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "Selected: 0 units from filter")
	assert.Contains(t, body, "Selected: 1 units from table")

	code, _ = post(t, client, ts.URL+"/units/selection/bogus/clear", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = post(t, client, ts.URL+"/units/filters", url.Values{"reset": {"1"}})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "3 units, 2 mice, 2 insertions")
}

func TestSessionsAreIsolated(t *testing.T) {
	ts := newTestServer(t, unitTable(t))
	alice, bob := newClient(t), newClient(t)

	post(t, alice, ts.URL+"/units/filters", url.Values{
		"control":               {domain.ColumnAreaOfInterest},
		"opts.area_of_interest": {"2"},
		"sel.area_of_interest":  {"others"},
	})
	_, body := get(t, bob, ts.URL+"/units")
	assert.Contains(t, body, "3 units")
	_, body = get(t, alice, ts.URL+"/units")
	assert.Contains(t, body, "1 units")
}

func TestGalleryDrawsSelectedUnits(t *testing.T) {
	ts := newTestServer(t, unitTable(t))
	client := newClient(t)

	post(t, client, ts.URL+"/units/selection", url.Values{"unit": {firstUnitID}})

	q := url.Values{
		"apply":     {"1"},
		"source":    {domain.SelectSourceTable},
		"num_cols":  {"2"},
		"draw_type": {gallery.DrawTypeDriftMetrics, gallery.DrawTypePSTH, "raster"},
		"draw":      {"1"},
	}
	code, body := get(t, client, ts.URL+"/gallery?"+q.Encode())
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "Loaded 1 of 1 selected units.")
	assert.Contains(t, body, "<h5>SC011, Session 1, 20210304, unit 7 (ALM)</h5>")
	assert.Contains(t, body, `src="data:image/png;base64,`)
	assert.Contains(t, body, "psth fetch error")

	code, body = get(t, client, ts.URL+"/gallery")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `value="2"`, "settings persist in the session")
	assert.NotContains(t, body, "Loaded", "no draw without a request or auto draw")
}

func TestAPIFilter(t *testing.T) {
	ts := newTestServer(t, unitTable(t))

	postJSON := func(payload string) (int, map[string]any) {
		resp, err := http.Post(ts.URL+"/api/filter", "application/json", strings.NewReader(payload))
		require.NoError(t, err)
		defer resp.Body.Close()
		var out map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return resp.StatusCode, out
	}

	code, out := postJSON(`{"selections":{"area_of_interest":["ALM"]},"limit":1}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), out["total"])
	assert.Len(t, out["rows"], 1)
	assert.Equal(t, "2 units, 1 mice, 1 insertions", out["summary_text"])

	code, _ = postJSON(`{"columns":["nope"]}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = postJSON(`{"columns":["h2o"],"patterns":{"h2o":"("}}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = postJSON(`not json`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAPIImage(t *testing.T) {
	ts := newTestServer(t, unitTable(t))
	key := url.Values{
		domain.ColumnSubjectID:       {"1"},
		domain.ColumnH2O:             {"SC011"},
		domain.ColumnSession:         {"1"},
		domain.ColumnSessionDate:     {"2021-03-04"},
		domain.ColumnInsertionNumber: {"1"},
		domain.ColumnUnit:            {"7"},
		domain.ColumnAreaOfInterest:  {"ALM"},
	}

	resp, err := http.Get(ts.URL + "/api/images/drift%20metrics?" + key.Encode())
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	img, err := png.Decode(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())

	code, text := get(t, http.DefaultClient, ts.URL+"/api/images/psth?"+key.Encode())
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, text, "psth fetch error")

	code, _ = get(t, http.DefaultClient, ts.URL+"/api/images/raster?"+key.Encode())
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = get(t, http.DefaultClient, ts.URL+"/api/images/psth?unit=seven")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestNumericControlAndHistogram(t *testing.T) {
	rates := make([]any, 40)
	for i := range rates {
		rates[i] = float64(i) / 4
	}
	table, err := domain.NewTable(domain.Column{Name: "firing_rate", Type: domain.FieldTypeFloat, Values: rates})
	require.NoError(t, err)

	ts := newTestServer(t, table)
	client := newClient(t)

	code, body := post(t, client, ts.URL+"/units/filters", url.Values{
		"columns_submitted": {"1"},
		"columns":           {"firing_rate", "ghost"},
	})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `src="/units/histogram/firing_rate"`)
	assert.Contains(t, body, `name="lo.firing_rate"`)

	code, body = post(t, client, ts.URL+"/units/filters", url.Values{
		"control":            {"firing_rate"},
		"lo.firing_rate":     {"1"},
		"hi.firing_rate":     {"2"},
		"min.firing_rate":    {"0"},
		"max.firing_rate":    {"9.75"},
		"logwas.firing_rate": {"0"},
	})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "Showing 5 of 5 rows.")

	resp, err := client.Get(ts.URL + "/units/histogram/firing_rate")
	require.NoError(t, err)
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))

	code, _ = get(t, client, ts.URL+"/units/histogram/ghost")
	assert.Equal(t, http.StatusNotFound, code)
}
