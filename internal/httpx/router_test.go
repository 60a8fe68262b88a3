package httpx

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/auction-tracker/internal/config"
	"github.com/AngelCh415/auction-tracker/internal/ingest"
	"github.com/AngelCh415/auction-tracker/internal/report"
	"github.com/AngelCh415/auction-tracker/internal/store"
	"github.com/AngelCh415/auction-tracker/internal/telemetry"
)

const reportCSV = `Campaign Name,Keyword,date_ist,Most Viewed Position,CPM,Impressions,Estimated Budget Consumed,Direct Sales
Blinkit Promo,milk,2024-03-01,2,100,1000,100,300
Blinkit Promo,milk,2024-03-02,4,120,900,50,0
Zepto Push,bread,2024-03-01,6,40,500,400,0
`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	tel := telemetry.New()
	etl := ingest.NewETL(log, tel, ingest.DefaultOptions())
	svc := report.NewService(etl, store.NewMemoryStore(4), tel, config.Default())
	srv := httptest.NewServer(NewRouter(log, svc, tel, 1<<20))
	t.Cleanup(srv.Close)
	return srv
}

type part struct{ name, content string }

func upload(t *testing.T, srv *httptest.Server, files map[string]string) *http.Response {
	t.Helper()
	var parts []part
	for name, content := range files {
		parts = append(parts, part{name, content})
	}
	return uploadParts(t, srv, parts...)
}

func uploadParts(t *testing.T, srv *httptest.Server, parts ...part) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, p := range parts {
		fw, err := mw.CreateFormFile(uploadField, p.name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(p.content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/datasets", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func uploadDataset(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp := upload(t, srv, map[string]string{"report.csv": reportCSV})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out struct {
		Dataset struct {
			ID    string       `json:"id"`
			Stats ingest.Stats `json:"stats"`
		} `json:"dataset"`
	}
	decode(t, resp, &out)
	require.NotEmpty(t, out.Dataset.ID)
	assert.Equal(t, 3, out.Dataset.Stats.Records)
	return out.Dataset.ID
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	resp := get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestUploadAndPivot(t *testing.T) {
	srv := newTestServer(t)
	id := uploadDataset(t, srv)

	resp := get(t, srv.URL+"/datasets/"+id+"/pivot")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view struct {
		Columns []struct {
			Header string `json:"header"`
		} `json:"columns"`
		Rows []struct {
			CampaignName string     `json:"campaign_name"`
			Target       string     `json:"target"`
			Values       []*float64 `json:"values"`
		} `json:"rows"`
	}
	decode(t, resp, &view)
	require.Len(t, view.Columns, 6)
	assert.Equal(t, "2024-03-01 Most Viewed Position", view.Columns[0].Header)
	require.Len(t, view.Rows, 2)
	assert.Equal(t, "Blinkit Promo", view.Rows[0].CampaignName)
	assert.Nil(t, view.Rows[1].Values[3], "Zepto has no 2024-03-02 data")
}

func TestUploadSameFilesIsCached(t *testing.T) {
	srv := newTestServer(t)
	assert.Equal(t, uploadDataset(t, srv), uploadDataset(t, srv))
}

func TestUploadSameNamedFiles(t *testing.T) {
	srv := newTestServer(t)
	resp := uploadParts(t, srv,
		part{"report.csv", "Campaign Name,Keyword,date_ist,CPM\nJanCampaign,k,2024-01-05,10\n"},
		part{"report.csv", "Campaign Name,Keyword,date_ist,CPM\nFebCampaign,k,2024-02-05,20\n"},
	)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out struct {
		Dataset struct {
			ID     string       `json:"id"`
			Sheets []string     `json:"sheets"`
			Stats  ingest.Stats `json:"stats"`
		} `json:"dataset"`
	}
	decode(t, resp, &out)
	assert.Equal(t, 2, out.Dataset.Stats.Records)
	assert.Len(t, out.Dataset.Sheets, 2)

	resp = get(t, srv.URL+"/datasets/"+out.Dataset.ID+"/campaigns")
	var ms []struct {
		Candidate string `json:"candidate"`
	}
	decode(t, resp, &ms)
	require.Len(t, ms, 2)
	assert.Equal(t, "FebCampaign", ms[0].Candidate)
	assert.Equal(t, "JanCampaign", ms[1].Candidate)
}

func TestListAndDeleteDatasets(t *testing.T) {
	srv := newTestServer(t)

	resp := get(t, srv.URL+"/datasets")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []struct {
		ID string `json:"id"`
	}
	decode(t, resp, &list)
	assert.Empty(t, list)

	id := uploadDataset(t, srv)
	resp = get(t, srv.URL+"/datasets")
	decode(t, resp, &list)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)

	del := func() int {
		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/datasets/"+id, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusNoContent, del())
	assert.Equal(t, http.StatusNotFound, del())
	assert.Equal(t, http.StatusNotFound, get(t, srv.URL+"/datasets/"+id).StatusCode)
}

func TestPivotFuzzyCampaignFilter(t *testing.T) {
	srv := newTestServer(t)
	id := uploadDataset(t, srv)

	resp := get(t, srv.URL+"/datasets/"+id+"/pivot?campaign=blnkit+promo")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view struct {
		Rows []struct {
			CampaignName string `json:"campaign_name"`
		} `json:"rows"`
	}
	decode(t, resp, &view)
	require.Len(t, view.Rows, 1)
	assert.Equal(t, "Blinkit Promo", view.Rows[0].CampaignName)
}

func TestSegmentsAndTrend(t *testing.T) {
	srv := newTestServer(t)
	id := uploadDataset(t, srv)

	resp := get(t, srv.URL+"/datasets/"+id+"/segments")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var seg struct {
		TopPerformers []struct {
			Target string  `json:"target"`
			ROAS   float64 `json:"roas"`
		} `json:"top_performers"`
		WasteAudit []struct {
			CampaignName string `json:"campaign_name"`
		} `json:"waste_audit"`
	}
	decode(t, resp, &seg)
	require.Len(t, seg.TopPerformers, 1)
	assert.Equal(t, 2.0, seg.TopPerformers[0].ROAS)
	require.Len(t, seg.WasteAudit, 1)
	assert.Equal(t, "Zepto Push", seg.WasteAudit[0].CampaignName)

	resp = get(t, srv.URL+"/datasets/"+id+"/trend")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var days []struct {
		DayOfWeek string  `json:"day_of_week"`
		Spend     float64 `json:"spend"`
	}
	decode(t, resp, &days)
	require.Len(t, days, 7)
	assert.Equal(t, "Friday", days[4].DayOfWeek)
	assert.Equal(t, 500.0, days[4].Spend)
}

func TestExport(t *testing.T) {
	srv := newTestServer(t)
	id := uploadDataset(t, srv)

	resp := get(t, srv.URL+"/datasets/"+id+"/export.xlsx")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "daily_side_by_side_tracker.xlsx")
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, []byte("PK")), "xlsx is a zip archive")
}

func TestErrors(t *testing.T) {
	srv := newTestServer(t)

	t.Run("schema error", func(t *testing.T) {
		resp := upload(t, srv, map[string]string{"nodate.csv": "Campaign Name,Keyword\nC1,K1\n"})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		var e APIError
		decode(t, resp, &e)
		assert.Equal(t, "SCHEMA_ERROR", e.ErrorCode)
	})

	t.Run("no usable data", func(t *testing.T) {
		resp := upload(t, srv, map[string]string{"notes.txt": "hello"})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		var e APIError
		decode(t, resp, &e)
		assert.Equal(t, "NO_DATA", e.ErrorCode)
		assert.NotEmpty(t, e.Details)
	})

	t.Run("not multipart", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/datasets", "text/plain", strings.NewReader("x"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown dataset", func(t *testing.T) {
		resp := get(t, srv.URL+"/datasets/nope/pivot")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("bad parameter", func(t *testing.T) {
		id := uploadDataset(t, srv)
		resp := get(t, srv.URL+"/datasets/"+id+"/pivot?metrics=clicks")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var e APIError
		decode(t, resp, &e)
		assert.Equal(t, "INVALID_PARAMETER", e.ErrorCode)

		resp = get(t, srv.URL+"/datasets/"+id+"/trend?from=yesterday")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	uploadDataset(t, srv)

	resp := get(t, srv.URL+"/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), "records_ingested_total")
	assert.Contains(t, string(b), "tracker_http_request_duration_seconds")
}
