package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/KaramelBytes/lapboard-cli/internal/ingest"
	"github.com/KaramelBytes/lapboard-cli/internal/race"
	"github.com/KaramelBytes/lapboard-cli/internal/report"
	"github.com/KaramelBytes/lapboard-cli/internal/telemetry"
)

const raceCSV = "Piloto,Volta,Tempo,Latitude,Longitude,Timestamp\n" +
	"A,1,00:01:00,-23.55,-46.63,2024-03-10 14:00:00\n" +
	"B,1,00:01:05,-23.55,-46.63,2024-03-10 14:00:05\n" +
	"A,2,00:00:59,-23.55,-46.63,2024-03-10 14:01:00\n" +
	"B,2,00:00:58,-23.55,-46.63,2024-03-10 14:01:10\n" +
	"C,1,broken,-23.55,-46.63,2024-03-10 14:01:10\n"

func newTestServer() *Server {
	return New(NewStore(time.Minute), Options{MaxUploadBytes: 1 << 20})
}

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func upload(t *testing.T, s *Server) SessionResponse {
	t.Helper()
	rec := do(s, uploadRequest(t, "race.csv", raceCSV))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func getReport(t *testing.T, s *Server, target string) report.Report {
	t.Helper()
	rec := do(s, httptest.NewRequest(http.MethodGet, target, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rep report.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	return rep
}

func TestUploadAndAnalyse(t *testing.T) {
	s := newTestServer()
	sess := upload(t, s)

	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "race.csv", sess.Name)
	assert.Equal(t, 1, sess.Dropped)
	assert.Equal(t, telemetry.DropStats{Input: 5, Kept: 4, Duration: 1}, sess.Rows)
	assert.Equal(t, []string{"A", "B"}, sess.Drivers)
	assert.Equal(t, []int{1, 2}, sess.Laps)

	rep := getReport(t, s, "/api/v1/sessions/"+sess.ID+"/analysis")
	assert.False(t, rep.NoData)
	require.NotNil(t, rep.BestLap)
	assert.Equal(t, "B", rep.BestLap.Driver)
	assert.Equal(t, 2, rep.BestLap.Lap)
	assert.Equal(t, 58.0, rep.BestLap.DurationSeconds)
	require.Len(t, rep.Totals, 2)
	assert.Equal(t, "A", rep.Totals[0].Driver)
	assert.Equal(t, 119.0, rep.Totals[0].TotalSeconds)
	assert.Equal(t, 2, rep.Totals[1].Rank)

	rep = getReport(t, s, "/api/v1/sessions/"+sess.ID+"/analysis?driver=A&lap=1,2")
	require.NotNil(t, rep.BestLap)
	assert.Equal(t, 59.0, rep.BestLap.DurationSeconds)
	assert.Equal(t, []string{"A"}, rep.Drivers)
}

func TestAnalysisEmptySelection(t *testing.T) {
	s := newTestServer()
	sess := upload(t, s)

	rep := getReport(t, s, "/api/v1/sessions/"+sess.ID+"/analysis?driver=")
	assert.True(t, rep.NoData)
	assert.Nil(t, rep.BestLap)
	assert.Empty(t, rep.Totals)
	assert.Empty(t, rep.Series)

	rep = getReport(t, s, "/api/v1/sessions/"+sess.ID+"/analysis?lap=")
	assert.True(t, rep.NoData)
}

func TestAnalysisInvalidLap(t *testing.T) {
	s := newTestServer()
	sess := upload(t, s)
	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+sess.ID+"/analysis?lap=one", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadErrors(t *testing.T) {
	s := newTestServer()

	rec := do(s, uploadRequest(t, "race.csv", "Piloto,Volta,Latitude\nA,1,2\n"))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var e errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, []string{"Longitude", "Tempo", "Timestamp"}, e.Missing)

	rec = do(s, uploadRequest(t, "race.ods", "whatever"))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = do(s, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader("x")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, 0, s.store.Count())
}

func TestUploadWorkbookUnzipLimit(t *testing.T) {
	assert.Equal(t, int64(20<<20), newTestServer().opt.Ingest.MaxUnzipBytes)

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"Piloto", "Volta", "Tempo", "Latitude", "Longitude", "Timestamp"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	s := New(NewStore(time.Minute), Options{MaxUploadBytes: 1 << 20, Ingest: ingest.Options{MaxUnzipBytes: 1024}})
	rec := do(s, uploadRequest(t, "race.xlsx", buf.String()))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())
	assert.Equal(t, 0, s.store.Count())
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer()
	sess := upload(t, s)
	other := upload(t, s)
	assert.NotEqual(t, sess.ID, other.ID)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+sess.ID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(s, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+sess.ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	for _, target := range []string{
		"/api/v1/sessions/" + sess.ID,
		"/api/v1/sessions/" + sess.ID + "/analysis",
		"/api/v1/sessions/" + sess.ID + "/report.xlsx",
	} {
		rec = do(s, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
	}
	rec = do(s, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+sess.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// the other upload is untouched
	rep := getReport(t, s, "/api/v1/sessions/"+other.ID+"/analysis")
	assert.False(t, rep.NoData)
}

func TestReportWorkbook(t *testing.T) {
	s := newTestServer()
	sess := upload(t, s)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+sess.ID+"/report.xlsx?driver=B", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "report.xlsx")

	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(report.SheetClassification)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "B", rows[1][1])
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer()
	upload(t, s)
	do(s, uploadRequest(t, "race.ods", "x"))

	rec := do(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var h healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.Equal(t, healthResponse{Status: "ok", Sessions: 1}, h)

	rec = do(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `lapboard_uploads_total{result="ok"} 1`)
	assert.Contains(t, body, `lapboard_uploads_total{result="unsupported"} 1`)
	assert.Contains(t, body, `lapboard_rows_total{status="kept"} 4`)
	assert.Contains(t, body, `lapboard_rows_total{status="dropped_duration"} 1`)
	assert.Contains(t, body, "lapboard_sessions_active 1")
}

func TestUnknownRoute(t *testing.T) {
	rec := do(newTestServer(), httptest.NewRequest(http.MethodGet, "/api/v2/sessions", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStoreEviction(t *testing.T) {
	st := NewStore(10 * time.Minute)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return now }

	sess := race.NewSession("race.csv", telemetry.NewDataset(nil), telemetry.DropStats{})
	a := st.Put(sess)
	b := st.Put(sess)

	now = now.Add(8 * time.Minute)
	_, ok := st.Get(a.ID) // keeps a alive
	require.True(t, ok)

	now = now.Add(3 * time.Minute)
	_, ok = st.Get(b.ID)
	assert.False(t, ok, "idle past ttl")
	assert.Equal(t, 2, st.Count())

	assert.Equal(t, 1, st.Evict(now))
	_, ok = st.Get(a.ID)
	assert.True(t, ok)
	assert.Equal(t, 1, st.Count())
}
