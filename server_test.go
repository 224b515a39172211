package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/odometry.report/internal/db"
	"github.com/driftline/odometry.report/internal/vo"
)

func testServer(t *testing.T) (*Server, *vo.FrameHandler, *db.DB, *db.Session) {
	t.Helper()

	database, err := db.NewDB(filepath.Join(t.TempDir(), "server_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	session, err := database.CreateSession("fixtures/frames.jsonl", "{}")
	require.NoError(t, err)

	handler := vo.NewFrameHandler(vo.DefaultConfig())
	return NewServer(handler, database, session), handler, database, session
}

func TestStatusEndpoint(t *testing.T) {
	srv, handler, _, session := testServer(t)

	// Process one synthetic frame so status carries real telemetry.
	handler.RequestStart()
	handler.BeginFrame(time.Now())
	handler.FinishFrame(1, vo.ResultIsKeyframe, 120)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, session.SessionID, status.SessionID)
	assert.Equal(t, vo.StageSecondFrame, status.Stage)
	assert.Equal(t, "good", status.TrackingQuality)
	assert.Equal(t, 120, status.LastNumObservations)
	assert.Equal(t, float64(120), status.MeanObservations)
}

func TestStartAndResetEndpoints(t *testing.T) {
	srv, handler, _, _ := testServer(t)
	mux := srv.ServeMux()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/start", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	// The latch is consumed at the next frame boundary.
	require.True(t, handler.BeginFrame(time.Now()))
	assert.Equal(t, vo.StageFirstFrame, handler.Stage())
	handler.FinishFrame(1, vo.ResultIsKeyframe, 100)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reset", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	handler.BeginFrame(time.Now())
	assert.Equal(t, vo.StagePaused, handler.Stage())
}

func TestCommandEndpointsRejectGet(t *testing.T) {
	srv, _, _, _ := testServer(t)
	mux := srv.ServeMux()

	for _, path := range []string{"/start", "/reset"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, path)
	}
}

func TestFramesEndpoint(t *testing.T) {
	srv, _, database, session := testServer(t)

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, database.InsertFrame(&db.FrameRecord{
			SessionID:       session.SessionID,
			FrameID:         i,
			TSUnixNanos:     i,
			Stage:           vo.StageDefaultFrame,
			Result:          vo.ResultNotKeyframe,
			NumObservations: 100,
			Quality:         "good",
		}))
	}

	rec := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/frames?limit=3", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var frames []*db.FrameRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &frames))
	require.Len(t, frames, 3)
	assert.Equal(t, int64(5), frames[0].FrameID)
}

func TestReportEndpointRendersHTML(t *testing.T) {
	srv, handler, _, _ := testServer(t)

	handler.RequestStart()
	handler.BeginFrame(time.Now())
	handler.FinishFrame(1, vo.ResultIsKeyframe, 90)

	rec := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/report", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.True(t, strings.Contains(rec.Body.String(), "Frame processing time"))
}
