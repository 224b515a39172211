package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/driftline/odometry.report/internal/db"
	"github.com/driftline/odometry.report/internal/monitoring"
	"github.com/driftline/odometry.report/internal/version"
	"github.com/driftline/odometry.report/internal/vo"
)

// Server exposes the supervisory control and status surface over HTTP.
// Every endpoint reads committed handler state through the short-held lock
// accessors; nothing here blocks the processing goroutine for a full frame.
type Server struct {
	handler *vo.FrameHandler
	db      *db.DB
	session *db.Session
}

func NewServer(handler *vo.FrameHandler, database *db.DB, session *db.Session) *Server {
	return &Server{
		handler: handler,
		db:      database,
		session: session,
	}
}

// StatusResponse is the JSON shape of /api/vo/status.
type StatusResponse struct {
	Version             string         `json:"version"`
	SessionID           string         `json:"session_id,omitempty"`
	Stage               vo.Stage       `json:"stage"`
	TrackingQuality     string         `json:"tracking_quality"`
	LastNumObservations int            `json:"last_num_observations"`
	LastProcessingMs    float64        `json:"last_processing_ms"`
	RegularFrames       int            `json:"regular_frames"`
	MeanProcessingMs    float64        `json:"mean_processing_ms"`
	MeanObservations    float64        `json:"mean_observations"`
	Map                 vo.MapSnapshot `json:"map"`
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/start", s.startHandler)
	mux.HandleFunc("/reset", s.resetHandler)
	mux.HandleFunc("/frames", s.framesHandler)
	mux.HandleFunc("/keyframes", s.keyframesHandler)
	mux.HandleFunc("/report", s.reportHandler)
	return mux
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("write response: %v", err)
	}
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	meanDur, meanObs := s.handler.Telemetry()
	resp := StatusResponse{
		Version:             version.String(),
		Stage:               s.handler.Stage(),
		TrackingQuality:     s.handler.TrackingQuality().String(),
		LastNumObservations: s.handler.LastNumObservations(),
		LastProcessingMs:    float64(s.handler.LastProcessingTime()) / float64(time.Millisecond),
		RegularFrames:       s.handler.RegularFrames(),
		MeanProcessingMs:    float64(meanDur) / float64(time.Millisecond),
		MeanObservations:    meanObs,
		Map:                 s.handler.Map().Snapshot(),
	}
	if s.session != nil {
		resp.SessionID = s.session.SessionID
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) startHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.handler.RequestStart()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "start requested"})
}

func (s *Server) resetHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.handler.RequestReset()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "reset requested"})
}

func (s *Server) framesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.db == nil || s.session == nil {
		http.Error(w, "No persistence configured", http.StatusNotFound)
		return
	}

	limit := 100
	if q := r.URL.Query().Get("limit"); q != "" {
		if v, err := strconv.Atoi(q); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}

	frames, err := s.db.RecentFrames(s.session.SessionID, limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to retrieve frames: %v", err), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, frames)
}

func (s *Server) keyframesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.db == nil || s.session == nil {
		http.Error(w, "No persistence configured", http.StatusNotFound)
		return
	}

	kfs, err := s.db.Keyframes(s.session.SessionID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to retrieve keyframes: %v", err), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, kfs)
}

// reportHandler renders a quick HTML chart of the rolling telemetry window
// using go-echarts. Debugging-only endpoint: it reads the in-memory window,
// not the database, so it shows at most the last window capacity of frames.
func (s *Server) reportHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	durations, observations := s.handler.TelemetrySeries()
	labels := make([]string, len(durations))
	durData := make([]opts.LineData, len(durations))
	obsData := make([]opts.LineData, len(observations))
	for i := range durations {
		labels[i] = strconv.Itoa(i - len(durations) + 1)
		durData[i] = opts.LineData{Value: float64(durations[i]) / float64(time.Millisecond)}
		obsData[i] = opts.LineData{Value: observations[i]}
	}

	durChart := charts.NewLine()
	durChart.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Frame processing time", Subtitle: "milliseconds, rolling window"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	durChart.SetXAxis(labels).AddSeries("ms", durData)

	obsChart := charts.NewLine()
	obsChart.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Feature observations", Subtitle: "per frame, rolling window"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	obsChart.SetXAxis(labels).AddSeries("observations", obsData)

	page := components.NewPage()
	page.SetPageTitle("VO telemetry")
	page.AddCharts(durChart, obsChart)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Render(w); err != nil {
		monitoring.Logf("render report: %v", err)
	}
}
