// Package httpapi serves the JSON API: reading ingest, live values and the
// filtered history query. These routes are unauthenticated and CSRF-exempt;
// device clients cannot carry a session token.
package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/CrAsH90548/Abschlussprojekt2026/internal/measure"
	"github.com/CrAsH90548/Abschlussprojekt2026/internal/store"
	"github.com/CrAsH90548/Abschlussprojekt2026/internal/timefmt"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

type Server struct {
	repo *store.Repo
	conv timefmt.Converter
}

func New(repo *store.Repo, conv timefmt.Converter) *Server {
	return &Server{repo: repo, conv: conv}
}

func (s *Server) Register(r chi.Router) {
	// Method dispatch happens inside the handlers so that unsupported
	// methods get the JSON 405 body clients expect.
	r.HandleFunc("/ingest", s.handleIngest)
	r.HandleFunc("/water/latest", s.handleWaterLatest)
	r.HandleFunc("/sensors", s.handleSensors)
	r.HandleFunc("/readings", s.handleReadings)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// querySlug accepts the historical synonyms devices and the dashboard use.
func querySlug(r *http.Request) string {
	q := r.URL.Query()
	for _, key := range []string{"slug", "sensor", "sensor_slug", "id"} {
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			return v
		}
	}
	return ""
}

type ingestRequest struct {
	Slug       string          `json:"slug"`
	Sensor     string          `json:"sensor"`
	SensorSlug string          `json:"sensor_slug"`
	SensorName string          `json:"sensor_name"`
	SensorType string          `json:"sensor_type"`
	Location   string          `json:"location"`
	Data       json.RawMessage `json:"data"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleIngestPost(w, r)
	case http.MethodGet:
		s.handleIngestGet(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleIngestPost(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	// An empty body counts as an empty object and fails below on the
	// missing slug, matching how lenient the endpoint has always been.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	slug := req.Slug
	if slug == "" {
		slug = req.Sensor
	}
	if slug == "" {
		slug = req.SensorSlug
	}
	if slug == "" {
		writeError(w, http.StatusBadRequest, "slug required")
		return
	}

	data := req.Data
	if len(data) == 0 || string(data) == "null" {
		data = json.RawMessage(`{}`)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "data must be object")
		return
	}

	name := req.SensorName
	if name == "" {
		name = slug
	}
	typeName := req.SensorType
	if typeName == "" {
		typeName = "Generic"
	}

	reading, err := s.repo.IngestReading(r.Context(), store.IngestInput{
		Slug:     slug,
		Name:     name,
		TypeName: typeName,
		Location: req.Location,
		Data:     data,
		At:       s.conv.Now(),
	})
	if err != nil {
		slog.Error("ingest failed", "slug", slug, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":  "ingest failed",
			"detail": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"id":        reading.ID,
		"timestamp": s.conv.Format(reading.Timestamp),
	})
}

func (s *Server) handleIngestGet(w http.ResponseWriter, r *http.Request) {
	slug := querySlug(r)
	if slug == "" {
		writeError(w, http.StatusBadRequest, "slug required")
		return
	}
	latest, sensor, ok := s.latestFor(w, r, slug)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.normalizeReading(latest, sensor))
}

func (s *Server) handleWaterLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	slug := querySlug(r)
	if slug == "" {
		slug = "wasser"
	}
	latest, sensor, ok := s.latestFor(w, r, slug)
	if !ok {
		return
	}
	normalized := s.normalizeReading(latest, sensor)
	writeJSON(w, http.StatusOK, map[string]any{
		"slug":        normalized["slug"],
		"temperature": normalized["temperature"],
		"timestamp":   normalized["timestamp"],
	})
}

// latestFor resolves slug -> sensor -> newest reading, writing the 404/500
// responses itself. ok=false means a response has already been sent.
func (s *Server) latestFor(w http.ResponseWriter, r *http.Request, slug string) (*store.Reading, *store.Sensor, bool) {
	sensor, err := s.repo.SensorBySlug(r.Context(), slug)
	if err == store.ErrSensorNotFound {
		writeError(w, http.StatusNotFound, "sensor not found")
		return nil, nil, false
	}
	if err != nil {
		slog.Error("sensor lookup failed", "slug", slug, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, nil, false
	}
	latest, err := s.repo.LatestReading(r.Context(), sensor.ID)
	if err != nil {
		slog.Error("latest reading query failed", "slug", slug, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, nil, false
	}
	if latest == nil {
		writeError(w, http.StatusNotFound, "no data")
		return nil, nil, false
	}
	return latest, sensor, true
}

func (s *Server) handleSensors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sensors, err := s.repo.ListSensors(r.Context())
	if err != nil {
		slog.Error("sensor list query failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	items := make([]map[string]any, 0, len(sensors))
	for _, sn := range sensors {
		items = append(items, map[string]any{
			"id":        sn.ID,
			"name":      sn.Name,
			"slug":      sn.Slug,
			"type":      sn.SensorType.Name,
			"location":  sn.Location,
			"is_active": true,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()

	f := store.ReadingFilter{
		Query:    strings.TrimSpace(q.Get("q")),
		Page:     1,
		PageSize: defaultPageSize,
	}
	f.Slug = strings.TrimSpace(q.Get("sensor"))
	if f.Slug == "" {
		f.Slug = strings.TrimSpace(q.Get("slug"))
	}
	if t, ok := s.conv.Parse(q.Get("from")); ok {
		f.From = &t
	}
	if t, ok := s.conv.Parse(q.Get("to")); ok {
		f.To = &t
	}
	// Malformed page values fall back to the defaults rather than erroring.
	if n, err := strconv.Atoi(q.Get("page")); err == nil && n >= 1 {
		f.Page = n
	}
	if n, err := strconv.Atoi(q.Get("page_size")); err == nil {
		if n < 1 {
			n = 1
		}
		if n > maxPageSize {
			n = maxPageSize
		}
		f.PageSize = n
	}

	rows, total, err := s.repo.QueryReadings(r.Context(), f)
	if err != nil {
		slog.Error("readings query failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	results := make([]map[string]any, 0, len(rows))
	for i := range rows {
		results = append(results, s.normalizeRow(&rows[i]))
	}

	start := (f.Page - 1) * f.PageSize
	end := start + f.PageSize
	writeJSON(w, http.StatusOK, map[string]any{
		"results":   results,
		"page":      f.Page,
		"page_size": f.PageSize,
		"total":     total,
		"has_next":  int64(end) < total,
		"has_prev":  start > 0,
	})
}

func decodeData(raw []byte) map[string]any {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func (s *Server) normalizeReading(rd *store.Reading, sensor *store.Sensor) map[string]any {
	v := measure.Extract(decodeData(rd.Data))
	return map[string]any{
		"slug":        sensor.Slug,
		"temperature": v.Temperature,
		"humidity":    v.Humidity,
		"timestamp":   s.conv.Format(rd.Timestamp),
	}
}

func (s *Server) normalizeRow(rd *store.Reading) map[string]any {
	v := measure.Extract(decodeData(rd.Data))
	return map[string]any{
		"timestamp":         s.conv.Format(rd.Timestamp),
		"sensor":            rd.Sensor.Slug,
		"temperature":       v.Temperature,
		"humidity":          v.Humidity,
		"water_temperature": v.WaterTemperature,
		"location":          rd.Sensor.Location,
		"type":              rd.Sensor.SensorType.Name,
	}
}
