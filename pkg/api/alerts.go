package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aman-app/aman/pkg/alerts"
	"github.com/aman-app/aman/pkg/auth"
	"github.com/aman-app/aman/pkg/errdefs"
	"github.com/aman-app/aman/pkg/types"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	name := "internal_error"
	switch errdefs.CodeOf(err) {
	case errdefs.CodeValidation:
		status, name = http.StatusBadRequest, "bad_request"
	case errdefs.CodeAuthorization:
		status, name = http.StatusForbidden, "forbidden"
	case errdefs.CodeNotFound:
		status, name = http.StatusNotFound, "not_found"
	case errdefs.CodeConflict:
		status, name = http.StatusConflict, "conflict"
	}
	body := map[string]string{"error": name, "reason": err.Error()}
	if id := errdefs.ResourceIDOf(err); id != "" {
		body["id"] = id
	}
	writeJSON(w, status, body)
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var in alerts.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, errdefs.Validation("invalid alert body"))
		return
	}
	alert, err := s.engine.Create(auth.UserID(r.Context()), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, alert)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	filter := alerts.ListFilter{
		Category: r.URL.Query().Get("category"),
		Severity: types.Severity(r.URL.Query().Get("severity")),
	}
	if raw := r.URL.Query().Get("bbox"); raw != "" {
		bbox, err := parseBBox(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		filter.BBox = bbox
	}
	list, err := s.engine.List(filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []*types.Alert{}
	}
	writeJSON(w, http.StatusOK, list)
}

// parseBBox parses "minLng,minLat,maxLng,maxLat".
func parseBBox(raw string) (*[4]float64, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return nil, errdefs.Validation("bbox must be minLng,minLat,maxLng,maxLat")
	}
	var bbox [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, errdefs.Validation("invalid bbox component: %s", p)
		}
		bbox[i] = v
	}
	return &bbox, nil
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := s.engine.Get(chi.URLParam(r, "alertID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleReportAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := s.engine.Report(chi.URLParam(r, "alertID"), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	err := s.engine.Delete(chi.URLParam(r, "alertID"), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handlePutSnapshot accepts a derived artifact (map thumbnail) for an
// alert, pushed opportunistically by agents after id reconciliation.
func (s *Server) handlePutSnapshot(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertID")
	if _, err := s.engine.Get(alertID); err != nil {
		writeError(w, err)
		return
	}
	snapshot, err := io.ReadAll(r.Body)
	if err != nil || len(snapshot) == 0 {
		writeError(w, errdefs.Validation("empty snapshot body"))
		return
	}
	artifact := &types.CachedArtifact{Key: alertID, Snapshot: snapshot, CachedAt: time.Now()}
	if err := s.store.PutArtifact(artifact); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]bool{"ok": true})
}
