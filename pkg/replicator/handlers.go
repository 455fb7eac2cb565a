package replicator

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aman-app/aman/pkg/auth"
	"github.com/aman-app/aman/pkg/errdefs"
	"github.com/aman-app/aman/pkg/metrics"
)

// Mount registers the replication protocol routes on r. The routes
// assume auth middleware has already resolved the caller's user id.
func (f *Facade) Mount(r chi.Router) {
	r.Get("/", f.handleInfo)
	r.Get("/_all_docs", f.handleAllDocs)
	r.Post("/_bulk_docs", f.handleBulkDocs)
	r.Get("/_changes", f.handleChanges)
	r.Post("/_revs_diff", f.handleRevsDiff)
	r.Post("/_bulk_get", f.handleBulkGet)
	r.Get("/_local/{checkpointID}", f.handleGetCheckpoint)
	r.Put("/_local/{checkpointID}", f.handlePutCheckpoint)
	r.Get("/{docID}", f.handleGetDoc)
	r.Put("/{docID}", f.handlePutDoc)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	name := "internal_error"
	switch errdefs.CodeOf(err) {
	case errdefs.CodeNotFound:
		status, name = http.StatusNotFound, "not_found"
	case errdefs.CodeAuthorization:
		status, name = http.StatusForbidden, "forbidden"
	case errdefs.CodeValidation:
		status, name = http.StatusBadRequest, "bad_request"
	case errdefs.CodeConflict:
		status, name = http.StatusConflict, "conflict"
	}
	writeJSON(w, status, map[string]string{"error": name, "reason": err.Error()})
}

func (f *Facade) handleInfo(w http.ResponseWriter, r *http.Request) {
	metrics.ReplicationRequestsTotal.WithLabelValues("info").Inc()
	info, err := f.CollectionInfo(chi.URLParam(r, "collection"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (f *Facade) handleAllDocs(w http.ResponseWriter, r *http.Request) {
	metrics.ReplicationRequestsTotal.WithLabelValues("all_docs").Inc()
	res, err := f.AllDocs()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (f *Facade) handleBulkDocs(w http.ResponseWriter, r *http.Request) {
	metrics.ReplicationRequestsTotal.WithLabelValues("bulk_docs").Inc()
	var body struct {
		Docs []json.RawMessage `json:"docs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errdefs.Validation("invalid _bulk_docs body"))
		return
	}
	results := f.BulkDocs(auth.UserID(r.Context()), body.Docs)
	writeJSON(w, http.StatusCreated, results)
}

func (f *Facade) handleChanges(w http.ResponseWriter, r *http.Request) {
	metrics.ReplicationRequestsTotal.WithLabelValues("changes").Inc()
	since := int64(0)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, errdefs.Validation("invalid since value: %s", raw))
			return
		}
		since = parsed
	}
	res, err := f.Changes(since)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (f *Facade) handleRevsDiff(w http.ResponseWriter, r *http.Request) {
	metrics.ReplicationRequestsTotal.WithLabelValues("revs_diff").Inc()
	var claims map[string][]string
	if err := json.NewDecoder(r.Body).Decode(&claims); err != nil {
		writeError(w, errdefs.Validation("invalid _revs_diff body"))
		return
	}
	diff, err := f.RevsDiff(claims)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diff)
}

func (f *Facade) handleBulkGet(w http.ResponseWriter, r *http.Request) {
	metrics.ReplicationRequestsTotal.WithLabelValues("bulk_get").Inc()
	var body struct {
		Docs []struct {
			ID string `json:"id"`
		} `json:"docs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errdefs.Validation("invalid _bulk_get body"))
		return
	}
	ids := make([]string, 0, len(body.Docs))
	for _, d := range body.Docs {
		ids = append(ids, d.ID)
	}
	res, err := f.BulkGet(ids)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (f *Facade) handleGetCheckpoint(w http.ResponseWriter, r *http.Request) {
	metrics.ReplicationRequestsTotal.WithLabelValues("checkpoint_get").Inc()
	body, err := f.GetCheckpoint(chi.URLParam(r, "checkpointID"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (f *Facade) handlePutCheckpoint(w http.ResponseWriter, r *http.Request) {
	metrics.ReplicationRequestsTotal.WithLabelValues("checkpoint_put").Inc()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, errdefs.Validation("unreadable checkpoint body"))
		return
	}
	ack, err := f.PutCheckpoint(chi.URLParam(r, "checkpointID"), body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ack)
}

func (f *Facade) handleGetDoc(w http.ResponseWriter, r *http.Request) {
	metrics.ReplicationRequestsTotal.WithLabelValues("doc_get").Inc()
	doc, err := f.GetDoc(chi.URLParam(r, "docID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (f *Facade) handlePutDoc(w http.ResponseWriter, r *http.Request) {
	metrics.ReplicationRequestsTotal.WithLabelValues("doc_put").Inc()
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, errdefs.Validation("unreadable document body"))
		return
	}
	item := f.PutDoc(auth.UserID(r.Context()), chi.URLParam(r, "docID"), raw)
	if item.Error != "" {
		status := http.StatusBadRequest
		if item.Error == "forbidden" {
			status = http.StatusForbidden
		}
		writeJSON(w, status, item)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}
