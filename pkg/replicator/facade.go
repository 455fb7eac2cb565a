package replicator

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aman-app/aman/pkg/errdefs"
	"github.com/aman-app/aman/pkg/log"
	"github.com/aman-app/aman/pkg/storage"
	"github.com/aman-app/aman/pkg/types"
)

// Facade translates replication protocol operations into reads and
// writes against the canonical store. It is stateless per request;
// concurrent writers for the same owner are serialized only by the
// store's per-record write atomicity.
type Facade struct {
	store  storage.Store
	logger zerolog.Logger
	now    func() time.Time
}

// NewFacade creates a facade over the canonical store.
func NewFacade(store storage.Store) *Facade {
	return &Facade{
		store:  store,
		logger: log.WithComponent("replicator"),
		now:    time.Now,
	}
}

// Info is the collection liveness summary.
type Info struct {
	DBName    string `json:"db_name"`
	DocCount  int    `json:"doc_count"`
	UpdateSeq int64  `json:"update_seq"`
}

// CollectionInfo returns doc count and the highest sequence.
func (f *Facade) CollectionInfo(collection string) (*Info, error) {
	checkins, err := f.store.ListCheckIns()
	if err != nil {
		return nil, err
	}
	var max int64
	for _, c := range checkins {
		if seq := c.UpdatedAt.UnixMilli(); seq > max {
			max = seq
		}
	}
	return &Info{DBName: collection, DocCount: len(checkins), UpdateSeq: max}, nil
}

// AllDocsRow is one row of an _all_docs listing.
type AllDocsRow struct {
	ID    string `json:"id"`
	Key   string `json:"key"`
	Value struct {
		Rev string `json:"rev"`
	} `json:"value"`
}

// AllDocsResult is the _all_docs response body.
type AllDocsResult struct {
	TotalRows int          `json:"total_rows"`
	Rows      []AllDocsRow `json:"rows"`
}

// AllDocs lists every document id with its current revision.
func (f *Facade) AllDocs() (*AllDocsResult, error) {
	checkins, err := f.store.ListCheckIns()
	if err != nil {
		return nil, err
	}
	res := &AllDocsResult{TotalRows: len(checkins), Rows: make([]AllDocsRow, 0, len(checkins))}
	for _, c := range checkins {
		row := AllDocsRow{ID: c.ID, Key: c.ID}
		row.Value.Rev = c.Rev
		res.Rows = append(res.Rows, row)
	}
	sort.Slice(res.Rows, func(i, j int) bool { return res.Rows[i].ID < res.Rows[j].ID })
	return res, nil
}

// BulkDocsItem is the per-document outcome of a _bulk_docs call.
type BulkDocsItem struct {
	ID     string `json:"id"`
	Rev    string `json:"rev,omitempty"`
	OK     bool   `json:"ok,omitempty"`
	Error  string `json:"error,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// BulkDocs applies a batch of document writes for owner. Results come
// back in input order and one item's failure never aborts the batch.
// A caller may only write the record it owns.
func (f *Facade) BulkDocs(owner string, docs []json.RawMessage) []BulkDocsItem {
	results := make([]BulkDocsItem, 0, len(docs))
	for _, raw := range docs {
		results = append(results, f.applyDoc(owner, raw))
	}
	return results
}

// PutDoc upserts a single document for owner.
func (f *Facade) PutDoc(owner, docID string, raw json.RawMessage) BulkDocsItem {
	item := f.applyDoc(owner, raw)
	if item.ID == "" {
		item.ID = docID
	}
	return item
}

// GetDoc reads a single document.
func (f *Facade) GetDoc(docID string) (*types.CheckIn, error) {
	return f.store.GetCheckIn(docID)
}

func (f *Facade) applyDoc(owner string, raw json.RawMessage) BulkDocsItem {
	var doc types.CheckIn
	if err := json.Unmarshal(raw, &doc); err != nil {
		return BulkDocsItem{Error: "bad_request", Reason: "invalid document"}
	}
	if doc.ID == "" {
		doc.ID = types.CheckInID(doc.UserID)
	}
	if doc.UserID == "" {
		doc.UserID = owner
	}
	if doc.ID != types.CheckInID(owner) || doc.UserID != owner {
		f.logger.Debug().Str("doc", doc.ID).Str("owner", owner).Msg("rejected write outside owner scope")
		return BulkDocsItem{ID: doc.ID, Error: "forbidden", Reason: "document not owned by caller"}
	}

	current, err := f.store.GetCheckIn(doc.ID)
	if err != nil && !errdefs.IsNotFound(err) {
		return BulkDocsItem{ID: doc.ID, Error: "internal", Reason: err.Error()}
	}

	// The synced flag is client-local bookkeeping; never trust it from
	// a remote peer.
	doc.Synced = false
	doc.UpdatedAt = f.now()

	currentRev := ""
	if current != nil {
		currentRev = current.Rev
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return BulkDocsItem{ID: doc.ID, Error: "bad_request", Reason: "unencodable document"}
	}
	doc.Rev = NextRev(currentRev, payload)

	if err := f.store.PutCheckIn(&doc); err != nil {
		return BulkDocsItem{ID: doc.ID, Error: "internal", Reason: err.Error()}
	}
	return BulkDocsItem{ID: doc.ID, Rev: doc.Rev, OK: true}
}

// Change is one row of a _changes feed.
type Change struct {
	Seq     int64  `json:"seq"`
	ID      string `json:"id"`
	Changes []struct {
		Rev string `json:"rev"`
	} `json:"changes"`
}

// ChangesResult is the _changes response body.
type ChangesResult struct {
	Results []Change `json:"results"`
	LastSeq int64    `json:"last_seq"`
}

// Changes re-scans the store for records modified after since. The
// sequence is the record's modification time in unix milliseconds.
func (f *Facade) Changes(since int64) (*ChangesResult, error) {
	newer, err := f.store.ListCheckInsSince(since)
	if err != nil {
		return nil, err
	}
	res := &ChangesResult{Results: make([]Change, 0, len(newer)), LastSeq: since}
	for _, c := range newer {
		ch := Change{Seq: c.UpdatedAt.UnixMilli(), ID: c.ID}
		ch.Changes = append(ch.Changes, struct {
			Rev string `json:"rev"`
		}{Rev: c.Rev})
		res.Results = append(res.Results, ch)
		if ch.Seq > res.LastSeq {
			res.LastSeq = ch.Seq
		}
	}
	sort.Slice(res.Results, func(i, j int) bool { return res.Results[i].Seq < res.Results[j].Seq })
	return res, nil
}

// RevsDiff compares claimed revisions against the single stored
// revision per document. With no branching history, "missing" really
// means "stale": any claimed revision not equal to the stored one is
// reported missing, and every revision of an unknown document is
// missing.
func (f *Facade) RevsDiff(claims map[string][]string) (map[string]map[string][]string, error) {
	out := make(map[string]map[string][]string)
	for docID, revs := range claims {
		current, err := f.store.GetCheckIn(docID)
		var missing []string
		switch {
		case errdefs.IsNotFound(err):
			missing = append(missing, revs...)
		case err != nil:
			return nil, err
		default:
			for _, rev := range revs {
				if rev != current.Rev {
					missing = append(missing, rev)
				}
			}
		}
		if len(missing) > 0 {
			out[docID] = map[string][]string{"missing": missing}
		}
	}
	return out, nil
}

// BulkGetDoc is the per-id result of a _bulk_get call.
type BulkGetDoc struct {
	OK    *types.CheckIn  `json:"ok,omitempty"`
	Error *BulkGetMissing `json:"error,omitempty"`
}

// BulkGetMissing describes an id not present in the store.
type BulkGetMissing struct {
	ID     string `json:"id"`
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// BulkGetResultItem groups the docs returned for one requested id.
type BulkGetResultItem struct {
	ID   string       `json:"id"`
	Docs []BulkGetDoc `json:"docs"`
}

// BulkGetResult is the _bulk_get response body.
type BulkGetResult struct {
	Results []BulkGetResultItem `json:"results"`
}

// BulkGet fetches a batch of documents. Missing ids produce a per-id
// error entry rather than failing the call.
func (f *Facade) BulkGet(ids []string) (*BulkGetResult, error) {
	res := &BulkGetResult{Results: make([]BulkGetResultItem, 0, len(ids))}
	for _, id := range ids {
		item := BulkGetResultItem{ID: id}
		doc, err := f.store.GetCheckIn(id)
		switch {
		case errdefs.IsNotFound(err):
			item.Docs = append(item.Docs, BulkGetDoc{Error: &BulkGetMissing{
				ID: id, Error: "not_found", Reason: "missing",
			}})
		case err != nil:
			return nil, err
		default:
			item.Docs = append(item.Docs, BulkGetDoc{OK: doc})
		}
		res.Results = append(res.Results, item)
	}
	return res, nil
}

// CheckpointAck acknowledges a checkpoint write.
type CheckpointAck struct {
	OK  bool   `json:"ok"`
	ID  string `json:"id"`
	Rev string `json:"rev"`
}

// PutCheckpoint stores an opaque client checkpoint. The body is never
// parsed; a full resync is always safe if it is lost.
func (f *Facade) PutCheckpoint(id string, body []byte) (*CheckpointAck, error) {
	cp := &types.Checkpoint{ID: id, Body: body, UpdatedAt: f.now()}
	if err := f.store.PutCheckpoint(cp); err != nil {
		return nil, err
	}
	return &CheckpointAck{OK: true, ID: "_local/" + id, Rev: "0-1"}, nil
}

// GetCheckpoint returns the stored checkpoint body.
func (f *Facade) GetCheckpoint(id string) ([]byte, error) {
	cp, err := f.store.GetCheckpoint(id)
	if err != nil {
		return nil, err
	}
	return cp.Body, nil
}
