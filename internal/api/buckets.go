package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pulsevault/pulsevault/internal/auth"
	"github.com/pulsevault/pulsevault/internal/datastore"
	"github.com/pulsevault/pulsevault/pkg/models"
)

type bucketHandler struct {
	ds *datastore.Datastore
}

func (h *bucketHandler) list(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	buckets, err := h.ds.GetBuckets(id.UserID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, buckets)
}

func (h *bucketHandler) create(w http.ResponseWriter, r *http.Request) {
	var bucket models.Bucket
	if err := json.NewDecoder(r.Body).Decode(&bucket); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), requestIDFrom(r))
		return
	}
	if bucket.Type == "" {
		writeError(w, http.StatusBadRequest, "type is required", requestIDFrom(r))
		return
	}
	id, _ := auth.IdentityFromContext(r.Context())
	bucket.UserID = id.UserID

	bucketID, err := h.ds.CreateBucket(bucket)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": bucketID})
}

func (h *bucketHandler) get(w http.ResponseWriter, r *http.Request) {
	bucketID, ok := pathID(w, r, "bucketID")
	if !ok {
		return
	}
	bucket, err := h.ds.GetBucket(bucketID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bucket)
}

func (h *bucketHandler) delete(w http.ResponseWriter, r *http.Request) {
	bucketID, ok := pathID(w, r, "bucketID")
	if !ok {
		return
	}
	if err := h.ds.DeleteBucket(bucketID); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *bucketHandler) heartbeat(w http.ResponseWriter, r *http.Request) {
	bucketID, ok := pathID(w, r, "bucketID")
	if !ok {
		return
	}
	pulsetime, err := strconv.ParseFloat(r.URL.Query().Get("pulsetime"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "pulsetime query parameter is required", requestIDFrom(r))
		return
	}
	var heartbeat models.Event
	if err := json.NewDecoder(r.Body).Decode(&heartbeat); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), requestIDFrom(r))
		return
	}
	if heartbeat.Timestamp.IsZero() {
		heartbeat.Timestamp = time.Now()
	}

	stored, err := h.ds.Heartbeat(bucketID, heartbeat, pulsetime)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (h *bucketHandler) insertEvents(w http.ResponseWriter, r *http.Request) {
	bucketID, ok := pathID(w, r, "bucketID")
	if !ok {
		return
	}
	var events []models.Event
	if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), requestIDFrom(r))
		return
	}
	inserted, err := h.ds.InsertEvents(bucketID, events)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inserted)
}

func (h *bucketHandler) getEvents(w http.ResponseWriter, r *http.Request) {
	bucketID, ok := pathID(w, r, "bucketID")
	if !ok {
		return
	}
	start, end, limit, ok := eventQuery(w, r)
	if !ok {
		return
	}
	events, err := h.ds.GetEvents(bucketID, start, end, limit)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *bucketHandler) getTeamEvents(w http.ResponseWriter, r *http.Request) {
	bucketID, ok := pathID(w, r, "bucketID")
	if !ok {
		return
	}
	teamID, ok := pathID(w, r, "teamID")
	if !ok {
		return
	}
	start, end, limit, ok := eventQuery(w, r)
	if !ok {
		return
	}
	events, err := h.ds.GetTeamEvents(bucketID, start, end, limit, teamID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *bucketHandler) countEvents(w http.ResponseWriter, r *http.Request) {
	bucketID, ok := pathID(w, r, "bucketID")
	if !ok {
		return
	}
	start, end, _, ok := eventQuery(w, r)
	if !ok {
		return
	}
	count, err := h.ds.GetEventCount(bucketID, start, end)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

func (h *bucketHandler) getEvent(w http.ResponseWriter, r *http.Request) {
	bucketID, ok := pathID(w, r, "bucketID")
	if !ok {
		return
	}
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	event, err := h.ds.GetEvent(bucketID, eventID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *bucketHandler) deleteEvent(w http.ResponseWriter, r *http.Request) {
	bucketID, ok := pathID(w, r, "bucketID")
	if !ok {
		return
	}
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	if err := h.ds.DeleteEventsByID(bucketID, []int64{eventID}); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// pathID parses an integer path parameter, answering 400 itself on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", name), requestIDFrom(r))
		return 0, false
	}
	return id, true
}

// eventQuery parses the optional start, end and limit query parameters.
func eventQuery(w http.ResponseWriter, r *http.Request) (start, end *time.Time, limit int, ok bool) {
	q := r.URL.Query()
	if v := q.Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start timestamp", requestIDFrom(r))
			return nil, nil, 0, false
		}
		start = &t
	}
	if v := q.Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end timestamp", requestIDFrom(r))
			return nil, nil, 0, false
		}
		end = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit", requestIDFrom(r))
			return nil, nil, 0, false
		}
		limit = n
	}
	return start, end, limit, true
}
