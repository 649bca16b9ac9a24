package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/KushagraAgarwal525/racoon/internal/api/ratelimit"
	"github.com/KushagraAgarwal525/racoon/internal/api/respond"
	"github.com/KushagraAgarwal525/racoon/internal/api/validate"
	"github.com/KushagraAgarwal525/racoon/internal/model"
	"github.com/KushagraAgarwal525/racoon/internal/services"
)

const (
	maxUpdateBody  = 1 << 20
	maxSamplesBody = 8 << 20

	msgUpdated = "Productivity data updated successfully"
)

type ProductivityHandler struct {
	updates     *services.ProductivityService
	ingest      *services.IngestService
	history     *services.HistoryService
	leaderboard *services.LeaderboardService
	limiter     *ratelimit.Limiter
}

func NewProductivityHandler(updates *services.ProductivityService, ingest *services.IngestService,
	history *services.HistoryService, leaderboard *services.LeaderboardService, limiter *ratelimit.Limiter) *ProductivityHandler {
	return &ProductivityHandler{updates: updates, ingest: ingest, history: history, leaderboard: leaderboard, limiter: limiter}
}

// updateRequest accepts both the current shape (totalTime) and the legacy one
// (nonProductiveTime), hence the pointers.
type updateRequest struct {
	UserID            string         `json:"userId"`
	TaskID            string         `json:"taskId"`
	TotalTime         *int           `json:"totalTime"`
	ProductiveTime    *int           `json:"productiveTime"`
	NonProductiveTime *int           `json:"nonProductiveTime"`
	Categories        map[string]int `json:"categories"`
	ApplicationName   string         `json:"applicationName"`
	Timestamp         string         `json:"timestamp"`
}

func (in updateRequest) toUpdate() (*model.ProductivityUpdate, error) {
	if err := validate.UserID(in.UserID); err != nil {
		return nil, err
	}
	if err := validate.TaskID(in.TaskID); err != nil {
		return nil, err
	}
	if in.ProductiveTime == nil {
		return nil, fmt.Errorf("productiveTime is required")
	}
	u := &model.ProductivityUpdate{
		UserID:          in.UserID,
		TaskID:          in.TaskID,
		ProductiveTime:  *in.ProductiveTime,
		Categories:      in.Categories,
		ApplicationName: in.ApplicationName,
		Timestamp:       in.Timestamp,
	}
	switch {
	case in.TotalTime != nil:
		u.TotalTime = *in.TotalTime
	case in.NonProductiveTime != nil:
		u.TotalTime = *in.ProductiveTime + *in.NonProductiveTime
	default:
		return nil, fmt.Errorf("totalTime or nonProductiveTime is required")
	}
	return u, nil
}

type updateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Updated bool   `json:"updated"`
}

// Update handles POST /api/productivity/update
func (h *ProductivityHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in updateRequest
	if err := decodeBody(w, r, maxUpdateBody, &in); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	u, err := in.toUpdate()
	if err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if !h.allow(w, u.UserID) {
		return
	}

	res, err := h.updates.ApplyUpdate(r.Context(), u)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, toUpdateResponse(res))
}

type sampleRequest struct {
	AppName         string    `json:"appName"`
	WindowTitle     string    `json:"windowTitle"`
	Timestamp       time.Time `json:"timestamp"`
	DurationSeconds float64   `json:"durationSeconds"`
}

type samplesRequest struct {
	UserID  string          `json:"userId"`
	TaskID  string          `json:"taskId"`
	Samples []sampleRequest `json:"samples"`
}

type samplesResponse struct {
	updateResponse
	Buckets        int            `json:"buckets"`
	TotalTime      int            `json:"totalTime"`
	ProductiveTime int            `json:"productiveTime"`
	Categories     map[string]int `json:"categories"`
}

// Samples handles POST /api/productivity/samples
func (h *ProductivityHandler) Samples(w http.ResponseWriter, r *http.Request) {
	var in samplesRequest
	if err := decodeBody(w, r, maxSamplesBody, &in); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if err := validate.UserID(in.UserID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if err := validate.TaskID(in.TaskID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	req := services.IngestRequest{UserID: in.UserID, TaskID: in.TaskID, Samples: make([]model.ActivitySample, 0, len(in.Samples))}
	for i, s := range in.Samples {
		if s.Timestamp.IsZero() {
			respond.WriteBadRequest(w, "samples["+strconv.Itoa(i)+"].timestamp is required")
			return
		}
		if s.DurationSeconds < 0 {
			respond.WriteBadRequest(w, "samples["+strconv.Itoa(i)+"].durationSeconds must be non-negative")
			return
		}
		req.Samples = append(req.Samples, model.ActivitySample{
			AppName:     s.AppName,
			WindowTitle: s.WindowTitle,
			Timestamp:   s.Timestamp,
			Duration:    time.Duration(s.DurationSeconds * float64(time.Second)),
		})
	}
	if !h.allow(w, in.UserID) {
		return
	}

	out, err := h.ingest.Ingest(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	cats := out.Update.Categories
	if cats == nil {
		cats = map[string]int{}
	}
	respond.WriteJSON(w, http.StatusOK, samplesResponse{
		updateResponse: toUpdateResponse(out.Result),
		Buckets:        out.Buckets,
		TotalTime:      out.Update.TotalTime,
		ProductiveTime: out.Update.ProductiveTime,
		Categories:     cats,
	})
}

// History handles GET /api/productivity/history?userId=&days=
func (h *ProductivityHandler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("userId")
	if err := validate.UserID(userID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	days, err := validate.PositiveInt("days", q.Get("days"), services.DefaultHistoryDays)
	if err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}

	entries, err := h.history.GetHistory(r.Context(), userID, days)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"history": entries,
	})
}

// Today handles GET /api/productivity/today?userId=
func (h *ProductivityHandler) Today(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if err := validate.UserID(userID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	e, err := h.history.Today(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"date":           e.Date,
		"productiveTime": e.ProductiveTime,
		"totalTime":      e.TotalTime,
		"categories":     e.Categories,
		"lastUpdated":    e.LastUpdated,
	})
}

// Report handles GET /api/productivity/report?userId=&top=
func (h *ProductivityHandler) Report(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("userId")
	if err := validate.UserID(userID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	top, err := validate.PositiveInt("top", q.Get("top"), services.DefaultTopApps)
	if err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	rep, err := h.history.Report(r.Context(), userID, top)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"report":  rep,
	})
}

// Leaderboard handles GET /api/productivity/leaderboard?userId=&limit=
func (h *ProductivityHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := validate.PositiveInt("limit", q.Get("limit"), 0)
	if err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	userID := q.Get("userId")
	if userID != "" {
		if err := validate.UserID(userID); err != nil {
			respond.WriteBadRequest(w, err.Error())
			return
		}
	}
	lb, err := h.leaderboard.GetLeaderboard(r.Context(), limit, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"date":        lb.Date,
		"leaderboard": lb.Leaderboard,
		"userRank":    lb.UserRank,
	})
}

func (h *ProductivityHandler) allow(w http.ResponseWriter, userID string) bool {
	if h.limiter.Allow(userID) {
		return true
	}
	respond.WriteTooManyRequests(w, strconv.Itoa(h.limiter.RetryAfter(userID)))
	return false
}

func toUpdateResponse(res model.UpdateResult) updateResponse {
	if res.Accepted {
		return updateResponse{Success: true, Message: msgUpdated, Updated: true}
	}
	return updateResponse{Success: true, Message: res.Reason, Updated: false}
}
