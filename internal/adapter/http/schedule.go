package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"dripmail/internal/core/port"
)

// scheduleRequest is the JSON body of POST /api/v1/schedule.
type scheduleRequest struct {
	SenderID       string   `json:"sender_id"`
	Subject        string   `json:"subject"`
	Body           string   `json:"body"`
	Recipients     []string `json:"recipients"`
	StartTime      string   `json:"start_time"`
	DelayBetweenMs int64    `json:"delay_between_ms"`
	HourlyLimit    int      `json:"hourly_limit"`
}

type jobSummaryResponse struct {
	ID          string `json:"id"`
	Recipient   string `json:"recipient"`
	ScheduledAt string `json:"scheduled_at"`
}

type scheduleResponse struct {
	CampaignID     string               `json:"campaign_id"`
	TotalScheduled int                  `json:"total_scheduled"`
	StartTime      string               `json:"start_time"`
	Jobs           []jobSummaryResponse `json:"jobs"`
}

// handleSchedule validates the scheduling request and fans it out into
// delivery jobs. Validation rejects the request before any persistence,
// so a 400 response leaves no partial state. On success it responds 201
// with the campaign id and a digest of the first 10 created jobs.
func (h *Handler) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	if msg := validateSchedule(&req); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "start_time must be an RFC3339 timestamp", http.StatusBadRequest)
		return
	}

	result, err := h.svc.Schedule(r.Context(), port.ScheduleRequest{
		SenderID:     req.SenderID,
		Subject:      req.Subject,
		Body:         req.Body,
		Recipients:   req.Recipients,
		StartTime:    start,
		DelayBetween: time.Duration(req.DelayBetweenMs) * time.Millisecond,
		HourlyLimit:  req.HourlyLimit,
	})
	switch {
	case errors.Is(err, port.ErrStartNotFuture),
		errors.Is(err, port.ErrNoRecipients),
		errors.Is(err, port.ErrNegativeDelay):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		h.logger.Error("schedule error", slog.Any("error", err))
		http.Error(w, "failed to schedule emails", http.StatusInternalServerError)
		return
	}

	jobs := result.Jobs
	if len(jobs) > 10 {
		jobs = jobs[:10]
	}
	resp := scheduleResponse{
		CampaignID:     result.CampaignID.String(),
		TotalScheduled: len(result.Jobs),
		StartTime:      result.StartTime.UTC().Format(time.RFC3339),
		Jobs:           make([]jobSummaryResponse, 0, len(jobs)),
	}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, jobSummaryResponse{
			ID:          j.ID.String(),
			Recipient:   j.Recipient,
			ScheduledAt: j.ScheduledAt.UTC().Format(time.RFC3339),
		})
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

// validateSchedule checks the request shape and returns a message for the
// first violation, or "" when the request is acceptable.
func validateSchedule(req *scheduleRequest) string {
	if strings.TrimSpace(req.SenderID) == "" {
		return "sender_id is required"
	}
	if strings.TrimSpace(req.Subject) == "" {
		return "subject is required"
	}
	if strings.TrimSpace(req.Body) == "" {
		return "body is required"
	}
	if len(req.Recipients) == 0 {
		return "at least one recipient is required"
	}
	seen := make(map[string]struct{}, len(req.Recipients))
	for _, rcpt := range req.Recipients {
		if _, err := mail.ParseAddress(rcpt); err != nil {
			return "invalid recipient address: " + rcpt
		}
		key := strings.ToLower(rcpt)
		if _, ok := seen[key]; ok {
			return "duplicate recipient address: " + rcpt
		}
		seen[key] = struct{}{}
	}
	if req.DelayBetweenMs < 0 {
		return "delay_between_ms must not be negative"
	}
	if req.HourlyLimit < 1 {
		return "hourly_limit must be at least 1"
	}
	return ""
}
