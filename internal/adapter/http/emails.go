package httpadapter

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"dripmail/internal/core/port"
)

type jobItemResponse struct {
	ID           string  `json:"id"`
	Recipient    string  `json:"recipient"`
	Subject      string  `json:"subject"`
	ScheduledAt  string  `json:"scheduled_at"`
	Status       string  `json:"status"`
	SentAt       *string `json:"sent_at,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
}

type jobListResponse struct {
	Items  []jobItemResponse `json:"items"`
	Total  int64             `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

// handleScheduledEmails lists jobs still awaiting dispatch (pending or
// delayed), ordered by due time. Optional query parameters: sender_id,
// limit (1..100, default 50) and offset.
func (h *Handler) handleScheduledEmails(w http.ResponseWriter, r *http.Request) {
	h.listJobs(w, r, port.JobClassScheduled)
}

// handleSentEmails lists finished jobs (sent or failed), most recently
// updated first. Same query parameters as the scheduled listing.
func (h *Handler) handleSentEmails(w http.ResponseWriter, r *http.Request) {
	h.listJobs(w, r, port.JobClassFinished)
}

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request, class port.JobClass) {
	filter := port.JobFilter{
		Class:    class,
		SenderID: r.URL.Query().Get("sender_id"),
		Limit:    50,
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 100 {
			http.Error(w, "limit must be between 1 and 100", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			http.Error(w, "offset must not be negative", http.StatusBadRequest)
			return
		}
		filter.Offset = offset
	}

	page, err := h.svc.ListJobs(r.Context(), filter)
	if err != nil {
		h.logger.Error("list jobs error", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := jobListResponse{
		Items:  make([]jobItemResponse, 0, len(page.Jobs)),
		Total:  page.Total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
	for i := range page.Jobs {
		j := &page.Jobs[i]
		item := jobItemResponse{
			ID:           j.ID.String(),
			Recipient:    j.Recipient,
			Subject:      j.Subject,
			ScheduledAt:  j.ScheduledAt.UTC().Format(time.RFC3339),
			Status:       j.Status,
			ErrorMessage: j.ErrorMessage,
		}
		if j.SentAt != nil {
			sentAt := j.SentAt.UTC().Format(time.RFC3339)
			item.SentAt = &sentAt
		}
		resp.Items = append(resp.Items, item)
	}
	h.writeJSON(w, http.StatusOK, resp)
}
