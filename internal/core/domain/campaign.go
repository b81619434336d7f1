package domain

import (
	"time"

	"github.com/google/uuid"
)

// CampaignStatusScheduled is the only status a campaign carries today.
// Campaigns are immutable after creation; per-recipient progress lives on
// the delivery jobs, not here.
const CampaignStatusScheduled = "scheduled"

// Campaign represents a single scheduling request: one sender, one
// subject/body payload, many recipients sent out with a fixed spacing
// starting at StartTime. HourlyLimit is the caller's hint recorded for
// reporting; effective quotas come from the rate limiter configuration.
type Campaign struct {
	ID           uuid.UUID
	SenderID     string
	Subject      string
	Body         string
	StartTime    time.Time
	DelayBetween time.Duration
	HourlyLimit  int
	Status       string
	CreatedAt    time.Time
}
