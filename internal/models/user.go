package models

import (
	"time"
)

// User model
type User struct {
	ID            string    `bson:"_id,omitempty" json:"id"`
	Name          string    `bson:"name" json:"name"`
	Email         string    `bson:"email" json:"email"`
	HPassword     string    `bson:"password" json:"-"`
	Phone         string    `bson:"phone" json:"phone"`
	WalletBalance float64   `bson:"wallet_balance" json:"wallet_balance"`
	TotalErrands  int       `bson:"total_errands" json:"total_errands"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
}

// RunnerStats tracks per-runner job counters and lifetime earnings, kept
// in the runners collection keyed by the runner's user id.
type RunnerStats struct {
	RunnerID      string  `bson:"_id" json:"runner_id"`
	TotalJobs     int     `bson:"total_jobs" json:"total_jobs"`
	PendingJobs   int     `bson:"pending_jobs" json:"pending_jobs"`
	CompletedJobs int     `bson:"completed_jobs" json:"completed_jobs"`
	Earnings      float64 `bson:"earnings" json:"earnings"`
}
