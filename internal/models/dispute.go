package models

import "time"

const DisputeOpen = "open"

// Dispute freezes an errand's escrowed funds pending manual resolution.
// Resolution itself happens outside this service.
type Dispute struct {
	ID          string    `bson:"_id,omitempty" json:"id"`
	ErrandID    string    `bson:"errand_id" json:"errand_id"`
	PosterID    string    `bson:"poster_id" json:"poster_id"`
	Reason      string    `bson:"reason" json:"reason"`
	Description string    `bson:"description" json:"description"`
	Status      string    `bson:"status" json:"status"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}
