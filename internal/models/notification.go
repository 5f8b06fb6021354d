package models

import "time"

// Notification audiences.
const (
	AudienceAdmin = "admin"
	AudienceUser  = "user"
)

// Notification is an in-app notification document. Admin notifications
// carry no user id and are picked up by the back office.
type Notification struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	Audience  string    `bson:"audience" json:"audience"`
	UserID    string    `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Type      string    `bson:"type" json:"type"`
	Message   string    `bson:"message" json:"message"`
	ErrandID  string    `bson:"errand_id,omitempty" json:"errand_id,omitempty"`
	Read      bool      `bson:"read" json:"read"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
