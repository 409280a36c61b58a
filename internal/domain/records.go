package domain

import "time"

// SessionTokenKey is the primary key of the single stored auth token.
const SessionTokenKey = "session"

// AuthToken is the persisted bearer token the Gateway layer attaches to its
// requests. Only one row exists at a time (Key == SessionTokenKey).
type AuthToken struct {
	Key       string    `gorm:"type:varchar(32);primaryKey"`
	UserID    string    `gorm:"type:varchar(64);not null"`
	Username  string    `gorm:"type:varchar(255);not null"`
	Token     string    `gorm:"type:text;not null"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName implements the GORM tabler interface.
func (AuthToken) TableName() string { return "auth_tokens" }

// Idempotency records a message already sent through the local API for a
// given (user, room, key), so that a retried request is answered from the log
// instead of spending another credit.
type Idempotency struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID    string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_room_key,priority:1"`
	RoomID    string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_room_key,priority:2"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_room_key,priority:3"`
	MessageID string    `gorm:"type:TEXT NOT NULL"`
	Status    int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
