package models

import "time"

// Session records one login event. The token is an opaque server-generated
// string; Valid flips to false on logout and is never flipped back.
type Session struct {
	ID        int64
	Token     string
	UserID    int64
	Valid     bool
	IP        string
	UserAgent string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionWithUser is the Session row joined with its owner, as returned by
// the session store lookup used during refresh.
type SessionWithUser struct {
	Session
	UserName  string
	UserEmail string
	UserRole  string
}
