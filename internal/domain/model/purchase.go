package model

import "time"

// Purchase links a user to a course they paid for. A UNIQUE(user_id,course_id)
// constraint makes repeated inserts for the same pair a no-op at the
// application level.
type Purchase struct {
	ID            string // UUID
	UserID        string
	CourseID      string
	TransactionID string // UUID -> Transaction
	CreatedAt     time.Time
}

// Course is a read-only lookup used by session creation and the status
// endpoint. Course CRUD lives elsewhere.
type Course struct {
	ID          string
	Name        string
	Description string
	Price       float64
}
