package models

// Feedback is a single row of the feedback store.
type Feedback struct {
	Timestamp string `json:"timestamp"`
	Email     string `json:"email"`
	Feedback  string `json:"feedback"`
}
