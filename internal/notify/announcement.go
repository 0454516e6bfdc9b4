package notify

import "time"

// Announcement is one live notification describing a newly detected event.
// It is immutable after construction; the broker only hands out copies.
type Announcement struct {
	ID                string    `json:"id"`
	ObjectTypes       []string  `json:"objectTypes"`
	ConfidencePercent float64   `json:"confidencePercent"`
	Message           string    `json:"message"`
	Timestamp         time.Time `json:"timestamp"`
	EventReference    string    `json:"eventReference"`
	NotifiedAt        time.Time `json:"notifiedAt"`
}
