package model

import "time"

// CompanyProfile is one ingested CSV row.
//
// Rows are written once by the ingestion pipeline and never updated. JobID
// records which upload produced the row, so concurrent uploads stay
// distinguishable after the fact.
type CompanyProfile struct {
	ID           string    `json:"id"`
	JobID        string    `json:"job_id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email"`
	MobileNumber string    `json:"mobile_number"`
	City         string    `json:"city"`
	State        string    `json:"state"`
	Country      string    `json:"country"`
	Industry     string    `json:"industry"`
	YearFounded  int       `json:"year_founded"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
