package entity

import "time"

// Document is a file attached by an employee to a claim
type Document struct {
	ID       string `json:"id"`
	ClaimID  string `json:"claim_id"`
	FileName string `json:"file_name"`
	FilePath string `json:"file_path"`
	MimeType string `json:"mime_type"`
}

// EmployeeContext is what the integration collaborator knows about an employee
type EmployeeContext struct {
	EmployeeID  string     `json:"employee_id"`
	TenantID    string     `json:"tenant_id"`
	Email       string     `json:"email"`
	Designation string     `json:"designation"`
	JoinDate    time.Time  `json:"join_date"`
	ProjectCode string     `json:"project_code,omitempty"`
	Documents   []Document `json:"documents"`
}

// DocumentCount counts the documents attached to the given claim
func (e *EmployeeContext) DocumentCount(claimID string) int {
	n := 0
	for _, d := range e.Documents {
		if d.ClaimID == claimID {
			n++
		}
	}
	return n
}

// TenureMonths returns whole calendar months between the join date and now.
// A month only counts once its day-of-month has been reached.
func (e *EmployeeContext) TenureMonths(now time.Time) int {
	if e.JoinDate.IsZero() || now.Before(e.JoinDate) {
		return 0
	}
	months := (now.Year()-e.JoinDate.Year())*12 + int(now.Month()-e.JoinDate.Month())
	if now.Day() < e.JoinDate.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// IntegrationData is stored under the integration_data payload key
type IntegrationData struct {
	Available     bool      `json:"available"`
	Email         string    `json:"email,omitempty"`
	Designation   string    `json:"designation,omitempty"`
	ProjectCode   string    `json:"project_code,omitempty"`
	JoinDate      time.Time `json:"join_date,omitempty"`
	DocumentCount int       `json:"document_count"`
	Error         string    `json:"error,omitempty"`
	FetchedAt     time.Time `json:"fetched_at"`
}
