package content

import "fmt"

// ══════════════════════════════════════════════════════════════════════════════
// WIRE TYPES
// ══════════════════════════════════════════════════════════════════════════════

// APIResponse is the standard response envelope of the content service.
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
	Meta    *Meta  `json:"meta,omitempty"`
}

// Meta contains pagination metadata.
type Meta struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// ItemSetDTO is a question set as delivered by the content service.
type ItemSetDTO struct {
	SubjectID      string    `json:"subject_id"`
	CatalogVersion int       `json:"catalog_version"`
	Items          []ItemDTO `json:"items"`
}

// ItemDTO is a single question with its answer key. The answer key never
// leaves the engine; student-facing item bodies come from a separate
// content endpoint the engine does not consume.
type ItemDTO struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"`
	Categories []string `json:"categories"`

	CorrectChoice     int      `json:"correct_choice,omitempty"`
	CorrectSelections []int    `json:"correct_selections,omitempty"`
	AcceptedAnswers   []string `json:"accepted_answers,omitempty"`
	NumericAnswer     float64  `json:"numeric_answer,omitempty"`

	ExpectedTimeMs int `json:"expected_time_ms,omitempty"`
}

// APIErrorDTO is a structured error payload from the content service.
type APIErrorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *APIErrorDTO) Error() string {
	return fmt.Sprintf("content api error [%s]: %s", e.Code, e.Message)
}
