package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/edugami/edugami-engine/internal/application/command"
	"github.com/edugami/edugami-engine/internal/application/query"
	"github.com/edugami/edugami-engine/internal/application/saga"
	"github.com/edugami/edugami-engine/internal/domain/attempt"
	"github.com/edugami/edugami-engine/internal/domain/shared"
	"github.com/edugami/edugami-engine/internal/interface/http/handlers"
	"github.com/edugami/edugami-engine/pkg/logger"
)

// validate is the shared request validator instance.
var validate = validator.New()

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot handles the root endpoint.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSONError(w, http.StatusNotFound, "not_found", "Endpoint not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "edugami-engine",
		"version": "v1",
		"status":  "running",
		"uptime":  s.Uptime().Round(time.Second).String(),
		"endpoints": []string{
			"GET /health",
			"GET /ready",
			"GET /live",
			"POST /api/v1/attempts",
			"POST /api/v1/attempts/{id}/progress",
			"POST /api/v1/attempts/{id}/submit",
			"POST /api/v1/attempts/{id}/abandon",
			"GET /api/v1/students/{id}/skill-tree",
			"GET /api/v1/students/{id}/summary",
			"GET /api/v1/students/{id}/grade-status",
			"POST /api/v1/students/{id}/promotion",
			"POST /api/v1/students/{id}/careers/evaluate",
		},
	})
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"healthy": true,
			"message": "OK",
		})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())

	httpStatus := http.StatusOK
	if !status.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, status)
}

// handleReady handles readiness probe requests.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())

	if !status.Ready {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"ready":   false,
			"message": status.Message,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

// handleLive handles liveness probe requests.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alive":  true,
		"uptime": s.Uptime().Round(time.Second).String(),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTEMPT LIFECYCLE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type startAttemptRequest struct {
	SubjectID string `json:"subject_id" validate:"required"`
	Kind      string `json:"kind" validate:"required,oneof=assessment quest"`
}

type startAttemptResponse struct {
	AttemptID     string    `json:"attempt_id"`
	AttemptNumber int       `json:"attempt_number"`
	SubjectID     string    `json:"subject_id"`
	ItemCount     int       `json:"item_count"`
	StartedAt     time.Time `json:"started_at"`
}

// handleStartAttempt opens a new attempt for the authenticated student.
func (s *Server) handleStartAttempt(w http.ResponseWriter, r *http.Request) {
	if s.deps.StartAttemptHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Attempt handlers not configured")
		return
	}

	identity, ok := handlers.IdentityFrom(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req startAttemptRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	result, err := s.deps.StartAttemptHandler.Handle(r.Context(), command.StartAttemptCommand{
		Identity:      identity,
		SubjectID:     req.SubjectID,
		Kind:          req.Kind,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, startAttemptResponse{
		AttemptID:     result.AttemptID,
		AttemptNumber: result.AttemptNumber,
		SubjectID:     result.SubjectID,
		ItemCount:     result.ItemCount,
		StartedAt:     result.StartedAt,
	})
}

type answerDTO struct {
	ItemID     string  `json:"item_id" validate:"required"`
	Type       string  `json:"type" validate:"required,oneof=single_choice multi_choice free_text numeric"`
	Choice     int     `json:"choice"`
	Selections []int   `json:"selections"`
	Text       string  `json:"text"`
	Numeric    float64 `json:"numeric"`
}

type tickDTO struct {
	ItemID      string `json:"item_id" validate:"required"`
	TimeSpentMs int    `json:"time_spent_ms" validate:"gte=0"`
	HintsUsed   int    `json:"hints_used" validate:"gte=0"`
}

type progressRequest struct {
	Answers []answerDTO `json:"answers" validate:"dive"`
	Ticks   []tickDTO   `json:"ticks" validate:"dive"`
}

// handleRecordProgress autosaves in-flight answers and telemetry.
func (s *Server) handleRecordProgress(w http.ResponseWriter, r *http.Request) {
	if s.deps.RecordProgressHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Attempt handlers not configured")
		return
	}

	identity, ok := handlers.IdentityFrom(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req progressRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	result, err := s.deps.RecordProgressHandler.Handle(r.Context(), command.RecordProgressCommand{
		Identity:  identity,
		AttemptID: r.PathValue("id"),
		Answers:   toProgressAnswers(req.Answers),
		Ticks:     toProgressTicks(req.Ticks),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"persisted": result.Persisted})
}

type telemetrySummaryDTO struct {
	TimeSpentMs int `json:"time_spent_ms" validate:"gte=0"`
	HintsUsed   int `json:"hints_used" validate:"gte=0"`
	Errors      int `json:"errors" validate:"gte=0"`
	Revisions   int `json:"revisions" validate:"gte=0"`
}

type submitRequest struct {
	Answers   []answerDTO          `json:"answers" validate:"min=1,dive"`
	Telemetry *telemetrySummaryDTO `json:"telemetry"`
}

type categoryOutcomeDTO struct {
	Category      string  `json:"category"`
	Observed      float64 `json:"observed"`
	Score         float64 `json:"score"`
	SkillLevel    string  `json:"skill_level"`
	Trend         string  `json:"trend"`
	XPGained      int     `json:"xp_gained"`
	GameLevel     int     `json:"game_level"`
	PrevGameLevel int     `json:"prev_game_level"`
	LevelTitle    string  `json:"level_title"`
	LeveledUp     bool    `json:"leveled_up"`
}

type unlockedCareerDTO struct {
	CareerID     string   `json:"career_id"`
	Title        string   `json:"title"`
	LinkedSkills []string `json:"linked_skills"`
}

type submitAttemptResponse struct {
	AttemptID    string               `json:"attempt_id"`
	Replayed     bool                 `json:"replayed"`
	CorrectCount int                  `json:"correct_count"`
	TotalCount   int                  `json:"total_count"`
	Accuracy     float64              `json:"accuracy"`
	XPAwarded    int                  `json:"xp_awarded"`
	Categories   []categoryOutcomeDTO `json:"categories"`
	NewCareers   []unlockedCareerDTO  `json:"new_careers"`
	SubmittedAt  time.Time            `json:"submitted_at"`
}

// handleSubmitAttempt grades and closes an attempt. Submitting an already
// closed attempt replays the frozen result with the same status code.
func (s *Server) handleSubmitAttempt(w http.ResponseWriter, r *http.Request) {
	if s.deps.SubmitAttemptHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Attempt handlers not configured")
		return
	}

	identity, ok := handlers.IdentityFrom(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req submitRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	var telem *attempt.TelemetrySummary
	if req.Telemetry != nil {
		telem = &attempt.TelemetrySummary{
			TimeSpentMs: req.Telemetry.TimeSpentMs,
			HintsUsed:   req.Telemetry.HintsUsed,
			Errors:      req.Telemetry.Errors,
			Revisions:   req.Telemetry.Revisions,
		}
	}

	result, err := s.deps.SubmitAttemptHandler.Handle(r.Context(), command.SubmitAttemptCommand{
		Identity:      identity,
		AttemptID:     r.PathValue("id"),
		Answers:       toProgressAnswers(req.Answers),
		Telemetry:     telem,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	resp := submitAttemptResponse{
		AttemptID:    result.AttemptID,
		Replayed:     result.Replayed,
		CorrectCount: result.CorrectCount,
		TotalCount:   result.TotalCount,
		Accuracy:     result.Accuracy,
		XPAwarded:    result.XPAwarded,
		Categories:   make([]categoryOutcomeDTO, 0, len(result.Categories)),
		NewCareers:   make([]unlockedCareerDTO, 0, len(result.NewCareers)),
		SubmittedAt:  result.SubmittedAt,
	}
	for _, c := range result.Categories {
		resp.Categories = append(resp.Categories, categoryOutcomeDTO{
			Category:      c.Category,
			Observed:      c.Observed,
			Score:         c.Score,
			SkillLevel:    c.SkillLevel,
			Trend:         c.Trend,
			XPGained:      c.XPGained,
			GameLevel:     c.GameLevel,
			PrevGameLevel: c.PrevGameLevel,
			LevelTitle:    c.LevelTitle,
			LeveledUp:     c.LeveledUp,
		})
	}
	for _, u := range result.NewCareers {
		resp.NewCareers = append(resp.NewCareers, unlockedCareerDTO{
			CareerID:     u.CareerID,
			Title:        u.Title,
			LinkedSkills: u.LinkedSkills,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleAbandonAttempt explicitly closes an attempt without scoring.
func (s *Server) handleAbandonAttempt(w http.ResponseWriter, r *http.Request) {
	if s.deps.AbandonAttemptHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Attempt handlers not configured")
		return
	}

	identity, ok := handlers.IdentityFrom(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	result, err := s.deps.AbandonAttemptHandler.Handle(r.Context(), command.AbandonAttemptCommand{
		Identity:      identity,
		AttemptID:     r.PathValue("id"),
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"attempt_id":   result.AttemptID,
		"abandoned_at": result.AbandonedAt,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT VIEW HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetSkillTree returns the student's skill tree projection.
func (s *Server) handleGetSkillTree(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetSkillTreeHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Query handlers not configured")
		return
	}

	identity, ok := s.resolveStudentIdentity(w, r)
	if !ok {
		return
	}

	view, err := s.deps.GetSkillTreeHandler.Handle(r.Context(), query.GetSkillTreeQuery{Identity: identity})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// handleGetStudentSummary returns the parent/teacher summary projection.
func (s *Server) handleGetStudentSummary(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetStudentSummaryHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Query handlers not configured")
		return
	}

	identity, ok := s.resolveStudentIdentity(w, r)
	if !ok {
		return
	}

	view, err := s.deps.GetStudentSummaryHandler.Handle(r.Context(), query.GetStudentSummaryQuery{Identity: identity})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// handleGetGradeStatus returns the student's grade journey status.
func (s *Server) handleGetGradeStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetGradeStatusHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Query handlers not configured")
		return
	}

	identity, ok := s.resolveStudentIdentity(w, r)
	if !ok {
		return
	}

	result, err := s.deps.GetGradeStatusHandler.Handle(r.Context(), query.GetGradeStatusQuery{Identity: identity})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type enrollStudentRequest struct {
	Grade int `json:"grade" validate:"required,min=1,max=12"`
}

type enrollStudentResponse struct {
	JourneyID    string    `json:"journey_id"`
	Grade        int       `json:"grade"`
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
	SkillsSeeded int       `json:"skills_seeded"`
	EnrolledAt   time.Time `json:"enrolled_at"`
}

// handleEnrollStudent enrolls a student: seeds skill rows and opens the
// first grade journey in the tenant's current academic year. Staff only.
func (s *Server) handleEnrollStudent(w http.ResponseWriter, r *http.Request) {
	if s.deps.EnrollmentFlow == nil || s.deps.TenantRepo == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Enrollment handlers not configured")
		return
	}

	identity, ok := s.resolveStudentIdentity(w, r)
	if !ok {
		return
	}
	if identity.Role != shared.RoleTeacher && identity.Role != shared.RoleAdmin {
		writeJSONError(w, http.StatusForbidden, "forbidden", "Not permitted for this role or tenant")
		return
	}

	var req enrollStudentRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	t, err := s.deps.TenantRepo.GetByID(r.Context(), identity.TenantID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	result, err := s.deps.EnrollmentFlow.Execute(r.Context(), saga.EnrollmentInput{
		TenantID:   identity.TenantID,
		StudentID:  identity.StudentID,
		Grade:      shared.Grade(req.Grade),
		YearConfig: t.YearConfig,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, enrollStudentResponse{
		JourneyID:    result.JourneyID,
		Grade:        result.Grade,
		WindowStart:  result.WindowStart,
		WindowEnd:    result.WindowEnd,
		SkillsSeeded: result.SkillsSeeded,
		EnrolledAt:   result.EnrolledAt,
	})
}

type promoteGradeResponse struct {
	ClosedJourneyID string    `json:"closed_journey_id"`
	NewJourneyID    string    `json:"new_journey_id"`
	FromGrade       int       `json:"from_grade"`
	ToGrade         int       `json:"to_grade"`
	CompletionType  string    `json:"completion_type"`
	BadgeAwarded    bool      `json:"badge_awarded"`
	PromotedAt      time.Time `json:"promoted_at"`
}

// handlePromoteGrade closes the current grade journey and opens the next one.
// The academic year window for the new journey comes from the tenant's
// configuration.
func (s *Server) handlePromoteGrade(w http.ResponseWriter, r *http.Request) {
	if s.deps.PromoteGradeHandler == nil || s.deps.TenantRepo == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Promotion handlers not configured")
		return
	}

	identity, ok := s.resolveStudentIdentity(w, r)
	if !ok {
		return
	}

	t, err := s.deps.TenantRepo.GetByID(r.Context(), identity.TenantID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	result, err := s.deps.PromoteGradeHandler.Handle(r.Context(), command.PromoteGradeCommand{
		Identity:      identity,
		YearConfig:    t.YearConfig,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, promoteGradeResponse{
		ClosedJourneyID: result.ClosedJourneyID,
		NewJourneyID:    result.NewJourneyID,
		FromGrade:       result.FromGrade,
		ToGrade:         result.ToGrade,
		CompletionType:  result.CompletionType,
		BadgeAwarded:    result.BadgeAwarded,
		PromotedAt:      result.PromotedAt,
	})
}

type evaluateCareersResponse struct {
	NewUnlocks     []unlockedCareerDTO `json:"new_unlocks"`
	TotalUnlocked  int                 `json:"total_unlocked"`
	CatalogVersion int                 `json:"catalog_version"`
}

// handleEvaluateCareers runs the career unlock evaluation for a student.
func (s *Server) handleEvaluateCareers(w http.ResponseWriter, r *http.Request) {
	if s.deps.EvaluateCareersHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Career handlers not configured")
		return
	}

	identity, ok := s.resolveStudentIdentity(w, r)
	if !ok {
		return
	}

	result, err := s.deps.EvaluateCareersHandler.Handle(r.Context(), command.EvaluateCareersCommand{
		TenantID:      identity.TenantID,
		StudentID:     identity.StudentID,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	resp := evaluateCareersResponse{
		NewUnlocks:     make([]unlockedCareerDTO, 0, len(result.NewUnlocks)),
		TotalUnlocked:  result.TotalUnlocked,
		CatalogVersion: result.CatalogVersion,
	}
	for _, u := range result.NewUnlocks {
		resp.NewUnlocks = append(resp.NewUnlocks, unlockedCareerDTO{
			CareerID:     u.CareerID,
			Title:        u.Title,
			LinkedSkills: u.LinkedSkills,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// ══════════════════════════════════════════════════════════════════════════════
// WEBHOOK HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleCatalogWebhook handles catalog upgrade notifications from the
// career catalog service. The body is HMAC-signed with the shared secret.
func (s *Server) handleCatalogWebhook(w http.ResponseWriter, r *http.Request) {
	if s.deps.CatalogWebhook == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Catalog webhook handler not configured")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", "Failed to read request body")
		return
	}

	if s.config.WebhookSecret != "" {
		signature := r.Header.Get("X-Signature")
		if !handlers.VerifyWebhookSignature(s.config.WebhookSecret, body, signature) {
			s.logger.Warn("catalog webhook signature mismatch",
				logger.String("ip", getClientIP(r)),
				logger.String("request_id", getRequestID(r.Context())),
			)
			writeJSONError(w, http.StatusUnauthorized, "invalid_signature", "Webhook signature verification failed")
			return
		}
	}

	if err := s.deps.CatalogWebhook.HandleCatalogUpgrade(r.Context(), body); err != nil {
		s.logger.Error("catalog webhook processing failed",
			logger.Err(err),
			logger.String("request_id", getRequestID(r.Context())),
		)
		writeJSONError(w, http.StatusBadRequest, "webhook_error", "Failed to process catalog notification")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// resolveStudentIdentity pulls the authenticated identity and applies the
// {id} path parameter. Students may only act as themselves; parents,
// teachers, admins and service keys act on the student named in the path.
func (s *Server) resolveStudentIdentity(w http.ResponseWriter, r *http.Request) (shared.Identity, bool) {
	identity, ok := handlers.IdentityFrom(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return shared.Identity{}, false
	}

	pathStudent := shared.StudentID(r.PathValue("id"))
	if !pathStudent.IsValid() {
		writeJSONError(w, http.StatusBadRequest, "validation_failed", "Invalid student ID in path")
		return shared.Identity{}, false
	}

	if identity.Role == shared.RoleStudent {
		if identity.StudentID != pathStudent {
			writeJSONError(w, http.StatusForbidden, "forbidden", "Students can only access their own data")
			return shared.Identity{}, false
		}
		return identity, true
	}

	identity.StudentID = pathStudent
	return identity, true
}

// decodeAndValidate decodes the JSON body into dst and runs struct
// validation, writing the error response itself on failure.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_json", "Request body is not valid JSON")
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			writeJSONErrorWithDetails(w, http.StatusBadRequest, "validation_failed",
				"Request validation failed", ve[0].Error())
			return false
		}
		writeJSONError(w, http.StatusBadRequest, "validation_failed", "Request validation failed")
		return false
	}

	return true
}

// toProgressAnswers maps request answer DTOs to command answers.
func toProgressAnswers(dtos []answerDTO) []command.ProgressAnswer {
	answers := make([]command.ProgressAnswer, 0, len(dtos))
	for _, a := range dtos {
		answers = append(answers, command.ProgressAnswer{
			ItemID:     a.ItemID,
			Type:       a.Type,
			Choice:     a.Choice,
			Selections: a.Selections,
			Text:       a.Text,
			Numeric:    a.Numeric,
		})
	}
	return answers
}

// toProgressTicks maps request tick DTOs to command ticks.
func toProgressTicks(dtos []tickDTO) []command.ProgressTick {
	ticks := make([]command.ProgressTick, 0, len(dtos))
	for _, t := range dtos {
		ticks = append(ticks, command.ProgressTick{
			ItemID:      t.ItemID,
			TimeSpentMs: t.TimeSpentMs,
			HintsUsed:   t.HintsUsed,
		})
	}
	return ticks
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeDomainError maps a domain error to the corresponding HTTP response.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, shared.ErrUnauthorized):
		writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")

	case errors.Is(err, shared.ErrForbidden),
		errors.Is(err, shared.ErrRoleNotPermitted),
		errors.Is(err, shared.ErrWrongTenant):
		writeJSONError(w, http.StatusForbidden, "forbidden", "Not permitted for this role or tenant")

	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", "Resource not found")

	case shared.IsConflict(err):
		writeJSONErrorWithDetails(w, http.StatusConflict, "conflict", "Request conflicts with current state", err.Error())

	case shared.IsInvalidState(err):
		writeJSONErrorWithDetails(w, http.StatusConflict, "invalid_state", "Operation not allowed in current state", err.Error())

	case shared.IsValidation(err):
		writeJSONErrorWithDetails(w, http.StatusBadRequest, "validation_failed", "Request validation failed", err.Error())

	case shared.IsTransient(err):
		s.logger.Error("transient failure", logger.Err(err), logger.String("path", r.URL.Path))
		writeJSONError(w, http.StatusServiceUnavailable, "service_unavailable", "Service temporarily unavailable, please retry")

	default:
		s.logger.Error("request failed",
			logger.Err(err),
			logger.String("path", r.URL.Path),
			logger.String("request_id", getRequestID(r.Context())),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
