package command

import (
	"context"
	"fmt"
	"time"

	"github.com/edugami/edugami-engine/internal/domain/attempt"
	"github.com/edugami/edugami-engine/internal/domain/progression"
	"github.com/edugami/edugami-engine/internal/domain/scoring"
	"github.com/edugami/edugami-engine/internal/domain/shared"
	"github.com/edugami/edugami-engine/internal/domain/skill"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT ATTEMPT COMMAND
// Финальная сдача попытки: слияние автосохранённого прогресса, валидация
// пакета ответов, оценивание, обновление навыков, начисление XP и проверка
// карьер - всё в одной транзакции. Идемпотентна: повторная сдача закрытой
// попытки возвращает замороженный результат без пересчёта и без повторного
// начисления XP.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitAttemptCommand contains the final answer batch.
type SubmitAttemptCommand struct {
	Identity  shared.Identity
	AttemptID string
	Answers   []ProgressAnswer

	// Telemetry - итоговая телеметрия от клиента. Имеет приоритет над
	// автосейвом: автосейв best-effort и может быть неполным или пустым.
	Telemetry *attempt.TelemetrySummary

	// Timestamp is the submission time (defaults to now if zero).
	Timestamp time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c SubmitAttemptCommand) Validate() error {
	if err := c.Identity.Validate(); err != nil {
		return err
	}
	if c.Identity.Role != shared.RoleStudent {
		return shared.ErrRoleNotPermitted
	}
	if c.AttemptID == "" {
		return shared.ErrAttemptNotFound
	}
	for _, a := range c.Answers {
		if a.ItemID == "" || !attempt.ItemType(a.Type).IsValid() {
			return shared.ErrAnswerType
		}
	}
	if c.Telemetry != nil && !c.Telemetry.IsValid() {
		return shared.ErrTelemetryInvalid
	}
	return nil
}

// CategoryOutcome - итог по одной категории навыка после сдачи.
type CategoryOutcome struct {
	Category      string
	Observed      float64
	Score         float64
	SkillLevel    string
	Trend         string
	XPGained      int
	GameLevel     int
	PrevGameLevel int
	LevelTitle    string
	LeveledUp     bool
}

// SubmitAttemptResult contains the submission outcome.
// For a repeated submit of a closed attempt, Replayed is true and the
// frozen result is returned unchanged.
type SubmitAttemptResult struct {
	AttemptID    string
	Replayed     bool
	CorrectCount int
	TotalCount   int
	Accuracy     float64
	XPAwarded    int
	Categories   []CategoryOutcome
	NewCareers   []UnlockedCareer
	SubmittedAt  time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SubmitAttemptHandler handles the SubmitAttemptCommand.
type SubmitAttemptHandler struct {
	attemptRepo    attempt.Repository
	autosave       attempt.AutosaveStore
	skillRepo      skill.Repository
	careers        *EvaluateCareersHandler
	tx             shared.TransactionManager
	eventPublisher shared.EventPublisher

	levelTable progression.LevelTable
}

// NewSubmitAttemptHandler creates a new SubmitAttemptHandler.
func NewSubmitAttemptHandler(
	attemptRepo attempt.Repository,
	autosave attempt.AutosaveStore,
	skillRepo skill.Repository,
	careers *EvaluateCareersHandler,
	tx shared.TransactionManager,
	eventPublisher shared.EventPublisher,
	levelTable progression.LevelTable,
) *SubmitAttemptHandler {
	if !levelTable.IsValid() {
		levelTable = progression.DefaultLevelTable()
	}
	return &SubmitAttemptHandler{
		attemptRepo:    attemptRepo,
		autosave:       autosave,
		skillRepo:      skillRepo,
		careers:        careers,
		tx:             tx,
		eventPublisher: eventPublisher,
		levelTable:     levelTable,
	}
}

// Handle executes the submit attempt command.
func (h *SubmitAttemptHandler) Handle(ctx context.Context, cmd SubmitAttemptCommand) (*SubmitAttemptResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("submit_attempt: validation failed: %w", err)
	}

	now := cmd.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tenantID := cmd.Identity.TenantID

	att, err := h.attemptRepo.GetByID(ctx, tenantID, attempt.AttemptID(cmd.AttemptID))
	if err != nil {
		return nil, fmt.Errorf("submit_attempt: failed to load attempt: %w", err)
	}
	if att.StudentID != cmd.Identity.StudentID {
		return nil, shared.ErrWrongTenant
	}

	// Закрытая попытка: COMPLETED отвечает замороженным результатом,
	// ABANDONED - ошибкой состояния.
	if !att.IsOpen() {
		return h.replay(att)
	}

	// Слияние best-effort прогресса. Недоступность автосейва не блокирует
	// сдачу: финальный пакет ответов самодостаточен.
	if saved, err := h.autosave.LoadProgress(ctx, tenantID, att.ID); err == nil && saved != nil {
		att.Progress.Merge(answersList(saved.Answers), saved.Telemetry, saved.UpdatedAt)
	}

	answers := toDomainAnswers(cmd.Answers)
	// Ошибка валидации не меняет состояние - попытка остаётся открытой.
	if err := att.ValidateFinalAnswers(answers); err != nil {
		return nil, err
	}

	// Телеметрия клиента имеет приоритет; автосейв - лишь запасной
	// источник, когда клиент сводку не прислал.
	telem := att.Progress.Summary()
	if cmd.Telemetry != nil {
		telem = *cmd.Telemetry
	}

	result := scoring.Score(att.ItemSet, answers, telem, now)
	expected := 0
	for _, item := range att.ItemSet.Items {
		expected += item.ExpectedTimeMs
	}
	result.XPAwarded = progression.CalculateXP(progression.XPInput{
		CorrectCount:   result.CorrectCount,
		TotalCount:     result.TotalCount,
		Accuracy:       result.Accuracy,
		HintsUsed:      result.HintsUsed,
		TimeSpentMs:    result.TimeSpentMs,
		ExpectedTimeMs: expected,
	})

	if err := att.Complete(result, now); err != nil {
		return nil, err
	}

	var out *SubmitAttemptResult
	err = h.tx.WithinTx(ctx, func(ctx context.Context) error {
		completed, err := h.attemptRepo.CompleteIfInProgress(ctx, att)
		if err != nil {
			return fmt.Errorf("failed to complete attempt: %w", err)
		}
		if !completed {
			// Параллельная сдача успела первой - отвечаем её результатом.
			return nil
		}

		outcomes, err := h.applySkills(ctx, att, result, now)
		if err != nil {
			return err
		}

		careersRes, err := h.careers.Handle(ctx, EvaluateCareersCommand{
			TenantID:      tenantID,
			StudentID:     att.StudentID,
			Timestamp:     now,
			CorrelationID: cmd.CorrelationID,
		})
		if err != nil {
			return fmt.Errorf("career evaluation failed: %w", err)
		}

		out = &SubmitAttemptResult{
			AttemptID:    att.ID.String(),
			CorrectCount: result.CorrectCount,
			TotalCount:   result.TotalCount,
			Accuracy:     result.Accuracy,
			XPAwarded:    result.XPAwarded,
			Categories:   outcomes,
			NewCareers:   careersRes.NewUnlocks,
			SubmittedAt:  now,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("submit_attempt: %w", err)
	}

	if out == nil {
		// Проигрыш гонки: перечитываем и отдаём сохранённый результат.
		stored, err := h.attemptRepo.GetByID(ctx, tenantID, att.ID)
		if err != nil {
			return nil, fmt.Errorf("submit_attempt: failed to re-read attempt: %w", err)
		}
		return h.replay(stored)
	}

	_ = h.autosave.Discard(ctx, tenantID, att.ID)

	h.publishEvents(att, out, cmd.CorrelationID)

	return out, nil
}

// replay возвращает замороженный результат закрытой попытки. Итоги по
// категориям восстанавливаются из сохранённых нормализованных баллов,
// чтобы повторная сдача видела тот же результат, что и первая.
func (h *SubmitAttemptHandler) replay(att *attempt.Attempt) (*SubmitAttemptResult, error) {
	if att.Status == attempt.StatusAbandoned {
		return nil, shared.ErrAttemptAlreadyClosed
	}
	if att.Result == nil {
		return nil, shared.ErrAttemptResultNotReady
	}
	r := att.Result

	categories := make([]shared.SkillCategory, 0, len(r.NormalizedScores))
	for _, cat := range shared.AllSkillCategories() {
		if _, ok := r.NormalizedScores[cat]; ok {
			categories = append(categories, cat)
		}
	}
	shares := progression.SplitXPByCategory(r.XPAwarded, len(categories))

	outcomes := make([]CategoryOutcome, 0, len(categories))
	for i, cat := range categories {
		outcomes = append(outcomes, CategoryOutcome{
			Category: cat.String(),
			Observed: r.NormalizedScores[cat],
			XPGained: shares[i],
		})
	}

	out := &SubmitAttemptResult{
		AttemptID:    att.ID.String(),
		Replayed:     true,
		CorrectCount: r.CorrectCount,
		TotalCount:   r.TotalCount,
		Accuracy:     r.Accuracy,
		XPAwarded:    r.XPAwarded,
		Categories:   outcomes,
		SubmittedAt:  r.ComputedAt,
	}
	return out, nil
}

// applySkills вливает наблюдения в агрегаты навыков и делит XP по категориям.
func (h *SubmitAttemptHandler) applySkills(ctx context.Context, att *attempt.Attempt, result attempt.ScoringResult, now time.Time) ([]CategoryOutcome, error) {
	categories := make([]shared.SkillCategory, 0, len(result.NormalizedScores))
	for _, cat := range shared.AllSkillCategories() {
		if _, ok := result.NormalizedScores[cat]; ok {
			categories = append(categories, cat)
		}
	}

	shares := progression.SplitXPByCategory(result.XPAwarded, len(categories))

	outcomes := make([]CategoryOutcome, 0, len(categories))
	updated := make([]*skill.SkillScore, 0, len(categories))
	for i, cat := range categories {
		s, err := h.skillRepo.Get(ctx, att.TenantID, att.StudentID, cat)
		if err != nil {
			if !shared.IsNotFound(err) {
				return nil, fmt.Errorf("failed to load skill %s: %w", cat, err)
			}
			s, err = skill.NewSkillScore(att.TenantID, att.StudentID, cat, now)
			if err != nil {
				return nil, err
			}
		}

		oldXP := s.XP
		observed := result.NormalizedScores[cat]
		if err := s.ApplyObservation(observed, att.ID.String(), shares[i], now); err != nil {
			return nil, fmt.Errorf("failed to apply observation for %s: %w", cat, err)
		}

		oldLevel, newLevel, leveledUp := h.levelTable.DetectLevelUp(oldXP, s.XP)

		outcomes = append(outcomes, CategoryOutcome{
			Category:      cat.String(),
			Observed:      observed,
			Score:         s.Score,
			SkillLevel:    string(s.Level),
			Trend:         string(s.Trend),
			XPGained:      shares[i],
			GameLevel:     int(newLevel),
			PrevGameLevel: int(oldLevel),
			LevelTitle:    h.levelTable.TitleFor(newLevel),
			LeveledUp:     leveledUp,
		})
		updated = append(updated, s)
	}

	if err := h.skillRepo.SaveAll(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to save skills: %w", err)
	}
	return outcomes, nil
}

// publishEvents публикует события завершённой сдачи (fire-and-forget).
func (h *SubmitAttemptHandler) publishEvents(att *attempt.Attempt, out *SubmitAttemptResult, correlationID string) {
	scores := make(map[string]float64, len(out.Categories))
	totalXP := 0
	for _, c := range out.Categories {
		scores[c.Category] = c.Score
		totalXP += c.XPGained
	}

	completed := shared.NewAttemptCompletedEvent(
		att.TenantID, att.ID.String(), att.StudentID.String(), att.SubjectID.String(),
		att.Kind, out.Accuracy, out.XPAwarded, scores,
	)
	if correlationID != "" {
		completed.BaseEvent = completed.BaseEvent.WithCorrelationID(correlationID)
	}
	_ = h.eventPublisher.Publish(completed)

	_ = h.eventPublisher.Publish(shared.NewXPGainedEvent(
		att.TenantID, att.StudentID.String(), out.XPAwarded, totalXP, string(att.Kind), att.ID.String(),
	))

	for _, c := range out.Categories {
		if !c.LeveledUp {
			continue
		}
		cat, err := shared.ParseSkillCategory(c.Category)
		if err != nil {
			continue
		}
		_ = h.eventPublisher.Publish(shared.NewLevelUpEvent(
			att.TenantID, att.StudentID.String(), cat, c.PrevGameLevel, c.GameLevel, c.LevelTitle,
		))
	}
}

// Helper functions

func toDomainAnswers(in []ProgressAnswer) []attempt.Answer {
	out := make([]attempt.Answer, 0, len(in))
	for _, a := range in {
		out = append(out, attempt.Answer{
			ItemID:     a.ItemID,
			Type:       attempt.ItemType(a.Type),
			Choice:     a.Choice,
			Selections: a.Selections,
			Text:       a.Text,
			Numeric:    a.Numeric,
		})
	}
	return out
}

func answersList(m map[string]attempt.Answer) []attempt.Answer {
	out := make([]attempt.Answer, 0, len(m))
	for _, a := range m {
		out = append(out, a)
	}
	return out
}
