package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/metastudy/metastudy-api/internal/models"
	"github.com/metastudy/metastudy-api/internal/repository"
)

// Answer markers students embed in submitted text files. The slot number is
// appended to both tokens: ###Q_ANSWER_START_3 ... _Q_ANSWER_END###3.
const (
	answerStartMarker = "###Q_ANSWER_START_"
	answerEndMarker   = "_Q_ANSWER_END###"
	maxAnswerSlots    = 10
	autoGradeMaxMarks = 10.0
)

var errNoAnswersExtracted = errors.New("no answers extracted; check the file uses the answer markers")

// AutoGrader scores a test submission against its declared answer key. It
// runs out-of-band: every failure is captured into the record's own state,
// never returned to a request.
type AutoGrader struct {
	submissions repository.SubmissionRepository
	assignables repository.AssignableRepository
	store       BlobStore
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewAutoGrader constructs the grading engine.
func NewAutoGrader(
	submissions repository.SubmissionRepository,
	assignables repository.AssignableRepository,
	store BlobStore,
	logger zerolog.Logger,
) *AutoGrader {
	return &AutoGrader{
		submissions: submissions,
		assignables: assignables,
		store:       store,
		logger:      logger.With().Str("component", "auto_grader").Logger(),
		tracer:      otel.Tracer("github.com/metastudy/metastudy-api/internal/service/autograde"),
		now:         time.Now,
	}
}

// Grade runs the full extract-compare-score pass for one submission.
// A returned error signals a transient infrastructure failure worth
// retrying; grading-content failures are persisted as error status and
// return nil.
func (g *AutoGrader) Grade(ctx context.Context, submissionID uint) error {
	ctx, span := g.tracer.Start(ctx, "autograde.run")
	span.SetAttributes(attribute.Int64("submission.id", int64(submissionID)))
	defer span.End()

	submission, err := g.submissions.GetByID(ctx, submissionID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to load submission %d: %w", submissionID, err)
	}

	if submission.IsGraded() {
		// Manual grading won the race; leave the record alone.
		return nil
	}

	parent, err := g.assignables.GetByID(ctx, models.KindTest, submission.ParentID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to load test %d: %w", submission.ParentID, err)
	}

	if !parent.IsAutoGraded() || parent.SolutionFileKey == "" {
		return g.markError(ctx, submission, "test is not configured for auto-grading")
	}

	keyAnswers, err := g.extractFromObject(ctx, parent.SolutionFileKey)
	if err != nil {
		if errors.Is(err, errNoAnswersExtracted) {
			return g.markError(ctx, submission, "answer key: "+err.Error())
		}
		span.RecordError(err)
		return err
	}

	submission.AutoGradeStatus = models.AutoGradeExtracted
	if err := g.submissions.Update(ctx, &submission); err != nil {
		span.RecordError(err)
		return err
	}

	studentAnswers, err := g.extractFromObject(ctx, submission.FileKey)
	if err != nil {
		if errors.Is(err, errNoAnswersExtracted) {
			return g.markError(ctx, submission, "submission: "+err.Error())
		}
		span.RecordError(err)
		return err
	}

	marks, correct, total := scoreAnswers(studentAnswers, keyAnswers)

	gradedAt := g.now()
	submission.Marks = &marks
	submission.Feedback = fmt.Sprintf("Auto-grade result: %d out of %d questions correct. Total score: %.2f / %.0f", correct, total, marks, autoGradeMaxMarks)
	submission.GradedAt = &gradedAt
	submission.GradedBy = nil
	submission.Status = models.SubmissionStatusGraded
	submission.AutoGradeStatus = models.AutoGradeScored

	if err := g.submissions.Update(ctx, &submission); err != nil {
		span.RecordError(err)
		return err
	}

	span.SetAttributes(attribute.Float64("autograde.marks", marks))
	g.logger.Info().
		Uint("submission_id", submission.ID).
		Float64("marks", marks).
		Int("correct", correct).
		Int("total", total).
		Msg("submission auto-graded")

	return nil
}

// markError records a permanent grading failure on the submission itself.
func (g *AutoGrader) markError(ctx context.Context, submission models.Submission, reason string) error {
	submission.AutoGradeStatus = models.AutoGradeError
	submission.Feedback = "AUTO-GRADE ERROR: " + reason + ". Manual review required."
	submission.Marks = nil

	if err := g.submissions.Update(ctx, &submission); err != nil {
		return err
	}

	g.logger.Warn().Uint("submission_id", submission.ID).Str("reason", reason).Msg("auto-grading failed")
	return nil
}

func (g *AutoGrader) extractFromObject(ctx context.Context, key string) (map[int]string, error) {
	if key == "" {
		return nil, errNoAnswersExtracted
	}

	body, err := g.store.Download(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", key, err)
	}
	defer body.Close()

	content, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	return extractAnswers(string(content))
}

// extractAnswers scans text content for up to ten marker-delimited answer
// slots. Answers are normalized for comparison: all whitespace stripped,
// lower-cased.
func extractAnswers(content string) (map[int]string, error) {
	extracted := make(map[int]string)

	for slot := 1; slot <= maxAnswerSlots; slot++ {
		start := fmt.Sprintf("%s%d", answerStartMarker, slot)
		end := fmt.Sprintf("%s%d", answerEndMarker, slot)

		startIdx := strings.Index(content, start)
		endIdx := strings.Index(content, end)
		if startIdx == -1 || endIdx == -1 || endIdx <= startIdx {
			continue
		}

		extracted[slot] = normalizeAnswer(content[startIdx+len(start) : endIdx])
	}

	if len(extracted) == 0 {
		return nil, errNoAnswersExtracted
	}

	return extracted, nil
}

func normalizeAnswer(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

// scoreAnswers compares normalized student answers against the key. Each key
// slot is worth an equal share of the fixed 10-mark ceiling; the result is
// rounded to two decimal places.
func scoreAnswers(student, key map[int]string) (marks float64, correct, total int) {
	total = len(key)
	if total == 0 {
		return 0, 0, 0
	}

	for slot, keyAnswer := range key {
		if student[slot] == keyAnswer {
			correct++
		}
	}

	perQuestion := autoGradeMaxMarks / float64(total)
	marks = math.Round(float64(correct)*perQuestion*100) / 100

	return marks, correct, total
}
