package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/metastudy/metastudy-api/internal/dto"
	"github.com/metastudy/metastudy-api/internal/models"
)

func newSubmissionServiceForTest(t *testing.T, assignables *memoryAssignableRepo, submissions *memorySubmissionRepo, store *fakeBlobStore, grader AutoGradeEnqueuer) SubmissionService {
	t.Helper()
	useStaticKeys(t)
	validate := validator.New(validator.WithRequiredStructEnabled())
	return NewSubmissionService(submissions, assignables, newMemoryUserRepo(), store, grader, nil, validate, testLogger())
}

func seedAssignable(repo *memoryAssignableRepo, kind string, due time.Time, students ...uint) models.Assignable {
	assignable := models.Assignable{
		Kind:             kind,
		ClassID:          1,
		UploaderID:       100,
		Title:            "Week 1",
		DueDate:          due,
		GradingMode:      models.GradingManual,
		AssignedStudents: students,
	}
	_ = repo.Create(context.Background(), &assignable)
	return assignable
}

func TestSubmitCreatesRecord(t *testing.T) {
	assignables := newMemoryAssignableRepo()
	submissions := newMemorySubmissionRepo()
	store := newFakeBlobStore()
	svc := newSubmissionServiceForTest(t, assignables, submissions, store, nil)

	parent := seedAssignable(assignables, models.KindAssignment, time.Now().Add(24*time.Hour))

	resp, err := svc.Submit(context.Background(), Actor{ID: 7, Role: models.RoleStudent}, models.KindAssignment, parent.ID, newTestFileHeader(t, "essay.txt", []byte("my answer")))
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusSubmitted, resp.Status)
	require.Equal(t, uint(7), resp.StudentID)
	require.NotNil(t, resp.SubmittedAt)
	require.Contains(t, store.objects, "submissions/assignment/1/essay.txt")
}

func TestSubmitReplacesFileAndDeletesOld(t *testing.T) {
	assignables := newMemoryAssignableRepo()
	submissions := newMemorySubmissionRepo()
	store := newFakeBlobStore()
	svc := newSubmissionServiceForTest(t, assignables, submissions, store, nil)

	parent := seedAssignable(assignables, models.KindAssignment, time.Now().Add(24*time.Hour))
	actor := Actor{ID: 7, Role: models.RoleStudent}

	first, err := svc.Submit(context.Background(), actor, models.KindAssignment, parent.ID, newTestFileHeader(t, "draft.txt", []byte("draft")))
	require.NoError(t, err)

	second, err := svc.Submit(context.Background(), actor, models.KindAssignment, parent.ID, newTestFileHeader(t, "final.txt", []byte("final")))
	require.NoError(t, err)

	// Same record replaced in place, not a second row.
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "final.txt", second.FileName)
	require.Contains(t, store.deleted, "submissions/assignment/1/draft.txt")
	require.NotContains(t, store.objects, "submissions/assignment/1/draft.txt")

	all, err := submissions.ListByParent(context.Background(), models.KindAssignment, parent.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestSubmitGradedRecordIsFrozen(t *testing.T) {
	assignables := newMemoryAssignableRepo()
	submissions := newMemorySubmissionRepo()
	store := newFakeBlobStore()
	svc := newSubmissionServiceForTest(t, assignables, submissions, store, nil)

	parent := seedAssignable(assignables, models.KindAssignment, time.Now().Add(24*time.Hour))
	actor := Actor{ID: 7, Role: models.RoleStudent}

	_, err := svc.Submit(context.Background(), actor, models.KindAssignment, parent.ID, newTestFileHeader(t, "work.txt", []byte("work")))
	require.NoError(t, err)

	record, err := submissions.GetByParentAndStudent(context.Background(), models.KindAssignment, parent.ID, actor.ID)
	require.NoError(t, err)
	marks := 8.0
	record.Marks = &marks
	record.Status = models.SubmissionStatusGraded
	require.NoError(t, submissions.Update(context.Background(), &record))

	_, err = svc.Submit(context.Background(), actor, models.KindAssignment, parent.ID, newTestFileHeader(t, "again.txt", []byte("again")))
	require.ErrorIs(t, err, ErrAlreadyGraded)

	// The graded record keeps its original file.
	unchanged, err := submissions.GetByParentAndStudent(context.Background(), models.KindAssignment, parent.ID, actor.ID)
	require.NoError(t, err)
	require.Equal(t, "work.txt", unchanged.FileName)
}

func TestSubmitAfterDeadline(t *testing.T) {
	assignables := newMemoryAssignableRepo()
	submissions := newMemorySubmissionRepo()
	store := newFakeBlobStore()
	svc := newSubmissionServiceForTest(t, assignables, submissions, store, nil)

	parent := seedAssignable(assignables, models.KindAssignment, time.Now().Add(-time.Hour))

	_, err := svc.Submit(context.Background(), Actor{ID: 7, Role: models.RoleStudent}, models.KindAssignment, parent.ID, newTestFileHeader(t, "late.txt", []byte("late")))
	require.ErrorIs(t, err, ErrDeadlinePassed)
	require.Empty(t, store.objects, "nothing may be uploaded for a rejected submission")
	require.Empty(t, submissions.submissions)
}

func TestSubmitOutsideRoster(t *testing.T) {
	assignables := newMemoryAssignableRepo()
	submissions := newMemorySubmissionRepo()
	store := newFakeBlobStore()
	svc := newSubmissionServiceForTest(t, assignables, submissions, store, nil)

	parent := seedAssignable(assignables, models.KindPresentation, time.Now().Add(24*time.Hour), 1, 2)

	_, err := svc.Submit(context.Background(), Actor{ID: 9, Role: models.RoleStudent}, models.KindPresentation, parent.ID, newTestFileHeader(t, "slides.txt", []byte("slides")))
	require.ErrorIs(t, err, ErrNotAssigned)
}

func TestSubmitTeacherRejected(t *testing.T) {
	assignables := newMemoryAssignableRepo()
	svc := newSubmissionServiceForTest(t, assignables, newMemorySubmissionRepo(), newFakeBlobStore(), nil)

	parent := seedAssignable(assignables, models.KindAssignment, time.Now().Add(24*time.Hour))

	_, err := svc.Submit(context.Background(), Actor{ID: 100, Role: models.RoleTeacher}, models.KindAssignment, parent.ID, newTestFileHeader(t, "x.txt", []byte("x")))
	require.ErrorIs(t, err, ErrForbidden)
}

func TestGroupSubmitFansOutSkippingGraded(t *testing.T) {
	assignables := newMemoryAssignableRepo()
	submissions := newMemorySubmissionRepo()
	store := newFakeBlobStore()
	svc := newSubmissionServiceForTest(t, assignables, submissions, store, nil)

	parent := seedAssignable(assignables, models.KindGroup, time.Now().Add(24*time.Hour), 1, 2, 3)
	require.NoError(t, submissions.CreatePlaceholders(context.Background(), models.KindGroup, parent.ID, []uint{1, 2, 3}))

	// Member 3 already graded against an earlier file.
	graded, err := submissions.GetByParentAndStudent(context.Background(), models.KindGroup, parent.ID, 3)
	require.NoError(t, err)
	marks := 9.0
	graded.Marks = &marks
	graded.Status = models.SubmissionStatusGraded
	graded.FileName = "old.txt"
	require.NoError(t, submissions.Update(context.Background(), &graded))

	_, err = svc.Submit(context.Background(), Actor{ID: 1, Role: models.RoleStudent}, models.KindGroup, parent.ID, newTestFileHeader(t, "group.txt", []byte("group work")))
	require.NoError(t, err)

	for _, studentID := range []uint{1, 2} {
		record, err := submissions.GetByParentAndStudent(context.Background(), models.KindGroup, parent.ID, studentID)
		require.NoError(t, err)
		require.Equal(t, models.SubmissionStatusSubmitted, record.Status)
		require.Equal(t, "group.txt", record.FileName)
	}

	frozen, err := submissions.GetByParentAndStudent(context.Background(), models.KindGroup, parent.ID, 3)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusGraded, frozen.Status)
	require.Equal(t, "old.txt", frozen.FileName)
}

func TestGroupSubmitWithoutPlaceholder(t *testing.T) {
	assignables := newMemoryAssignableRepo()
	submissions := newMemorySubmissionRepo()
	svc := newSubmissionServiceForTest(t, assignables, submissions, newFakeBlobStore(), nil)

	parent := seedAssignable(assignables, models.KindGroup, time.Now().Add(24*time.Hour), 1, 2)

	// Roster says assigned, but the pre-created record is missing.
	_, err := svc.Submit(context.Background(), Actor{ID: 1, Role: models.RoleStudent}, models.KindGroup, parent.ID, newTestFileHeader(t, "g.txt", []byte("g")))
	require.ErrorIs(t, err, ErrNotAssigned)
}

func TestTestSubmitResetsGradeAndEnqueues(t *testing.T) {
	assignables := newMemoryAssignableRepo()
	submissions := newMemorySubmissionRepo()
	store := newFakeBlobStore()
	grader := &fakeEnqueuer{}
	svc := newSubmissionServiceForTest(t, assignables, submissions, store, grader)

	parent := seedAssignable(assignables, models.KindTest, time.Now().Add(24*time.Hour), 5)
	parent.GradingMode = models.GradingAuto
	parent.SolutionFileKey = "test/solutions/key.txt"
	require.NoError(t, assignables.Update(context.Background(), &parent))

	actor := Actor{ID: 5, Role: models.RoleStudent}

	first, err := svc.Submit(context.Background(), actor, models.KindTest, parent.ID, newTestFileHeader(t, "attempt1.txt", []byte("a")))
	require.NoError(t, err)
	require.Equal(t, models.AutoGradePending, first.AutoGradeStatus)
	require.Equal(t, []uint{first.ID}, grader.queued)

	// Simulate a completed auto-grade, then resubmit.
	record, err := submissions.GetByID(context.Background(), first.ID)
	require.NoError(t, err)
	marks := 5.0
	now := time.Now()
	record.Marks = &marks
	record.Feedback = "scored"
	record.GradedAt = &now
	record.AutoGradeStatus = models.AutoGradeScored
	require.NoError(t, submissions.Update(context.Background(), &record))

	second, err := svc.Submit(context.Background(), actor, models.KindTest, parent.ID, newTestFileHeader(t, "attempt2.txt", []byte("b")))
	require.NoError(t, err)
	require.Nil(t, second.Marks)
	require.Empty(t, second.Feedback)
	require.Nil(t, second.GradedAt)
	require.Equal(t, models.AutoGradePending, second.AutoGradeStatus)
	require.Len(t, grader.queued, 2)
}

func TestGradeSubmission(t *testing.T) {
	assignables := newMemoryAssignableRepo()
	submissions := newMemorySubmissionRepo()
	svc := newSubmissionServiceForTest(t, assignables, submissions, newFakeBlobStore(), nil)

	parent := seedAssignable(assignables, models.KindAssignment, time.Now().Add(24*time.Hour))
	actor := Actor{ID: 7, Role: models.RoleStudent}
	created, err := svc.Submit(context.Background(), actor, models.KindAssignment, parent.ID, newTestFileHeader(t, "w.txt", []byte("w")))
	require.NoError(t, err)

	_, err = svc.Grade(context.Background(), actor, created.ID, dto.GradeSubmissionRequest{Marks: 8})
	require.ErrorIs(t, err, ErrForbidden)

	graded, err := svc.Grade(context.Background(), Actor{ID: 100, Role: models.RoleTeacher}, created.ID, dto.GradeSubmissionRequest{Marks: 8, Feedback: "good work"})
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusGraded, graded.Status)
	require.NotNil(t, graded.Marks)
	require.Equal(t, 8.0, *graded.Marks)
	require.Equal(t, "good work", graded.Feedback)
	require.NotNil(t, graded.GradedBy)
	require.Equal(t, uint(100), *graded.GradedBy)
}

func TestGradeMarksOutOfRange(t *testing.T) {
	assignables := newMemoryAssignableRepo()
	submissions := newMemorySubmissionRepo()
	svc := newSubmissionServiceForTest(t, assignables, submissions, newFakeBlobStore(), nil)

	parent := seedAssignable(assignables, models.KindAssignment, time.Now().Add(24*time.Hour))
	created, err := svc.Submit(context.Background(), Actor{ID: 7, Role: models.RoleStudent}, models.KindAssignment, parent.ID, newTestFileHeader(t, "w.txt", []byte("w")))
	require.NoError(t, err)

	_, err = svc.Grade(context.Background(), Actor{ID: 100, Role: models.RoleTeacher}, created.ID, dto.GradeSubmissionRequest{Marks: 150})
	require.Error(t, err)
}

func TestDeleteSubmissionRules(t *testing.T) {
	assignables := newMemoryAssignableRepo()
	submissions := newMemorySubmissionRepo()
	store := newFakeBlobStore()
	svc := newSubmissionServiceForTest(t, assignables, submissions, store, nil)

	parent := seedAssignable(assignables, models.KindAssignment, time.Now().Add(24*time.Hour))
	owner := Actor{ID: 7, Role: models.RoleStudent}
	created, err := svc.Submit(context.Background(), owner, models.KindAssignment, parent.ID, newTestFileHeader(t, "w.txt", []byte("w")))
	require.NoError(t, err)

	// Someone else's record.
	err = svc.Delete(context.Background(), Actor{ID: 8, Role: models.RoleStudent}, created.ID)
	require.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, svc.Delete(context.Background(), owner, created.ID))
	require.Contains(t, store.deleted, "submissions/assignment/1/w.txt")
	require.Empty(t, submissions.submissions)
}

func TestDeleteGroupSubmissionForbidden(t *testing.T) {
	assignables := newMemoryAssignableRepo()
	submissions := newMemorySubmissionRepo()
	svc := newSubmissionServiceForTest(t, assignables, submissions, newFakeBlobStore(), nil)

	parent := seedAssignable(assignables, models.KindGroup, time.Now().Add(24*time.Hour), 1, 2)
	require.NoError(t, submissions.CreatePlaceholders(context.Background(), models.KindGroup, parent.ID, []uint{1, 2}))

	_, err := svc.Submit(context.Background(), Actor{ID: 1, Role: models.RoleStudent}, models.KindGroup, parent.ID, newTestFileHeader(t, "g.txt", []byte("g")))
	require.NoError(t, err)

	record, err := submissions.GetByParentAndStudent(context.Background(), models.KindGroup, parent.ID, 1)
	require.NoError(t, err)

	err = svc.Delete(context.Background(), Actor{ID: 1, Role: models.RoleStudent}, record.ID)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestListVisibility(t *testing.T) {
	assignables := newMemoryAssignableRepo()
	submissions := newMemorySubmissionRepo()
	svc := newSubmissionServiceForTest(t, assignables, submissions, newFakeBlobStore(), nil)

	parent := seedAssignable(assignables, models.KindAssignment, time.Now().Add(24*time.Hour))
	for _, studentID := range []uint{1, 2, 3} {
		_, err := svc.Submit(context.Background(), Actor{ID: studentID, Role: models.RoleStudent}, models.KindAssignment, parent.ID, newTestFileHeader(t, "w.txt", []byte("w")))
		require.NoError(t, err)
	}

	teacherView, err := svc.List(context.Background(), Actor{ID: 100, Role: models.RoleTeacher}, models.KindAssignment, parent.ID)
	require.NoError(t, err)
	require.Len(t, teacherView, 3)

	studentView, err := svc.List(context.Background(), Actor{ID: 2, Role: models.RoleStudent}, models.KindAssignment, parent.ID)
	require.NoError(t, err)
	require.Len(t, studentView, 1)
	require.Equal(t, uint(2), studentView[0].StudentID)
}

func TestLatestReturnsNilWhenAbsent(t *testing.T) {
	assignables := newMemoryAssignableRepo()
	svc := newSubmissionServiceForTest(t, assignables, newMemorySubmissionRepo(), newFakeBlobStore(), nil)

	parent := seedAssignable(assignables, models.KindAssignment, time.Now().Add(24*time.Hour))

	latest, err := svc.Latest(context.Background(), Actor{ID: 7, Role: models.RoleStudent}, models.KindAssignment, parent.ID)
	require.NoError(t, err)
	require.Nil(t, latest)
}

func TestSignedURLOwnership(t *testing.T) {
	assignables := newMemoryAssignableRepo()
	submissions := newMemorySubmissionRepo()
	svc := newSubmissionServiceForTest(t, assignables, submissions, newFakeBlobStore(), nil)

	parent := seedAssignable(assignables, models.KindAssignment, time.Now().Add(24*time.Hour))
	created, err := svc.Submit(context.Background(), Actor{ID: 7, Role: models.RoleStudent}, models.KindAssignment, parent.ID, newTestFileHeader(t, "w.txt", []byte("w")))
	require.NoError(t, err)

	_, err = svc.SignedURL(context.Background(), Actor{ID: 8, Role: models.RoleStudent}, created.ID, "view")
	require.ErrorIs(t, err, ErrForbidden)

	url, err := svc.SignedURL(context.Background(), Actor{ID: 100, Role: models.RoleTeacher}, created.ID, "download")
	require.NoError(t, err)
	require.Contains(t, url.URL, "disposition=download")
}
