package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/metastudy/metastudy-api/internal/models"
)

func setupSubmissionTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Submission{}))
	require.NoError(t, db.Exec("DELETE FROM submissions").Error)
	return db
}

func TestSubmissionRepositoryDuplicateIsTranslated(t *testing.T) {
	db := setupSubmissionTestDB(t)
	repo := NewSubmissionRepository(db)

	first := models.Submission{ParentKind: models.KindAssignment, ParentID: 1, StudentID: 5, Status: models.SubmissionStatusSubmitted, AutoGradeStatus: models.AutoGradeNone}
	require.NoError(t, repo.Create(context.Background(), &first))

	duplicate := models.Submission{ParentKind: models.KindAssignment, ParentID: 1, StudentID: 5, Status: models.SubmissionStatusSubmitted, AutoGradeStatus: models.AutoGradeNone}
	err := repo.Create(context.Background(), &duplicate)
	require.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	// The same student may hold records under different parents.
	other := models.Submission{ParentKind: models.KindTest, ParentID: 1, StudentID: 5, Status: models.SubmissionStatusSubmitted, AutoGradeStatus: models.AutoGradeNone}
	require.NoError(t, repo.Create(context.Background(), &other))
}

func TestSubmissionRepositorySyncGroupFilesSkipsGraded(t *testing.T) {
	db := setupSubmissionTestDB(t)
	repo := NewSubmissionRepository(db)

	require.NoError(t, repo.CreatePlaceholders(context.Background(), models.KindGroup, 7, []uint{1, 2, 3}))

	marks := 9.0
	graded, err := repo.GetByParentAndStudent(context.Background(), models.KindGroup, 7, 3)
	require.NoError(t, err)
	graded.Status = models.SubmissionStatusGraded
	graded.Marks = &marks
	require.NoError(t, repo.Update(context.Background(), &graded))

	submittedAt := time.Now()
	affected, err := repo.SyncGroupFiles(context.Background(), models.KindGroup, 7, SubmissionFileMeta{
		FileKey:  "group/report.pdf",
		FileType: "application/pdf",
		FileName: "report.pdf",
		FileSize: 2048,
	}, submittedAt)
	require.NoError(t, err)
	require.Equal(t, int64(2), affected)

	records, err := repo.ListByParent(context.Background(), models.KindGroup, 7)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for _, record := range records {
		if record.StudentID == 3 {
			require.Equal(t, models.SubmissionStatusGraded, record.Status)
			require.Empty(t, record.FileKey)
			continue
		}
		require.Equal(t, models.SubmissionStatusSubmitted, record.Status)
		require.Equal(t, "group/report.pdf", record.FileKey)
		require.NotNil(t, record.SubmittedAt)
	}
}

func TestSubmissionRepositoryCreatePlaceholdersIsIdempotent(t *testing.T) {
	db := setupSubmissionTestDB(t)
	repo := NewSubmissionRepository(db)

	require.NoError(t, repo.CreatePlaceholders(context.Background(), models.KindPresentation, 4, []uint{1, 2}))

	// A member already holding a real submission keeps it.
	existing, err := repo.GetByParentAndStudent(context.Background(), models.KindPresentation, 4, 1)
	require.NoError(t, err)
	existing.Status = models.SubmissionStatusSubmitted
	existing.FileKey = "presentation/slides.pdf"
	require.NoError(t, repo.Update(context.Background(), &existing))

	require.NoError(t, repo.CreatePlaceholders(context.Background(), models.KindPresentation, 4, []uint{1, 2, 3}))

	records, err := repo.ListByParent(context.Background(), models.KindPresentation, 4)
	require.NoError(t, err)
	require.Len(t, records, 3)

	kept, err := repo.GetByParentAndStudent(context.Background(), models.KindPresentation, 4, 1)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusSubmitted, kept.Status)
	require.Equal(t, "presentation/slides.pdf", kept.FileKey)
}

func TestSubmissionRepositoryDeleteMembersPreservesGraded(t *testing.T) {
	db := setupSubmissionTestDB(t)
	repo := NewSubmissionRepository(db)

	require.NoError(t, repo.CreatePlaceholders(context.Background(), models.KindGroup, 9, []uint{1, 2}))

	marks := 7.0
	graded, err := repo.GetByParentAndStudent(context.Background(), models.KindGroup, 9, 1)
	require.NoError(t, err)
	graded.Status = models.SubmissionStatusGraded
	graded.Marks = &marks
	require.NoError(t, repo.Update(context.Background(), &graded))

	require.NoError(t, repo.DeleteMembers(context.Background(), models.KindGroup, 9, []uint{1, 2}))

	records, err := repo.ListByParent(context.Background(), models.KindGroup, 9)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, uint(1), records[0].StudentID)
	require.Equal(t, models.SubmissionStatusGraded, records[0].Status)
}

func TestSubmissionRepositoryDeleteByParent(t *testing.T) {
	db := setupSubmissionTestDB(t)
	repo := NewSubmissionRepository(db)

	require.NoError(t, repo.CreatePlaceholders(context.Background(), models.KindTest, 11, []uint{1, 2, 3}))
	require.NoError(t, repo.CreatePlaceholders(context.Background(), models.KindTest, 12, []uint{1}))

	require.NoError(t, repo.DeleteByParent(context.Background(), models.KindTest, 11))

	gone, err := repo.ListByParent(context.Background(), models.KindTest, 11)
	require.NoError(t, err)
	require.Empty(t, gone)

	kept, err := repo.ListByParent(context.Background(), models.KindTest, 12)
	require.NoError(t, err)
	require.Len(t, kept, 1)
}
