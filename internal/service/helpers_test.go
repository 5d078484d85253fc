package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/metastudy/metastudy-api/internal/models"
	"github.com/metastudy/metastudy-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

type memoryAssignableRepo struct {
	assignables map[uint]models.Assignable
	nextID      uint
}

func newMemoryAssignableRepo() *memoryAssignableRepo {
	return &memoryAssignableRepo{assignables: make(map[uint]models.Assignable), nextID: 1}
}

func (m *memoryAssignableRepo) GetByID(ctx context.Context, kind string, id uint) (models.Assignable, error) {
	assignable, ok := m.assignables[id]
	if !ok || assignable.Kind != kind {
		return models.Assignable{}, gorm.ErrRecordNotFound
	}
	return assignable, nil
}

func (m *memoryAssignableRepo) ListByClass(ctx context.Context, kind string, classID uint) ([]models.Assignable, error) {
	results := make([]models.Assignable, 0)
	for _, assignable := range m.assignables {
		if assignable.Kind == kind && assignable.ClassID == classID {
			results = append(results, assignable)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

func (m *memoryAssignableRepo) Create(ctx context.Context, assignable *models.Assignable) error {
	assignable.ID = m.nextID
	assignable.CreatedAt = time.Now()
	assignable.UpdatedAt = time.Now()
	m.assignables[m.nextID] = *assignable
	m.nextID++
	return nil
}

func (m *memoryAssignableRepo) Update(ctx context.Context, assignable *models.Assignable) error {
	if _, ok := m.assignables[assignable.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	assignable.UpdatedAt = time.Now()
	m.assignables[assignable.ID] = *assignable
	return nil
}

func (m *memoryAssignableRepo) Delete(ctx context.Context, id uint) error {
	if _, ok := m.assignables[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.assignables, id)
	return nil
}

// memorySubmissionRepo is safe for concurrent use so worker tests can poll
// it while a goroutine writes.
type memorySubmissionRepo struct {
	mu          sync.Mutex
	submissions map[uint]models.Submission
	nextID      uint
}

func newMemorySubmissionRepo() *memorySubmissionRepo {
	return &memorySubmissionRepo{submissions: make(map[uint]models.Submission), nextID: 1}
}

func (m *memorySubmissionRepo) find(kind string, parentID, studentID uint) (models.Submission, bool) {
	for _, submission := range m.submissions {
		if submission.ParentKind == kind && submission.ParentID == parentID && submission.StudentID == studentID {
			return submission, true
		}
	}
	return models.Submission{}, false
}

func (m *memorySubmissionRepo) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	submission, ok := m.submissions[id]
	if !ok {
		return models.Submission{}, gorm.ErrRecordNotFound
	}
	return submission, nil
}

func (m *memorySubmissionRepo) GetByParentAndStudent(ctx context.Context, kind string, parentID, studentID uint) (models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	submission, ok := m.find(kind, parentID, studentID)
	if !ok {
		return models.Submission{}, gorm.ErrRecordNotFound
	}
	return submission, nil
}

func (m *memorySubmissionRepo) ListByParent(ctx context.Context, kind string, parentID uint) ([]models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]models.Submission, 0)
	for _, submission := range m.submissions {
		if submission.ParentKind == kind && submission.ParentID == parentID {
			results = append(results, submission)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

func (m *memorySubmissionRepo) ListByParentAndStudent(ctx context.Context, kind string, parentID, studentID uint) ([]models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]models.Submission, 0)
	for _, submission := range m.submissions {
		if submission.ParentKind == kind && submission.ParentID == parentID && submission.StudentID == studentID {
			results = append(results, submission)
		}
	}
	return results, nil
}

func (m *memorySubmissionRepo) Create(ctx context.Context, submission *models.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.find(submission.ParentKind, submission.ParentID, submission.StudentID); ok {
		return gorm.ErrDuplicatedKey
	}

	submission.ID = m.nextID
	submission.CreatedAt = time.Now()
	submission.UpdatedAt = time.Now()
	m.submissions[m.nextID] = *submission
	m.nextID++
	return nil
}

func (m *memorySubmissionRepo) Update(ctx context.Context, submission *models.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.submissions[submission.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	submission.UpdatedAt = time.Now()
	m.submissions[submission.ID] = *submission
	return nil
}

func (m *memorySubmissionRepo) Delete(ctx context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.submissions[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.submissions, id)
	return nil
}

func (m *memorySubmissionRepo) DeleteByParent(ctx context.Context, kind string, parentID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, submission := range m.submissions {
		if submission.ParentKind == kind && submission.ParentID == parentID {
			delete(m.submissions, id)
		}
	}
	return nil
}

func (m *memorySubmissionRepo) SyncGroupFiles(ctx context.Context, kind string, parentID uint, meta repository.SubmissionFileMeta, submittedAt time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var touched int64
	for id, submission := range m.submissions {
		if submission.ParentKind != kind || submission.ParentID != parentID {
			continue
		}
		if submission.Status == models.SubmissionStatusGraded {
			continue
		}

		submission.FileKey = meta.FileKey
		submission.FileType = meta.FileType
		submission.FileName = meta.FileName
		submission.FileSize = meta.FileSize
		submission.Status = models.SubmissionStatusSubmitted
		at := submittedAt
		submission.SubmittedAt = &at
		m.submissions[id] = submission
		touched++
	}
	return touched, nil
}

func (m *memorySubmissionRepo) CreatePlaceholders(ctx context.Context, kind string, parentID uint, studentIDs []uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, studentID := range studentIDs {
		if _, ok := m.find(kind, parentID, studentID); ok {
			continue
		}
		record := models.Submission{
			ID:              m.nextID,
			ParentKind:      kind,
			ParentID:        parentID,
			StudentID:       studentID,
			Status:          models.SubmissionStatusAssigned,
			AutoGradeStatus: models.AutoGradeNone,
			CreatedAt:       time.Now(),
		}
		m.submissions[m.nextID] = record
		m.nextID++
	}
	return nil
}

func (m *memorySubmissionRepo) DeleteMembers(ctx context.Context, kind string, parentID uint, studentIDs []uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[uint]struct{}, len(studentIDs))
	for _, id := range studentIDs {
		wanted[id] = struct{}{}
	}

	for id, submission := range m.submissions {
		if submission.ParentKind != kind || submission.ParentID != parentID {
			continue
		}
		if _, ok := wanted[submission.StudentID]; !ok {
			continue
		}
		if submission.Status == models.SubmissionStatusGraded {
			continue
		}
		delete(m.submissions, id)
	}
	return nil
}

type memoryUserRepo struct {
	users  map[uint]models.User
	tokens map[uint]models.VerificationToken
	nextID uint
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: make(map[uint]models.User), tokens: make(map[uint]models.VerificationToken), nextID: 1}
}

func (m *memoryUserRepo) GetByID(ctx context.Context, id uint) (models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return models.User{}, gorm.ErrRecordNotFound
	}
	return user, nil
}

func (m *memoryUserRepo) GetByEmail(ctx context.Context, email string) (models.User, error) {
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, gorm.ErrRecordNotFound
}

func (m *memoryUserRepo) ListByIDs(ctx context.Context, ids []uint) ([]models.User, error) {
	results := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if user, ok := m.users[id]; ok {
			results = append(results, user)
		}
	}
	return results, nil
}

func (m *memoryUserRepo) Create(ctx context.Context, user *models.User) error {
	if _, err := m.GetByEmail(ctx, user.Email); err == nil {
		return gorm.ErrDuplicatedKey
	}
	user.ID = m.nextID
	user.CreatedAt = time.Now()
	m.users[m.nextID] = *user
	m.nextID++
	return nil
}

func (m *memoryUserRepo) Update(ctx context.Context, user *models.User) error {
	if _, ok := m.users[user.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	m.users[user.ID] = *user
	return nil
}

func (m *memoryUserRepo) CreateToken(ctx context.Context, token *models.VerificationToken) error {
	token.ID = m.nextID
	m.tokens[m.nextID] = *token
	m.nextID++
	return nil
}

func (m *memoryUserRepo) GetToken(ctx context.Context, token, purpose string) (models.VerificationToken, error) {
	for _, record := range m.tokens {
		if record.Token == token && record.Purpose == purpose {
			return record, nil
		}
	}
	return models.VerificationToken{}, gorm.ErrRecordNotFound
}

func (m *memoryUserRepo) DeleteToken(ctx context.Context, id uint) error {
	delete(m.tokens, id)
	return nil
}

type memoryClassroomRepo struct {
	classrooms map[uint]models.Classroom
	nextID     uint
}

func newMemoryClassroomRepo() *memoryClassroomRepo {
	return &memoryClassroomRepo{classrooms: make(map[uint]models.Classroom), nextID: 1}
}

func (m *memoryClassroomRepo) GetByID(ctx context.Context, id uint) (models.Classroom, error) {
	classroom, ok := m.classrooms[id]
	if !ok {
		return models.Classroom{}, gorm.ErrRecordNotFound
	}
	return classroom, nil
}

func (m *memoryClassroomRepo) GetByCode(ctx context.Context, code string) (models.Classroom, error) {
	for _, classroom := range m.classrooms {
		if classroom.Code == code {
			return classroom, nil
		}
	}
	return models.Classroom{}, gorm.ErrRecordNotFound
}

func (m *memoryClassroomRepo) ListByTeacher(ctx context.Context, teacherID uint) ([]models.Classroom, error) {
	results := make([]models.Classroom, 0)
	for _, classroom := range m.classrooms {
		if classroom.CreatedBy == teacherID {
			results = append(results, classroom)
		}
	}
	return results, nil
}

func (m *memoryClassroomRepo) ListByStudent(ctx context.Context, studentID uint) ([]models.Classroom, error) {
	results := make([]models.Classroom, 0)
	for _, classroom := range m.classrooms {
		if classroom.HasStudent(studentID) {
			results = append(results, classroom)
		}
	}
	return results, nil
}

func (m *memoryClassroomRepo) Create(ctx context.Context, classroom *models.Classroom) error {
	if _, err := m.GetByCode(ctx, classroom.Code); err == nil {
		return gorm.ErrDuplicatedKey
	}
	classroom.ID = m.nextID
	classroom.CreatedAt = time.Now()
	m.classrooms[m.nextID] = *classroom
	m.nextID++
	return nil
}

func (m *memoryClassroomRepo) Update(ctx context.Context, classroom *models.Classroom) error {
	if _, ok := m.classrooms[classroom.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	m.classrooms[classroom.ID] = *classroom
	return nil
}

// fakeBlobStore keeps objects in memory and records every mutation.
type fakeBlobStore struct {
	objects map[string][]byte
	deleted []string
	failAll bool
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string][]byte)}
}

func (f *fakeBlobStore) Upload(ctx context.Context, key string, reader io.Reader, contentType string) error {
	if f.failAll {
		return fmt.Errorf("storage unavailable")
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.objects[key] = data
	return nil
}

func (f *fakeBlobStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if f.failAll {
		return nil, fmt.Errorf("storage unavailable")
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeBlobStore) Delete(ctx context.Context, key string) error {
	if f.failAll {
		return fmt.Errorf("storage unavailable")
	}
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeBlobStore) Presign(ctx context.Context, key, filename, contentType, action string) (string, error) {
	if f.failAll {
		return "", fmt.Errorf("storage unavailable")
	}
	return fmt.Sprintf("https://files.test/%s?disposition=%s", key, action), nil
}

type fakeEnqueuer struct {
	queued []uint
}

func (f *fakeEnqueuer) Enqueue(submissionID uint) {
	f.queued = append(f.queued, submissionID)
}

type fakeMailer struct {
	sent []string
}

func (f *fakeMailer) Send(toName, toAddress, subject, body string) {
	f.sent = append(f.sent, toAddress+": "+subject)
}

func newTestFileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(int64(len(content))+1024))
	files := req.MultipartForm.File["file"]
	require.Len(t, files, 1)
	return files[0]
}

// useStaticKeys makes storage keys deterministic for the duration of a test.
func useStaticKeys(t *testing.T) {
	t.Helper()
	original := buildKeyFn
	buildKeyFn = func(prefix, name string) string {
		return strings.Trim(prefix, "/") + "/" + name
	}
	t.Cleanup(func() { buildKeyFn = original })
}
