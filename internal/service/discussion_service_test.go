package service

import (
	"context"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/metastudy/metastudy-api/internal/dto"
	"github.com/metastudy/metastudy-api/internal/models"
)

type memoryDiscussionRepo struct {
	discussions map[uint]models.Discussion
	nextID      uint
	commentID   uint
}

func newMemoryDiscussionRepo() *memoryDiscussionRepo {
	return &memoryDiscussionRepo{discussions: make(map[uint]models.Discussion), nextID: 1, commentID: 1}
}

func (m *memoryDiscussionRepo) GetByID(ctx context.Context, id uint) (models.Discussion, error) {
	discussion, ok := m.discussions[id]
	if !ok {
		return models.Discussion{}, gorm.ErrRecordNotFound
	}
	return discussion, nil
}

func (m *memoryDiscussionRepo) ListByClass(ctx context.Context, classID uint) ([]models.Discussion, error) {
	results := make([]models.Discussion, 0)
	for _, discussion := range m.discussions {
		if discussion.ClassID == classID {
			results = append(results, discussion)
		}
	}
	return results, nil
}

func (m *memoryDiscussionRepo) Create(ctx context.Context, discussion *models.Discussion) error {
	discussion.ID = m.nextID
	m.discussions[m.nextID] = *discussion
	m.nextID++
	return nil
}

func (m *memoryDiscussionRepo) Update(ctx context.Context, discussion *models.Discussion) error {
	if _, ok := m.discussions[discussion.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	m.discussions[discussion.ID] = *discussion
	return nil
}

func (m *memoryDiscussionRepo) Delete(ctx context.Context, id uint) error {
	delete(m.discussions, id)
	return nil
}

func (m *memoryDiscussionRepo) AddComment(ctx context.Context, comment *models.DiscussionComment) error {
	discussion, ok := m.discussions[comment.DiscussionID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	comment.ID = m.commentID
	m.commentID++
	discussion.Comments = append(discussion.Comments, *comment)
	m.discussions[discussion.ID] = discussion
	return nil
}

func newDiscussionServiceForTest(t *testing.T, discussions *memoryDiscussionRepo, users *memoryUserRepo, mailer EmailSender) DiscussionService {
	t.Helper()
	validate := validator.New(validator.WithRequiredStructEnabled())
	return NewDiscussionService(discussions, users, mailer, validate, testLogger())
}

func seedUser(t *testing.T, repo *memoryUserRepo, name, email, role string) models.User {
	t.Helper()
	user := models.User{Name: name, Email: email, Role: role}
	require.NoError(t, repo.Create(context.Background(), &user))
	return user
}

func TestDiscussionCreateSanitizesContent(t *testing.T) {
	discussions := newMemoryDiscussionRepo()
	users := newMemoryUserRepo()
	svc := newDiscussionServiceForTest(t, discussions, users, nil)

	author := seedUser(t, users, "Mina", "mina@example.com", models.RoleStudent)

	created, err := svc.Create(context.Background(), Actor{ID: author.ID, Role: models.RoleStudent}, dto.DiscussionCreateRequest{
		ClassID: 1,
		Content: `Hello <script>alert("x")</script><b>world</b>`,
	})
	require.NoError(t, err)
	require.Equal(t, "Hello <b>world</b>", created.Content)
	require.Equal(t, "Mina", created.AuthorName)
}

func TestDiscussionCreateRejectsEmptyAfterSanitization(t *testing.T) {
	discussions := newMemoryDiscussionRepo()
	users := newMemoryUserRepo()
	svc := newDiscussionServiceForTest(t, discussions, users, nil)

	author := seedUser(t, users, "Mina", "mina@example.com", models.RoleStudent)

	_, err := svc.Create(context.Background(), Actor{ID: author.ID, Role: models.RoleStudent}, dto.DiscussionCreateRequest{
		ClassID: 1,
		Content: `<script>alert("x")</script>`,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty after sanitization")
}

func TestDiscussionCreateEnforcesWordCap(t *testing.T) {
	discussions := newMemoryDiscussionRepo()
	users := newMemoryUserRepo()
	svc := newDiscussionServiceForTest(t, discussions, users, nil)

	author := seedUser(t, users, "Mina", "mina@example.com", models.RoleStudent)

	long := strings.Repeat("word ", maxDiscussionWords+1)
	_, err := svc.Create(context.Background(), Actor{ID: author.ID, Role: models.RoleStudent}, dto.DiscussionCreateRequest{
		ClassID: 1,
		Content: long,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "exceeds")
}

func TestDiscussionUpdateAuthorOnly(t *testing.T) {
	discussions := newMemoryDiscussionRepo()
	users := newMemoryUserRepo()
	svc := newDiscussionServiceForTest(t, discussions, users, nil)

	author := seedUser(t, users, "Mina", "mina@example.com", models.RoleStudent)
	created, err := svc.Create(context.Background(), Actor{ID: author.ID, Role: models.RoleStudent}, dto.DiscussionCreateRequest{ClassID: 1, Content: "original"})
	require.NoError(t, err)

	// A teacher may delete a post but not rewrite it.
	_, err = svc.Update(context.Background(), Actor{ID: 100, Role: models.RoleTeacher}, created.ID, dto.DiscussionUpdateRequest{Content: "edited"})
	require.ErrorIs(t, err, ErrForbidden)

	updated, err := svc.Update(context.Background(), Actor{ID: author.ID, Role: models.RoleStudent}, created.ID, dto.DiscussionUpdateRequest{Content: "edited"})
	require.NoError(t, err)
	require.Equal(t, "edited", updated.Content)
}

func TestDiscussionDeleteAuthorOrTeacher(t *testing.T) {
	discussions := newMemoryDiscussionRepo()
	users := newMemoryUserRepo()
	svc := newDiscussionServiceForTest(t, discussions, users, nil)

	author := seedUser(t, users, "Mina", "mina@example.com", models.RoleStudent)
	created, err := svc.Create(context.Background(), Actor{ID: author.ID, Role: models.RoleStudent}, dto.DiscussionCreateRequest{ClassID: 1, Content: "post"})
	require.NoError(t, err)

	err = svc.Delete(context.Background(), Actor{ID: 9, Role: models.RoleStudent}, created.ID)
	require.ErrorIs(t, err, ErrForbidden)

	err = svc.Delete(context.Background(), Actor{ID: 100, Role: models.RoleTeacher}, created.ID)
	require.NoError(t, err)
	require.Empty(t, discussions.discussions)
}

func TestCommentNotifiesPostAuthor(t *testing.T) {
	discussions := newMemoryDiscussionRepo()
	users := newMemoryUserRepo()
	mailer := &fakeMailer{}
	svc := newDiscussionServiceForTest(t, discussions, users, mailer)

	author := seedUser(t, users, "Mina", "mina@example.com", models.RoleStudent)
	replier := seedUser(t, users, "Omar", "omar@example.com", models.RoleStudent)

	created, err := svc.Create(context.Background(), Actor{ID: author.ID, Role: models.RoleStudent}, dto.DiscussionCreateRequest{ClassID: 1, Content: "question"})
	require.NoError(t, err)

	withComment, err := svc.AddComment(context.Background(), Actor{ID: replier.ID, Role: models.RoleStudent}, created.ID, dto.CommentCreateRequest{Content: "answer"})
	require.NoError(t, err)
	require.Len(t, withComment.Comments, 1)
	require.Equal(t, "Omar", withComment.Comments[0].AuthorName)

	require.Len(t, mailer.sent, 1)
	require.Contains(t, mailer.sent[0], "mina@example.com")
}

func TestCommentSelfReplyIsSilent(t *testing.T) {
	discussions := newMemoryDiscussionRepo()
	users := newMemoryUserRepo()
	mailer := &fakeMailer{}
	svc := newDiscussionServiceForTest(t, discussions, users, mailer)

	author := seedUser(t, users, "Mina", "mina@example.com", models.RoleStudent)
	created, err := svc.Create(context.Background(), Actor{ID: author.ID, Role: models.RoleStudent}, dto.DiscussionCreateRequest{ClassID: 1, Content: "question"})
	require.NoError(t, err)

	_, err = svc.AddComment(context.Background(), Actor{ID: author.ID, Role: models.RoleStudent}, created.ID, dto.CommentCreateRequest{Content: "clarifying my own post"})
	require.NoError(t, err)
	require.Empty(t, mailer.sent)
}
