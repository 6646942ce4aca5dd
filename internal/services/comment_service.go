package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"larder/internal/apperr"
	"larder/internal/metrics"
	"larder/internal/models"
	"larder/internal/utils"
)

const (
	MinCommentLength    = 3
	MaxCommentLength    = 5000
	MaxAuthorNameLength = 80
	MaxPageSlugLength   = 200
)

var pageSlugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9\-_/]*$`)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// CommentFilter narrows the admin listing. Zero values mean "any".
type CommentFilter struct {
	PageSlug string
	Status   models.CommentStatus
	Limit    int
}

// CommentStore is the persistent comment store. Implementations return
// *apperr.StorageError or *apperr.NotFoundError.
type CommentStore interface {
	// ListApproved returns the approved comments of a page, oldest first.
	ListApproved(ctx context.Context, pageSlug string) ([]models.Comment, error)
	Insert(ctx context.Context, c *models.Comment) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.CommentStatus, isAdmin *bool) (*models.Comment, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// List returns comments matching filter, newest first.
	List(ctx context.Context, filter CommentFilter) ([]models.Comment, error)
	Counts(ctx context.Context, pageSlug string) (models.CommentCounts, error)
}

// SubmitCommentInput is a comment submission. IsAdmin must only be set for callers
// already established as privileged.
type SubmitCommentInput struct {
	PageSlug    string
	AuthorName  string
	AuthorEmail *string
	Content     string
	ParentID    *string
	IsAdmin     bool
	Token       string
	RemoteIP    string
}

// AdminCommentList is the moderation view: a filtered listing plus totals per status.
type AdminCommentList struct {
	Comments []models.Comment    `json:"comments"`
	Counts   models.CommentCounts `json:"counts"`
}

type CommentService struct {
	store    CommentStore
	verifier BotVerifier
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewCommentService(store CommentStore, verifier BotVerifier, notifier Notifier, m *metrics.Metrics, logger *zap.Logger) *CommentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommentService{
		store:    store,
		verifier: verifier,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// ParseCommentID rejects anything that is not a UUID before storage is touched.
func ParseCommentID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, apperr.Invalid("id", "must be a valid comment id")
	}
	return id, nil
}

// ValidatePageSlug checks the page identifier shape.
func ValidatePageSlug(pageSlug string) error {
	if pageSlug == "" {
		return apperr.Invalid("page_slug", "is required")
	}
	if len(pageSlug) > MaxPageSlugLength || !pageSlugPattern.MatchString(pageSlug) {
		return apperr.Invalid("page_slug", "is not a valid page identifier")
	}
	return nil
}

// buildComment validates the payload and produces the record to insert.
func (s *CommentService) buildComment(in SubmitCommentInput) (*models.Comment, error) {
	pageSlug := strings.TrimSpace(in.PageSlug)
	if err := ValidatePageSlug(pageSlug); err != nil {
		return nil, err
	}

	author := utils.StripHTML(in.AuthorName)
	if author == "" {
		return nil, apperr.Invalid("author_name", "is required")
	}
	if utf8.RuneCountInString(author) > MaxAuthorNameLength {
		return nil, apperr.Invalid("author_name", "is too long")
	}

	content := utils.StripHTML(in.Content)
	switch n := utf8.RuneCountInString(content); {
	case n < MinCommentLength:
		return nil, apperr.Invalid("content", "must be at least 3 characters")
	case n > MaxCommentLength:
		return nil, apperr.Invalid("content", "is too long")
	}

	var email *string
	if in.AuthorEmail != nil {
		if e := strings.TrimSpace(*in.AuthorEmail); e != "" {
			if err := getValidator().Var(e, "email"); err != nil {
				return nil, apperr.Invalid("author_email", "is not a valid email address")
			}
			email = &e
		}
	}

	var parentID *uuid.UUID
	if in.ParentID != nil && strings.TrimSpace(*in.ParentID) != "" {
		pid, err := uuid.Parse(strings.TrimSpace(*in.ParentID))
		if err != nil {
			return nil, apperr.Invalid("parent_id", "must be a valid comment id")
		}
		parentID = &pid
	}

	status := models.CommentStatusPending
	if in.IsAdmin {
		status = models.CommentStatusApproved
	}

	return &models.Comment{
		ID:          uuid.New(),
		PageSlug:    pageSlug,
		AuthorName:  author,
		AuthorEmail: email,
		Content:     content,
		ParentID:    parentID,
		IsAdmin:     in.IsAdmin,
		Status:      status,
		CreatedAt:   s.now().UTC(),
	}, nil
}

// Submit validates, bot-checks (non-admin only) and stores a comment.
// Public submissions are stored pending, admin submissions approved.
func (s *CommentService) Submit(ctx context.Context, in SubmitCommentInput) (*models.Comment, error) {
	c, err := s.buildComment(in)
	if err != nil {
		s.metrics.IncSubmission("invalid")
		return nil, err
	}

	if !in.IsAdmin {
		if strings.TrimSpace(in.Token) == "" {
			s.metrics.IncVerificationFailure(CodeVerificationRequired)
			s.metrics.IncSubmission("unverified")
			return nil, &apperr.VerificationError{Code: CodeVerificationRequired}
		}
		if err := s.verifier.Verify(ctx, in.Token, in.RemoteIP); err != nil {
			var ve *apperr.VerificationError
			if !errors.As(err, &ve) {
				ve = &apperr.VerificationError{Code: CodeVerificationUnavailable, Err: err}
			}
			s.metrics.IncVerificationFailure(ve.Code)
			s.metrics.IncSubmission("unverified")
			s.logger.Info("comment refused by bot check", zap.String("page_slug", c.PageSlug), zap.String("code", ve.Code))
			return nil, ve
		}
	}

	if err := s.store.Insert(ctx, c); err != nil {
		s.metrics.IncSubmission("storage_error")
		return nil, asStorageError("insert comment", err)
	}

	s.metrics.IncSubmission(string(c.Status))
	s.logger.Info("comment stored",
		zap.String("id", c.ID.String()),
		zap.String("page_slug", c.PageSlug),
		zap.String("status", string(c.Status)))

	if c.Status == models.CommentStatusPending && s.notifier != nil {
		s.notifier.NotifyPendingComment(c)
	}
	return c, nil
}

// SubmissionMessage is the reader-facing acknowledgement for a stored comment.
func SubmissionMessage(c *models.Comment) string {
	if c.IsAdmin {
		return "Reply published."
	}
	return "Thanks! Your comment is awaiting moderation."
}

// UpdateStatus moves a comment to status and optionally sets its admin-reply flag.
func (s *CommentService) UpdateStatus(ctx context.Context, rawID, rawStatus string, isAdmin *bool) (*models.Comment, error) {
	id, err := ParseCommentID(rawID)
	if err != nil {
		return nil, err
	}
	status, err := models.ParseCommentStatus(rawStatus)
	if err != nil {
		return nil, apperr.Invalid("status", "must be one of pending, approved, spam")
	}

	c, err := s.store.UpdateStatus(ctx, id, status, isAdmin)
	if err != nil {
		return nil, asStorageError("update comment status", err)
	}
	s.metrics.IncModeration("status_" + string(status))
	s.logger.Info("comment status updated", zap.String("id", id.String()), zap.String("status", string(status)))
	return c, nil
}

func (s *CommentService) Delete(ctx context.Context, rawID string) error {
	id, err := ParseCommentID(rawID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return asStorageError("delete comment", err)
	}
	s.metrics.IncModeration("delete")
	s.logger.Info("comment deleted", zap.String("id", id.String()))
	return nil
}

// ApprovedTree returns the page's approved comments as reply trees.
func (s *CommentService) ApprovedTree(ctx context.Context, pageSlug string) ([]*models.CommentNode, error) {
	if err := ValidatePageSlug(pageSlug); err != nil {
		return nil, err
	}
	flat, err := s.store.ListApproved(ctx, pageSlug)
	if err != nil {
		return nil, asStorageError("list approved comments", err)
	}
	return BuildCommentTree(flat), nil
}

func (s *CommentService) ListForAdmin(ctx context.Context, filter CommentFilter) (*AdminCommentList, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperr.Invalid("status", "must be one of pending, approved, spam")
	}
	if filter.PageSlug != "" {
		if err := ValidatePageSlug(filter.PageSlug); err != nil {
			return nil, err
		}
	}

	comments, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, asStorageError("list comments", err)
	}
	counts, err := s.store.Counts(ctx, filter.PageSlug)
	if err != nil {
		return nil, asStorageError("count comments", err)
	}
	return &AdminCommentList{Comments: comments, Counts: counts}, nil
}

// asStorageError keeps typed store errors and wraps anything else.
func asStorageError(op string, err error) error {
	var se *apperr.StorageError
	var nf *apperr.NotFoundError
	if errors.As(err, &se) || errors.As(err, &nf) {
		return err
	}
	return apperr.Storage(op, err)
}
