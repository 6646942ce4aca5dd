package commentclient

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"larder/internal/apperr"
	"larder/internal/models"
)

// DefaultRefreshDelay is the wait between a successful mutation and the
// reconciling reload.
const DefaultRefreshDelay = time.Second

// ModerationAPI is the remote side of the moderation view. *Client implements it.
type ModerationAPI interface {
	ListAdmin(ctx context.Context, filter AdminFilter) (*AdminView, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.CommentStatus, isAdmin *bool) (*models.Comment, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ModerationState is what the moderation view renders.
type ModerationState struct {
	Comments []models.Comment
	Counts   models.CommentCounts
}

func (s ModerationState) clone() ModerationState {
	return ModerationState{
		Comments: append([]models.Comment(nil), s.Comments...),
		Counts:   s.Counts,
	}
}

func (s ModerationState) index(id uuid.UUID) int {
	for i := range s.Comments {
		if s.Comments[i].ID == id {
			return i
		}
	}
	return -1
}

// ModerationController applies status changes and deletes to local state before the
// server confirms them, and rolls back when the server refuses.
//
// Mutations on the same comment id run one at a time. Mutations on different ids may
// overlap; a failed one then reverts only its own record instead of the whole view.
type ModerationController struct {
	api          ModerationAPI
	filter       AdminFilter
	refreshDelay time.Duration
	logger       *zap.Logger

	locks   *keyedMutex
	refresh *refresher

	mu      sync.Mutex
	state   ModerationState
	version uint64 // bumped on every state change
}

type ControllerOption func(*ModerationController)

func WithRefreshDelay(d time.Duration) ControllerOption {
	return func(c *ModerationController) { c.refreshDelay = d }
}

func WithFilter(f AdminFilter) ControllerOption {
	return func(c *ModerationController) { c.filter = f }
}

func WithLogger(l *zap.Logger) ControllerOption {
	return func(c *ModerationController) { c.logger = l }
}

// NewModerationController starts the background refresh worker; call Close when done.
func NewModerationController(api ModerationAPI, opts ...ControllerOption) *ModerationController {
	c := &ModerationController{
		api:          api,
		refreshDelay: DefaultRefreshDelay,
		logger:       zap.NewNop(),
		locks:        newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.refresh = newRefresher(c.Load, c.refreshDelay, c.logger)
	return c
}

// Load replaces local state with the server's listing.
func (c *ModerationController) Load(ctx context.Context) error {
	view, err := c.api.ListAdmin(ctx, c.filter)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = ModerationState{
		Comments: append([]models.Comment(nil), view.Comments...),
		Counts:   view.Counts,
	}
	c.version++
	return nil
}

// State returns a copy of the current view.
func (c *ModerationController) State() ModerationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// RefreshPending reports whether a reconciling reload is scheduled.
func (c *ModerationController) RefreshPending() bool {
	return c.refresh.Pending()
}

// apply runs mutate under the state lock and returns the snapshot taken just before
// it plus the version that identifies the mutated state.
func (c *ModerationController) apply(mutate func(s *ModerationState)) (ModerationState, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := c.state.clone()
	mutate(&c.state)
	c.version++
	return snapshot, c.version
}

// rollback restores snapshot when nothing changed state since applied; otherwise
// it undoes just this mutation with revert.
func (c *ModerationController) rollback(snapshot ModerationState, applied uint64, revert func(s *ModerationState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.version == applied {
		c.state = snapshot
	} else {
		revert(&c.state)
	}
	c.version++
}

// UpdateStatus moves a comment to status (and optionally sets its admin flag) locally,
// then on the server. On failure local state is restored and the error returned.
func (c *ModerationController) UpdateStatus(ctx context.Context, id uuid.UUID, status models.CommentStatus, isAdmin *bool) error {
	if !status.Valid() {
		return apperr.Invalid("status", "must be one of pending, approved, spam")
	}

	unlock := c.locks.Lock(id.String())
	defer unlock()

	var (
		prev  models.Comment
		found bool
	)
	snapshot, applied := c.apply(func(s *ModerationState) {
		i := s.index(id)
		if i < 0 {
			return
		}
		prev, found = s.Comments[i], true
		s.Comments[i].Status = status
		if isAdmin != nil {
			s.Comments[i].IsAdmin = *isAdmin
		}
		s.Counts.Move(prev.Status, status)
	})

	updated, err := c.api.UpdateStatus(ctx, id, status, isAdmin)
	if err != nil {
		c.rollback(snapshot, applied, func(s *ModerationState) {
			if !found {
				return
			}
			if i := s.index(id); i >= 0 {
				s.Comments[i].Status = prev.Status
				s.Comments[i].IsAdmin = prev.IsAdmin
				s.Counts.Move(status, prev.Status)
			}
		})
		c.logger.Warn("status update rolled back", zap.String("id", id.String()), zap.Error(err))
		return err
	}

	if updated != nil {
		c.mu.Lock()
		if i := c.state.index(id); i >= 0 {
			c.state.Comments[i] = *updated
			c.version++
		}
		c.mu.Unlock()
	}
	c.refresh.Schedule()
	return nil
}

// Delete removes a comment locally, then on the server. On failure the comment and
// counts are restored and the error returned.
func (c *ModerationController) Delete(ctx context.Context, id uuid.UUID) error {
	unlock := c.locks.Lock(id.String())
	defer unlock()

	var (
		removed models.Comment
		at      = -1
	)
	snapshot, applied := c.apply(func(s *ModerationState) {
		i := s.index(id)
		if i < 0 {
			return
		}
		removed, at = s.Comments[i], i
		s.Comments = append(s.Comments[:i], s.Comments[i+1:]...)
		s.Counts.Add(removed.Status, -1)
	})

	if err := c.api.Delete(ctx, id); err != nil {
		c.rollback(snapshot, applied, func(s *ModerationState) {
			if at < 0 || s.index(id) >= 0 {
				return
			}
			i := min(at, len(s.Comments))
			s.Comments = append(s.Comments[:i], append([]models.Comment{removed}, s.Comments[i:]...)...)
			s.Counts.Add(removed.Status, 1)
		})
		c.logger.Warn("delete rolled back", zap.String("id", id.String()), zap.Error(err))
		return err
	}

	c.refresh.Schedule()
	return nil
}

// Close stops the refresh worker. Pending refreshes are dropped.
func (c *ModerationController) Close() {
	c.refresh.Stop()
}
