package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CommentStatus 评论审核状态
type CommentStatus string

const (
	CommentStatusPending  CommentStatus = "pending"
	CommentStatusApproved CommentStatus = "approved"
	CommentStatusSpam     CommentStatus = "spam"
)

// CommentStatuses lists every valid status, in display order.
var CommentStatuses = []CommentStatus{CommentStatusPending, CommentStatusApproved, CommentStatusSpam}

func (s CommentStatus) Valid() bool {
	switch s {
	case CommentStatusPending, CommentStatusApproved, CommentStatusSpam:
		return true
	}
	return false
}

// ParseCommentStatus accepts exactly pending, approved or spam.
func ParseCommentStatus(raw string) (CommentStatus, error) {
	s := CommentStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown comment status %q", raw)
	}
	return s, nil
}

type Comment struct {
	ID          uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	PageSlug    string        `gorm:"size:200;not null;index:idx_comments_page_status" json:"page_slug"`
	AuthorName  string        `gorm:"size:80;not null" json:"author_name"`
	AuthorEmail *string       `gorm:"size:254" json:"author_email,omitempty"`
	Content     string        `gorm:"type:text;not null" json:"content"`
	ParentID    *uuid.UUID    `gorm:"type:uuid;index" json:"parent_id"` // Nullable for top-level comments
	IsAdmin     bool          `gorm:"default:false;not null" json:"is_admin"`
	Status      CommentStatus `gorm:"size:16;not null;default:'pending';index:idx_comments_page_status" json:"status"`
	CreatedAt   time.Time     `gorm:"not null;index" json:"created_at"`
	// Comments are never edited in place, only re-flagged, so there is no UpdatedAt.
}

// CommentNode is a comment plus its approved replies, built per read.
type CommentNode struct {
	Comment
	Replies []*CommentNode `json:"replies"`
}

// CommentCounts 各状态评论数量，用于管理后台
type CommentCounts struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Spam     int `json:"spam"`
}

// Add adjusts the bucket for status by delta. Buckets never drop below zero.
func (c *CommentCounts) Add(status CommentStatus, delta int) {
	c.Total = clampAdd(c.Total, delta)
	switch status {
	case CommentStatusPending:
		c.Pending = clampAdd(c.Pending, delta)
	case CommentStatusApproved:
		c.Approved = clampAdd(c.Approved, delta)
	case CommentStatusSpam:
		c.Spam = clampAdd(c.Spam, delta)
	}
}

// Move shifts one comment from one status bucket to another, leaving Total unchanged.
func (c *CommentCounts) Move(from, to CommentStatus) {
	if from == to {
		return
	}
	total := c.Total
	c.Add(from, -1)
	c.Add(to, 1)
	c.Total = total
}

func clampAdd(v, delta int) int {
	v += delta
	if v < 0 {
		return 0
	}
	return v
}
