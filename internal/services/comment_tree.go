package services

import (
	"github.com/google/uuid"

	"larder/internal/models"
)

// BuildCommentTree nests a flat comment list into reply trees.
// The input is expected to be approved-only and ordered by created_at ascending;
// the builder keeps that order and does not sort. A comment whose parent is not in
// the list (missing, still pending, on another page) is promoted to the top level.
func BuildCommentTree(flat []models.Comment) []*models.CommentNode {
	index := make(map[uuid.UUID]*models.CommentNode, len(flat))
	nodes := make([]*models.CommentNode, len(flat))
	for i, c := range flat {
		node := &models.CommentNode{Comment: c, Replies: []*models.CommentNode{}}
		nodes[i] = node
		if _, dup := index[c.ID]; !dup {
			index[c.ID] = node
		}
	}

	roots := make([]*models.CommentNode, 0)
	for _, node := range nodes {
		if node.ParentID != nil && *node.ParentID != node.ID {
			if parent, ok := index[*node.ParentID]; ok && !formsCycle(parent, node, index) {
				parent.Replies = append(parent.Replies, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	return roots
}

// formsCycle reports whether following parent links up from candidate leads back to
// node. Such input cannot come from the store, but it must not swallow comments.
func formsCycle(candidate, node *models.CommentNode, index map[uuid.UUID]*models.CommentNode) bool {
	seen := 0
	for cur := candidate; cur != nil && seen <= len(index); seen++ {
		if cur == node {
			return true
		}
		if cur.ParentID == nil {
			return false
		}
		cur = index[*cur.ParentID]
	}
	return seen > len(index)
}

// CountNodes returns the number of comments in a forest.
func CountNodes(roots []*models.CommentNode) int {
	n := 0
	for _, r := range roots {
		n += 1 + CountNodes(r.Replies)
	}
	return n
}
