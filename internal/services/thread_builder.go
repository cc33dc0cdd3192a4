// Package services – ThreadBuilder
//
// ThreadBuilder reconstructs the reply tree below a message. Descendants are
// fetched level by level (one query per depth, IN lists chunked by the
// repository) and linked through an index keyed by message ID, so neither
// query count nor stack depth grows with the number of nodes.
package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-messaging-backend/internal/domain"
	"github.com/tbourn/go-messaging-backend/internal/repo"
)

// ThreadNode is one message of a thread with its direct replies, ordered by
// (CreatedAt, ID) ascending.
type ThreadNode struct {
	ID         string        `json:"id"`
	SenderID   string        `json:"sender_id"`
	ReceiverID string        `json:"receiver_id"`
	ParentID   *string       `json:"parent_id,omitempty"`
	Content    string        `json:"content"`
	Edited     bool          `json:"edited"`
	Read       bool          `json:"read"`
	CreatedAt  time.Time     `json:"created_at"`
	Replies    []*ThreadNode `json:"replies"`
}

func newThreadNode(m *domain.Message) *ThreadNode {
	return &ThreadNode{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		ParentID:   m.ParentID,
		Content:    m.Content,
		Edited:     m.Edited,
		Read:       m.Read,
		CreatedAt:  m.CreatedAt,
		Replies:    []*ThreadNode{},
	}
}

// Size returns the number of nodes in the subtree rooted at n.
func (n *ThreadNode) Size() int {
	count := 0
	stack := []*ThreadNode{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		count++
		stack = append(stack, cur.Replies...)
	}
	return count
}

// ThreadBuilder reads reply trees.
type ThreadBuilder struct {
	DB *gorm.DB
	// MaxDepth limits how many reply levels are returned; 0 means unbounded.
	MaxDepth int
}

// Build returns the thread rooted at rootID, or ErrMessageNotFound.
func (b *ThreadBuilder) Build(ctx context.Context, rootID string) (*ThreadNode, error) {
	ctx, span := otel.Tracer("services/ThreadBuilder").Start(ctx, "Build",
		trace.WithAttributes(
			attribute.String("message.id", rootID),
			attribute.Int("max_depth", b.MaxDepth),
		),
	)
	defer span.End()

	root, err := repo.GetMessage(ctx, b.DB, rootID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, wrapStore("get thread root", err)
	}

	tree := newThreadNode(root)
	index := map[string]*ThreadNode{root.ID: tree}
	frontier := []string{root.ID}

	depth := 0
	for len(frontier) > 0 && (b.MaxDepth <= 0 || depth < b.MaxDepth) {
		children, err := repo.ListChildren(ctx, b.DB, frontier)
		if err != nil {
			return nil, wrapStore("list replies", err)
		}
		next := make([]string, 0, len(children))
		for i := range children {
			c := &children[i]
			if _, seen := index[c.ID]; seen || c.ParentID == nil {
				continue
			}
			parent, ok := index[*c.ParentID]
			if !ok {
				continue
			}
			node := newThreadNode(c)
			parent.Replies = append(parent.Replies, node)
			index[c.ID] = node
			next = append(next, c.ID)
		}
		frontier = next
		depth++
	}
	span.SetAttributes(
		attribute.Int("thread.levels", depth),
		attribute.Int("thread.size", len(index)),
	)
	return tree, nil
}
