package feed

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/d60-Lab/esfera-conectada/internal/model"
	"github.com/d60-Lab/esfera-conectada/internal/repository"
	"github.com/d60-Lab/esfera-conectada/pkg/errs"
)

// Visibility is the slice of the relationship guard the fetcher needs.
type Visibility interface {
	IsVisible(authorID string) bool
	Ready() bool
}

// Fetcher produces guard-filtered, cursor-paged views of the feed and of
// conversations. Hidden rows are dropped silently, never rendered as
// placeholders.
type Fetcher struct {
	posts    repository.PostRepository
	messages repository.MessageRepository
	guard    Visibility
	pageSize int
}

func NewFetcher(posts repository.PostRepository, messages repository.MessageRepository, guard Visibility, pageSize int) *Fetcher {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &Fetcher{posts: posts, messages: messages, guard: guard, pageSize: pageSize}
}

// FeedPage returns one page of the global feed, newest first. An empty
// cursor starts from the head; the returned cursor is empty when exhausted.
func (f *Fetcher) FeedPage(ctx context.Context, cursor string) ([]*model.Post, string, error) {
	cur, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	rows, err := f.posts.ListBefore(ctx, cur, f.pageSize)
	if err != nil {
		return nil, "", errs.FromCall(err)
	}
	out := make([]*model.Post, 0, len(rows))
	for _, p := range rows {
		if f.guard.IsVisible(p.AuthorID) {
			out = append(out, p)
		}
	}
	next := ""
	if len(rows) == f.pageSize {
		// cursor advances over the raw page so hidden rows cannot stall pagination
		last := rows[len(rows)-1]
		next = encodeCursor(last.CreatedAt, last.ID)
	}
	return out, next, nil
}

// ConversationPage returns one page of the conversation between me and peer,
// ordered by creation time ascending regardless of arrival order.
func (f *Fetcher) ConversationPage(ctx context.Context, me, peer, cursor string) ([]*model.Message, string, error) {
	if !f.guard.IsVisible(peer) {
		// blocked either way: render an empty conversation
		return nil, "", nil
	}
	cur, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	rows, err := f.messages.ListConversation(ctx, me, peer, cur, f.pageSize)
	if err != nil {
		return nil, "", errs.FromCall(err)
	}
	next := ""
	if len(rows) == f.pageSize {
		last := rows[len(rows)-1]
		next = encodeCursor(last.CreatedAt, last.ID)
	}
	return rows, next, nil
}

func encodeCursor(t time.Time, id string) string {
	raw := fmt.Sprintf("%d|%s", t.UnixNano(), id)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(s string) (*repository.Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, errs.Validationf("bad cursor")
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return nil, errs.Validationf("bad cursor")
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, errs.Validationf("bad cursor")
	}
	return &repository.Cursor{CreatedAt: time.Unix(0, nanos), ID: parts[1]}, nil
}
