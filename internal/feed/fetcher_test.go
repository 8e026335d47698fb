package feed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/d60-Lab/esfera-conectada/internal/model"
	"github.com/d60-Lab/esfera-conectada/internal/repository"
)

// openGuard hides a fixed set of authors and is always ready
type openGuard struct {
	hidden map[string]bool
}

func (g *openGuard) IsVisible(authorID string) bool { return !g.hidden[authorID] }
func (g *openGuard) Ready() bool                    { return true }

func setupFeedDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Post{}, &model.Message{}))
	return db
}

func seedPosts(t *testing.T, db *gorm.DB, n int, author string) {
	t.Helper()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < n; i++ {
		p := &model.Post{
			ID:        fmt.Sprintf("p%03d", i),
			AuthorID:  author,
			Text:      fmt.Sprintf("post %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, db.Create(p).Error)
	}
}

func TestFeedPagination(t *testing.T) {
	db := setupFeedDB(t)
	seedPosts(t, db, 25, "author")
	f := NewFetcher(repository.NewPostRepository(db), repository.NewMessageRepository(db), &openGuard{}, 10)
	ctx := context.Background()

	page1, cursor, err := f.FeedPage(ctx, "")
	require.NoError(t, err)
	require.Len(t, page1, 10)
	require.NotEmpty(t, cursor)
	// newest first
	require.Equal(t, "p024", page1[0].ID)

	page2, cursor, err := f.FeedPage(ctx, cursor)
	require.NoError(t, err)
	require.Len(t, page2, 10)
	require.NotEmpty(t, cursor)
	require.Equal(t, "p014", page2[0].ID)

	page3, cursor, err := f.FeedPage(ctx, cursor)
	require.NoError(t, err)
	require.Len(t, page3, 5)
	require.Empty(t, cursor)

	// no overlap, no gap across pages
	seen := make(map[string]bool)
	for _, page := range [][]*model.Post{page1, page2, page3} {
		for _, p := range page {
			require.False(t, seen[p.ID], "post %s returned twice", p.ID)
			seen[p.ID] = true
		}
	}
	require.Len(t, seen, 25)
}

func TestFeedHidesBlockedAuthorsWithoutStalling(t *testing.T) {
	db := setupFeedDB(t)
	seedPosts(t, db, 10, "blocked")
	seedPosts2 := func(n int) {
		base := time.Now().Add(-30 * time.Minute)
		for i := 0; i < n; i++ {
			p := &model.Post{
				ID:        fmt.Sprintf("v%03d", i),
				AuthorID:  "visible",
				Text:      "ok",
				CreatedAt: base.Add(time.Duration(i) * time.Second),
			}
			require.NoError(t, db.Create(p).Error)
		}
	}
	seedPosts2(10)

	f := NewFetcher(repository.NewPostRepository(db), repository.NewMessageRepository(db),
		&openGuard{hidden: map[string]bool{"blocked": true}}, 10)
	ctx := context.Background()

	// first page is all from "visible", second page all hidden but the
	// cursor still advances over the raw rows
	page1, cursor, err := f.FeedPage(ctx, "")
	require.NoError(t, err)
	require.Len(t, page1, 10)
	for _, p := range page1 {
		require.Equal(t, "visible", p.AuthorID)
	}
	require.NotEmpty(t, cursor)

	page2, cursor, err := f.FeedPage(ctx, cursor)
	require.NoError(t, err)
	require.Empty(t, page2)
	require.NotEmpty(t, cursor)

	page3, cursor, err := f.FeedPage(ctx, cursor)
	require.NoError(t, err)
	require.Empty(t, page3)
	require.Empty(t, cursor)
}

func TestFeedBadCursor(t *testing.T) {
	db := setupFeedDB(t)
	f := NewFetcher(repository.NewPostRepository(db), repository.NewMessageRepository(db), &openGuard{}, 10)
	_, _, err := f.FeedPage(context.Background(), "!!not-base64!!")
	require.Error(t, err)
}

func TestConversationOrderedByCreation(t *testing.T) {
	db := setupFeedDB(t)
	ctx := context.Background()
	msgs := repository.NewMessageRepository(db)

	// inserted out of order on purpose: rendering follows created_at, not arrival
	base := time.Now().Add(-time.Minute)
	for _, m := range []struct {
		id  string
		off time.Duration
	}{
		{"m3", 3 * time.Second},
		{"m1", 1 * time.Second},
		{"m2", 2 * time.Second},
	} {
		require.NoError(t, db.Create(&model.Message{
			ID: m.id, SenderID: "me", RecipientID: "peer",
			Text: m.id, CreatedAt: base.Add(m.off),
		}).Error)
	}

	f := NewFetcher(repository.NewPostRepository(db), msgs, &openGuard{}, 10)
	page, cursor, err := f.ConversationPage(ctx, "me", "peer", "")
	require.NoError(t, err)
	require.Empty(t, cursor)
	require.Len(t, page, 3)
	require.Equal(t, "m1", page[0].ID)
	require.Equal(t, "m2", page[1].ID)
	require.Equal(t, "m3", page[2].ID)
}

func TestConversationWithBlockedPeerIsEmpty(t *testing.T) {
	db := setupFeedDB(t)
	require.NoError(t, db.Create(&model.Message{
		ID: "m1", SenderID: "peer", RecipientID: "me", Text: "hi", CreatedAt: time.Now(),
	}).Error)

	f := NewFetcher(repository.NewPostRepository(db), repository.NewMessageRepository(db),
		&openGuard{hidden: map[string]bool{"peer": true}}, 10)
	page, cursor, err := f.ConversationPage(context.Background(), "me", "peer", "")
	require.NoError(t, err)
	require.Empty(t, page)
	require.Empty(t, cursor)
}

func TestConversationPagination(t *testing.T) {
	db := setupFeedDB(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 7; i++ {
		require.NoError(t, db.Create(&model.Message{
			ID: fmt.Sprintf("m%02d", i), SenderID: "me", RecipientID: "peer",
			Text: "x", CreatedAt: base.Add(time.Duration(i) * time.Second),
		}).Error)
	}

	f := NewFetcher(repository.NewPostRepository(db), repository.NewMessageRepository(db), &openGuard{}, 5)
	ctx := context.Background()

	page1, cursor, err := f.ConversationPage(ctx, "me", "peer", "")
	require.NoError(t, err)
	require.Len(t, page1, 5)
	require.Equal(t, "m00", page1[0].ID)
	require.NotEmpty(t, cursor)

	page2, cursor, err := f.ConversationPage(ctx, "me", "peer", cursor)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	require.Equal(t, "m05", page2[0].ID)
	require.Empty(t, cursor)
}
