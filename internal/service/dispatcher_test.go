package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/d60-Lab/esfera-conectada/internal/feed"
	"github.com/d60-Lab/esfera-conectada/internal/guard"
	"github.com/d60-Lab/esfera-conectada/internal/model"
	"github.com/d60-Lab/esfera-conectada/internal/repository"
	"github.com/d60-Lab/esfera-conectada/internal/session"
	"github.com/d60-Lab/esfera-conectada/pkg/errs"
)

type dispatcherFixture struct {
	db         *gorm.DB
	dispatcher *Dispatcher
	fanout     *NotificationFanout

	posts    repository.PostRepository
	likes    repository.LikeRepository
	subs     repository.SubscriptionRepository
	blocks   repository.BlockRepository
	messages repository.MessageRepository
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Post{}, &model.Comment{}, &model.Like{},
		&model.Subscription{}, &model.Message{}, &model.Block{}, &model.Notification{},
	))

	posts := repository.NewPostRepository(db)
	comments := repository.NewCommentRepository(db)
	likes := repository.NewLikeRepository(db)
	subs := repository.NewSubscriptionRepository(db)
	blocks := repository.NewBlockRepository(db)
	messages := repository.NewMessageRepository(db)
	notifs := repository.NewNotificationRepository(db)

	// 扇出不启动 worker：入队即可断言，避免测试竞态
	fanout := NewNotificationFanout(notifs, blocks, nil, 16)
	d := NewDispatcher(posts, comments, likes, subs, blocks, messages, fanout, time.Second)

	return &dispatcherFixture{
		db: db, dispatcher: d, fanout: fanout,
		posts: posts, likes: likes, subs: subs, blocks: blocks, messages: messages,
	}
}

// newSession 建一个已登录、守卫就绪的会话
func (fx *dispatcherFixture) newSession(t *testing.T, uid string) *Session {
	t.Helper()
	sess := &Session{
		Identity: session.Identity{ID: uid, Username: uid},
		Tracker:  session.NewTracker(nil),
		Guard:    guard.New(fx.blocks, fx.subs, nil, time.Minute),
		Pending:  feed.NewStore(),
		Inbox:    feed.NewInbox(0),
	}
	t.Cleanup(sess.Tracker.Close)
	sess.Tracker.SignIn(&sess.Identity)
	require.NoError(t, sess.Guard.Load(context.Background(), uid))
	return sess
}

func TestDispatchWithoutSession(t *testing.T) {
	fx := newDispatcherFixture(t)
	_, err := fx.dispatcher.Dispatch(context.Background(), nil, ActionCreatePost, CreatePostInput{Text: "hi"})
	require.ErrorIs(t, err, errs.ErrAuth)
}

func TestGuardUnreadyFailsClosed(t *testing.T) {
	fx := newDispatcherFixture(t)
	sess := &Session{
		Identity: session.Identity{ID: "me"},
		Tracker:  session.NewTracker(nil),
		Guard:    guard.New(fx.blocks, fx.subs, nil, time.Minute), // 未 Load
		Pending:  feed.NewStore(),
		Inbox:    feed.NewInbox(0),
	}
	t.Cleanup(sess.Tracker.Close)
	sess.Tracker.SignIn(&sess.Identity)

	_, err := fx.dispatcher.Dispatch(context.Background(), sess, ActionCreatePost, CreatePostInput{Text: "hi"})
	require.ErrorIs(t, err, errs.ErrPermission)
}

func TestCreatePostConfirmsOptimisticEntry(t *testing.T) {
	fx := newDispatcherFixture(t)
	sess := fx.newSession(t, "me")

	res, err := fx.dispatcher.Dispatch(context.Background(), sess, ActionCreatePost, CreatePostInput{Text: "hola mundo"})
	require.NoError(t, err)
	post := res.(*model.Post)
	require.NotEmpty(t, post.ID)

	entries := sess.Pending.Entries()
	require.Len(t, entries, 1)
	require.True(t, entries[0].Confirmed)
	require.Equal(t, post.ID, entries[0].ID)

	stored, err := fx.posts.GetByID(context.Background(), post.ID)
	require.NoError(t, err)
	require.Equal(t, "hola mundo", stored.Text)
}

func TestEmptyPostRejectedBeforeCall(t *testing.T) {
	fx := newDispatcherFixture(t)
	sess := fx.newSession(t, "me")

	_, err := fx.dispatcher.Dispatch(context.Background(), sess, ActionCreatePost, CreatePostInput{Text: ""})
	require.ErrorIs(t, err, errs.ErrValidation)
	require.Empty(t, sess.Pending.Entries())
}

func TestMessageToBlockedUserRejectedLocally(t *testing.T) {
	fx := newDispatcherFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.blocks.Create(ctx, "me", "enemy"))
	sess := fx.newSession(t, "me")

	_, err := fx.dispatcher.Dispatch(ctx, sess, ActionMessage, MessageInput{RecipientID: "enemy", Text: "oi"})
	require.ErrorIs(t, err, errs.ErrPermission)

	// 本地拒绝：不产生乐观条目，也不落任何消息行
	require.Empty(t, sess.Pending.Entries())
	var cnt int64
	require.NoError(t, fx.db.Model(&model.Message{}).Count(&cnt).Error)
	require.Zero(t, cnt)
}

func TestMessageFromBlockerRejectedLocally(t *testing.T) {
	fx := newDispatcherFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.blocks.Create(ctx, "enemy", "me"))
	sess := fx.newSession(t, "me")

	_, err := fx.dispatcher.Dispatch(ctx, sess, ActionMessage, MessageInput{RecipientID: "enemy", Text: "oi"})
	require.ErrorIs(t, err, errs.ErrPermission)
}

func TestSelfRelationRejected(t *testing.T) {
	fx := newDispatcherFixture(t)
	sess := fx.newSession(t, "me")
	ctx := context.Background()

	_, err := fx.dispatcher.Dispatch(ctx, sess, ActionSubscribe, RelationInput{TargetID: "me"})
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = fx.dispatcher.Dispatch(ctx, sess, ActionBlock, RelationInput{TargetID: "me"})
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = fx.dispatcher.Dispatch(ctx, sess, ActionMessage, MessageInput{RecipientID: "me", Text: "eco"})
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestDoubleLikeRejected(t *testing.T) {
	fx := newDispatcherFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.db.Create(&model.Post{ID: "p1", AuthorID: "other", Text: "x"}).Error)
	sess := fx.newSession(t, "me")

	_, err := fx.dispatcher.Dispatch(ctx, sess, ActionLike, LikeInput{PostID: "p1"})
	require.NoError(t, err)

	_, err = fx.dispatcher.Dispatch(ctx, sess, ActionLike, LikeInput{PostID: "p1"})
	require.ErrorIs(t, err, errs.ErrValidation)

	cnt, err := fx.likes.CountByPost(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, int64(1), cnt)
}

func TestCommentOnMissingPost(t *testing.T) {
	fx := newDispatcherFixture(t)
	sess := fx.newSession(t, "me")

	_, err := fx.dispatcher.Dispatch(context.Background(), sess, ActionComment, CommentInput{PostID: "nope", Text: "hi"})
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.Empty(t, sess.Pending.Entries())
}

func TestCommentFansOutToAuthor(t *testing.T) {
	fx := newDispatcherFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.db.Create(&model.Post{ID: "p1", AuthorID: "author", Text: "x"}).Error)
	sess := fx.newSession(t, "me")

	_, err := fx.dispatcher.Dispatch(ctx, sess, ActionComment, CommentInput{PostID: "p1", Text: "nice"})
	require.NoError(t, err)
	require.Equal(t, 1, fx.fanout.QueueLen())
}

func TestCommentOnOwnPostNoFanout(t *testing.T) {
	fx := newDispatcherFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.db.Create(&model.Post{ID: "p1", AuthorID: "me", Text: "x"}).Error)
	sess := fx.newSession(t, "me")

	_, err := fx.dispatcher.Dispatch(ctx, sess, ActionComment, CommentInput{PostID: "p1", Text: "self"})
	require.NoError(t, err)
	require.Zero(t, fx.fanout.QueueLen())
}

func TestBlockRecomputesGuard(t *testing.T) {
	fx := newDispatcherFixture(t)
	ctx := context.Background()
	sess := fx.newSession(t, "me")
	require.True(t, sess.Guard.IsVisible("target"))

	_, err := fx.dispatcher.Dispatch(ctx, sess, ActionBlock, RelationInput{TargetID: "target"})
	require.NoError(t, err)
	require.True(t, sess.Guard.Ready())
	require.False(t, sess.Guard.IsVisible("target"))

	// 解除拉黑只整体重算集合，不回放历史
	_, err = fx.dispatcher.Dispatch(ctx, sess, ActionUnblock, RelationInput{TargetID: "target"})
	require.NoError(t, err)
	require.True(t, sess.Guard.IsVisible("target"))
}

func TestSubscribeRecordsRelation(t *testing.T) {
	fx := newDispatcherFixture(t)
	ctx := context.Background()
	sess := fx.newSession(t, "me")

	_, err := fx.dispatcher.Dispatch(ctx, sess, ActionSubscribe, RelationInput{TargetID: "star"})
	require.NoError(t, err)
	require.True(t, sess.Guard.IsSubscribed("star"))
	require.Equal(t, 1, fx.fanout.QueueLen())

	exists, err := fx.subs.Exists(ctx, "star", "me")
	require.NoError(t, err)
	require.True(t, exists)

	_, err = fx.dispatcher.Dispatch(ctx, sess, ActionUnsubscribe, RelationInput{TargetID: "star"})
	require.NoError(t, err)
	require.False(t, sess.Guard.IsSubscribed("star"))
}

func TestSubscribeToBlockerRejected(t *testing.T) {
	fx := newDispatcherFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.blocks.Create(ctx, "star", "me"))
	sess := fx.newSession(t, "me")

	_, err := fx.dispatcher.Dispatch(ctx, sess, ActionSubscribe, RelationInput{TargetID: "star"})
	require.ErrorIs(t, err, errs.ErrPermission)
}

func TestMessageRollbackOnFailure(t *testing.T) {
	fx := newDispatcherFixture(t)
	ctx := context.Background()
	sess := fx.newSession(t, "me")

	// 删表制造写失败：乐观条目必须回滚
	require.NoError(t, fx.db.Migrator().DropTable(&model.Message{}))
	_, err := fx.dispatcher.Dispatch(ctx, sess, ActionMessage, MessageInput{RecipientID: "peer", Text: "oi"})
	require.Error(t, err)
	require.True(t, errs.Retryable(err))
	require.Empty(t, sess.Pending.Entries())
}

func TestDeletePostOwnerOnly(t *testing.T) {
	fx := newDispatcherFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.db.Create(&model.Post{ID: "p1", AuthorID: "other", Text: "x"}).Error)
	sess := fx.newSession(t, "me")

	_, err := fx.dispatcher.Dispatch(ctx, sess, ActionDeletePost, DeletePostInput{PostID: "p1"})
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, fx.db.Create(&model.Post{ID: "p2", AuthorID: "me", Text: "mine"}).Error)
	_, err = fx.dispatcher.Dispatch(ctx, sess, ActionDeletePost, DeletePostInput{PostID: "p2"})
	require.NoError(t, err)
}

func TestMessageEnqueuesEchoTopic(t *testing.T) {
	fx := newDispatcherFixture(t)
	ctx := context.Background()
	sess := fx.newSession(t, "me")

	res, err := fx.dispatcher.Dispatch(ctx, sess, ActionMessage, MessageInput{RecipientID: "peer", Text: "oi"})
	require.NoError(t, err)
	m := res.(*model.Message)
	require.NotEmpty(t, m.ID)
	require.Equal(t, 1, fx.fanout.QueueLen())

	entries := sess.Pending.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, m.ID, entries[0].ID)
	require.True(t, entries[0].Confirmed)
}
