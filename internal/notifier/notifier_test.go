package notifier

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/d60-Lab/esfera-conectada/internal/feed"
	"github.com/d60-Lab/esfera-conectada/internal/guard"
	"github.com/d60-Lab/esfera-conectada/internal/model"
	"github.com/d60-Lab/esfera-conectada/internal/realtime"
	"github.com/d60-Lab/esfera-conectada/internal/repository"
	"github.com/d60-Lab/esfera-conectada/internal/service"
	"github.com/d60-Lab/esfera-conectada/internal/session"
)

type notifierFixture struct {
	rdb    *redis.Client
	pub    *realtime.Publisher
	blocks repository.BlockRepository
	subs   repository.SubscriptionRepository
}

func setupNotifier(t *testing.T) *notifierFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Block{}, &model.Subscription{}))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return &notifierFixture{
		rdb:    rdb,
		pub:    realtime.NewPublisher(rdb),
		blocks: repository.NewBlockRepository(db),
		subs:   repository.NewSubscriptionRepository(db),
	}
}

// attach 建立一个已登录、守卫就绪、已订阅实时频道的会话
func (fx *notifierFixture) attach(t *testing.T, uid string) (*service.Session, context.CancelFunc) {
	t.Helper()
	sess := &service.Session{
		Identity: session.Identity{ID: uid},
		Tracker:  session.NewTracker(nil),
		Guard:    guard.New(fx.blocks, fx.subs, nil, time.Minute),
		Pending:  feed.NewStore(),
		Inbox:    feed.NewInbox(0),
	}
	t.Cleanup(sess.Tracker.Close)
	sess.Tracker.SignIn(&sess.Identity)
	require.NoError(t, sess.Guard.Load(context.Background(), uid))

	n := New(fx.rdb, 30*time.Second)
	cancel := n.Attach(context.Background(), sess)
	t.Cleanup(cancel)

	// 等订阅真正建立，避免发布先于订阅
	require.Eventually(t, func() bool {
		cnt, err := fx.rdb.PubSubNumSub(context.Background(), realtime.MessagesTopic(uid)).Result()
		return err == nil && cnt[realtime.MessagesTopic(uid)] > 0
	}, 2*time.Second, 10*time.Millisecond)
	return sess, cancel
}

func TestOwnEchoReconcilesWithoutDuplicate(t *testing.T) {
	fx := setupNotifier(t)
	sess, _ := fx.attach(t, "me")
	ctx := context.Background()

	sess.Pending.Insert(feed.EntryMessage, "me", "peer", "oi")
	m := &model.Message{ID: "m1", SenderID: "me", RecipientID: "peer", Text: "oi", CreatedAt: time.Now()}
	require.NoError(t, fx.pub.Publish(ctx, realtime.MessagesTopic("me"), realtime.TableMessages, realtime.EventInsert, m))

	require.Eventually(t, func() bool {
		entries := sess.Pending.Entries()
		return len(entries) == 1 && entries[0].Confirmed && entries[0].ID == "m1"
	}, 2*time.Second, 10*time.Millisecond)

	// 回声绝不二次渲染：收件箱保持为空
	require.Empty(t, sess.Inbox.Items())
}

func TestForeignMessageGoesToInbox(t *testing.T) {
	fx := setupNotifier(t)
	sess, _ := fx.attach(t, "me")
	ctx := context.Background()

	m := &model.Message{ID: "m1", SenderID: "peer", RecipientID: "me", Text: "hola", CreatedAt: time.Now()}
	require.NoError(t, fx.pub.Publish(ctx, realtime.MessagesTopic("me"), realtime.TableMessages, realtime.EventInsert, m))

	require.Eventually(t, func() bool {
		items := sess.Inbox.Items()
		return len(items) == 1 && items[0].Table == realtime.TableMessages
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, sess.Inbox.Unread())
}

func TestBlockedSenderDiscarded(t *testing.T) {
	fx := setupNotifier(t)
	require.NoError(t, fx.blocks.Create(context.Background(), "me", "enemy"))
	sess, _ := fx.attach(t, "me")
	ctx := context.Background()

	m := &model.Message{ID: "m1", SenderID: "enemy", RecipientID: "me", Text: "spam", CreatedAt: time.Now()}
	require.NoError(t, fx.pub.Publish(ctx, realtime.MessagesTopic("me"), realtime.TableMessages, realtime.EventInsert, m))

	// 静默丢弃：既不进收件箱也不报错
	time.Sleep(200 * time.Millisecond)
	require.Empty(t, sess.Inbox.Items())
}

func TestLikeFromBlockedActorDiscarded(t *testing.T) {
	fx := setupNotifier(t)
	require.NoError(t, fx.blocks.Create(context.Background(), "hater", "me"))
	sess, _ := fx.attach(t, "me")
	ctx := context.Background()

	l := &model.Like{ID: "l1", PostID: "p1", UserID: "hater"}
	require.NoError(t, fx.pub.Publish(ctx, realtime.EngagementTopic("me"), realtime.TableLikes, realtime.EventInsert, l))

	time.Sleep(200 * time.Millisecond)
	require.Empty(t, sess.Inbox.Items())
}

func TestLikeEventDelivered(t *testing.T) {
	fx := setupNotifier(t)
	sess, _ := fx.attach(t, "me")
	ctx := context.Background()

	l := &model.Like{ID: "l1", PostID: "p1", UserID: "fan"}
	require.NoError(t, fx.pub.Publish(ctx, realtime.EngagementTopic("me"), realtime.TableLikes, realtime.EventInsert, l))

	require.Eventually(t, func() bool {
		items := sess.Inbox.Items()
		return len(items) == 1 && items[0].Table == realtime.TableLikes
	}, 2*time.Second, 10*time.Millisecond)
}

func TestForeignCommentReconcilesOrDelivers(t *testing.T) {
	fx := setupNotifier(t)
	sess, _ := fx.attach(t, "me")
	ctx := context.Background()

	// 自己的乐观评论经回声对账
	sess.Pending.Insert(feed.EntryComment, "me", "p1", "nice")
	c := &model.Comment{ID: "c1", PostID: "p1", AuthorID: "me", Text: "nice", CreatedAt: time.Now()}
	require.NoError(t, fx.pub.Publish(ctx, realtime.EngagementTopic("me"), realtime.TableComments, realtime.EventInsert, c))

	require.Eventually(t, func() bool {
		entries := sess.Pending.Entries()
		return len(entries) == 1 && entries[0].Confirmed && entries[0].ID == "c1"
	}, 2*time.Second, 10*time.Millisecond)
	require.Empty(t, sess.Inbox.Items())

	// 别人的评论进收件箱
	c2 := &model.Comment{ID: "c2", PostID: "p1", AuthorID: "amiga", Text: "genial", CreatedAt: time.Now()}
	require.NoError(t, fx.pub.Publish(ctx, realtime.EngagementTopic("me"), realtime.TableComments, realtime.EventInsert, c2))
	require.Eventually(t, func() bool {
		return len(sess.Inbox.Items()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDetachStopsDelivery(t *testing.T) {
	fx := setupNotifier(t)
	sess, cancel := fx.attach(t, "me")
	ctx := context.Background()

	cancel()
	// 等订阅拆除
	require.Eventually(t, func() bool {
		cnt, err := fx.rdb.PubSubNumSub(ctx, realtime.MessagesTopic("me")).Result()
		return err == nil && cnt[realtime.MessagesTopic("me")] == 0
	}, 2*time.Second, 10*time.Millisecond)

	m := &model.Message{ID: "m1", SenderID: "peer", RecipientID: "me", Text: "tarde", CreatedAt: time.Now()}
	require.NoError(t, fx.pub.Publish(ctx, realtime.MessagesTopic("me"), realtime.TableMessages, realtime.EventInsert, m))

	time.Sleep(200 * time.Millisecond)
	require.Empty(t, sess.Inbox.Items())
}

func TestBadPayloadIgnored(t *testing.T) {
	fx := setupNotifier(t)
	sess, _ := fx.attach(t, "me")

	require.NoError(t, fx.rdb.Publish(context.Background(), realtime.MessagesTopic("me"), "not-json").Err())
	time.Sleep(200 * time.Millisecond)
	require.Empty(t, sess.Inbox.Items())
}
