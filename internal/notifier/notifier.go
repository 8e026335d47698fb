package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/esfera-conectada/internal/feed"
	"github.com/d60-Lab/esfera-conectada/internal/model"
	"github.com/d60-Lab/esfera-conectada/internal/realtime"
	"github.com/d60-Lab/esfera-conectada/internal/service"
	"github.com/d60-Lab/esfera-conectada/pkg/logger"
)

// Notifier 实时通知器：为每个会话订阅三类变更流（发给我的私信、
// 我帖子上的互动、新订阅者），把事件并入本地状态。
// 入站事件：actor 被任一方向拉黑则静默丢弃；命中乐观条目则按 id
// 替换对账，否则按到达顺序进入收件箱。
type Notifier struct {
	rdb    *redis.Client
	window time.Duration // 乐观对账的时间戳窗口
}

func New(rdb *redis.Client, window time.Duration) *Notifier {
	if window <= 0 {
		window = 30 * time.Second
	}
	return &Notifier{rdb: rdb, window: window}
}

// Attach 与 Hub.OnAttach 对接：订阅该会话的全部频道，返回停止函数。
func (n *Notifier) Attach(ctx context.Context, sess *service.Session) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	go n.run(ctx, sess)
	return cancel
}

func (n *Notifier) run(ctx context.Context, sess *service.Session) {
	uid := sess.Identity.ID
	topics := []string{
		realtime.MessagesTopic(uid),
		realtime.EngagementTopic(uid),
		realtime.SubscribersTopic(uid),
	}

	// 连接断开后指数退避重连
	backoff := 500 * time.Millisecond
	const maxBackoff = 30 * time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		pubsub := n.rdb.Subscribe(ctx, topics...)
		err := n.receive(ctx, sess, pubsub)
		_ = pubsub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Warn("realtime channel dropped, reconnecting",
			zap.String("user", uid), zap.Duration("backoff", backoff), zap.Error(err))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (n *Notifier) receive(ctx context.Context, sess *service.Session, pubsub *redis.PubSub) error {
	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return errors.New("pubsub channel closed")
			}
			n.handle(sess, msg)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (n *Notifier) handle(sess *service.Session, msg *redis.Message) {
	var ev realtime.Event
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		logger.Warn("bad realtime payload", zap.String("channel", msg.Channel), zap.Error(err))
		return
	}
	// 事件按接收时刻的 epoch 落地；会话已切换则丢弃
	epoch := sess.Epoch()

	switch ev.Table {
	case realtime.TableMessages:
		n.handleMessage(sess, epoch, ev)
	case realtime.TableComments:
		n.handleComment(sess, epoch, ev)
	default:
		// 点赞、新订阅者没有本地乐观条目，直接进收件箱
		n.deliver(sess, epoch, ev)
	}
}

func (n *Notifier) handleMessage(sess *service.Session, epoch int64, ev realtime.Event) {
	var m model.Message
	if err := json.Unmarshal(ev.Row, &m); err != nil {
		return
	}
	me := sess.Identity.ID
	if m.SenderID == me {
		// 自己发出的回声：只做乐观对账，绝不重复插入
		_ = sess.Apply(epoch, func() {
			sess.Pending.Reconcile(feed.EntryMessage, m.ID, m.SenderID, m.Text, m.CreatedAt, n.window)
		})
		return
	}
	if !sess.Guard.IsVisible(m.SenderID) {
		return
	}
	_ = sess.Apply(epoch, func() {
		if !sess.Pending.Reconcile(feed.EntryMessage, m.ID, m.SenderID, m.Text, m.CreatedAt, n.window) {
			sess.Inbox.Append(ev.Table, ev.Row)
		}
	})
}

func (n *Notifier) handleComment(sess *service.Session, epoch int64, ev realtime.Event) {
	var c model.Comment
	if err := json.Unmarshal(ev.Row, &c); err != nil {
		return
	}
	if c.AuthorID != sess.Identity.ID && !sess.Guard.IsVisible(c.AuthorID) {
		return
	}
	_ = sess.Apply(epoch, func() {
		if !sess.Pending.Reconcile(feed.EntryComment, c.ID, c.AuthorID, c.Text, c.CreatedAt, n.window) {
			sess.Inbox.Append(ev.Table, ev.Row)
		}
	})
}

func (n *Notifier) deliver(sess *service.Session, epoch int64, ev realtime.Event) {
	if actor := actorOf(ev); actor != "" && !sess.Guard.IsVisible(actor) {
		return
	}
	_ = sess.Apply(epoch, func() {
		sess.Inbox.Append(ev.Table, ev.Row)
	})
}

// actorOf 从事件行里尽力取出发起者 id
func actorOf(ev realtime.Event) string {
	switch ev.Table {
	case realtime.TableLikes:
		var l model.Like
		if json.Unmarshal(ev.Row, &l) == nil {
			return l.UserID
		}
	case realtime.TableSubscribers:
		var s struct {
			Subscriber string `json:"subscriber"`
		}
		if json.Unmarshal(ev.Row, &s) == nil {
			return s.Subscriber
		}
	}
	return ""
}
