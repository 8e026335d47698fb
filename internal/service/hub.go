package service

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/esfera-conectada/internal/feed"
	"github.com/d60-Lab/esfera-conectada/internal/guard"
	"github.com/d60-Lab/esfera-conectada/internal/repository"
	"github.com/d60-Lab/esfera-conectada/internal/session"
	"github.com/d60-Lab/esfera-conectada/pkg/logger"
)

// Session 一个在线用户的同步状态：会话跟踪器 + 关系守卫 + 乐观条目。
// 缓存独占归属于当前 epoch，旧 epoch 的在途结果在 Apply 时被丢弃。
type Session struct {
	Identity session.Identity
	Tracker  *session.Tracker
	Guard    *guard.Guard
	Pending  *feed.Store
	Inbox    *feed.Inbox

	cancelRT context.CancelFunc
}

// Epoch 当前会话 epoch（在发起异步操作前采样）
func (s *Session) Epoch() int64 { return s.Tracker.Epoch() }

// Apply 携带采样 epoch 落地异步结果；会话已切换则丢弃
func (s *Session) Apply(epoch int64, fn func()) error { return s.Tracker.Apply(epoch, fn) }

// Confirm 乐观条目确权，epoch 过期时不落地
func (s *Session) Confirm(epoch int64, tempID, id string) error {
	return s.Tracker.Apply(epoch, func() { s.Pending.Confirm(tempID, id) })
}

// Hub 维护每个已登录用户的同步状态生命周期
type Hub struct {
	blocks   repository.BlockRepository
	subs     repository.SubscriptionRepository
	rdb      *redis.Client
	guardTTL time.Duration

	// OnAttach 会话建立后启动实时订阅，返回停止函数（由 notifier 注入）
	OnAttach func(ctx context.Context, sess *Session) context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewHub(blocks repository.BlockRepository, subs repository.SubscriptionRepository, rdb *redis.Client, guardTTL time.Duration) *Hub {
	return &Hub{
		blocks:   blocks,
		subs:     subs,
		rdb:      rdb,
		guardTTL: guardTTL,
		sessions: make(map[string]*Session),
	}
}

// Attach 取得（或建立）该身份的同步状态。守卫加载失败不阻断登录，
// 但在重试成功前保持 fail closed。
func (h *Hub) Attach(ctx context.Context, ident session.Identity) *Session {
	h.mu.Lock()
	sess, ok := h.sessions[ident.ID]
	if !ok {
		sess = &Session{
			Identity: ident,
			Tracker:  session.NewTracker(nil),
			Guard:    guard.New(h.blocks, h.subs, h.rdb, h.guardTTL),
			Pending:  feed.NewStore(),
			Inbox:    feed.NewInbox(0),
		}
		h.sessions[ident.ID] = sess
		h.mu.Unlock()

		sess.Tracker.SignIn(&ident)
		if err := sess.Guard.Load(ctx, ident.ID); err != nil {
			logger.Warn("relationship load failed, guard stays closed",
				zap.String("user", ident.ID), zap.Error(err))
		}
		if h.OnAttach != nil {
			sess.cancelRT = h.OnAttach(context.Background(), sess)
		}
		return sess
	}
	h.mu.Unlock()
	if !sess.Guard.Ready() {
		// 上次加载失败，按 fail-closed 约定重试
		_ = sess.Guard.Load(ctx, ident.ID)
	}
	return sess
}

// Get 只读取已存在的状态
func (h *Hub) Get(userID string) (*Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sess, ok := h.sessions[userID]
	return sess, ok
}

// Detach 登出：epoch 递增使在途结果失效，缓存整体清空而非局部修补。
func (h *Hub) Detach(ctx context.Context, userID string) {
	h.mu.Lock()
	sess, ok := h.sessions[userID]
	if ok {
		delete(h.sessions, userID)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	if sess.cancelRT != nil {
		sess.cancelRT()
	}
	sess.Tracker.SignOut()
	sess.Guard.InvalidateCache(ctx, userID)
	sess.Pending.Clear()
	sess.Inbox.Clear()
	sess.Tracker.Close()
}

// Shutdown 停机时拆除全部会话
func (h *Hub) Shutdown(ctx context.Context) {
	h.mu.Lock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	h.mu.Unlock()
	for _, id := range ids {
		h.Detach(ctx, id)
	}
}
