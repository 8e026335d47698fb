package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/d60-Lab/esfera-conectada/pkg/logger"
)

// ErrStaleEpoch 异步结果晚于会话切换抵达，被丢弃
var ErrStaleEpoch = errors.New("session: stale epoch, result discarded")

type ChangeKind int

const (
	SignedIn ChangeKind = iota + 1
	SignedOut
	Refreshed
)

// Change 会话状态迁移事件
type Change struct {
	Kind     ChangeKind
	Identity *Identity // SignedOut 时为 nil
	Epoch    int64
}

// Tracker 跟踪当前会话身份。所有迁移经由单 goroutine 串行处理，
// 每次迁移递增 epoch；携带旧 epoch 的异步结果在 Apply 时被丢弃。
type Tracker struct {
	provider Provider

	cmds chan func()
	done chan struct{}

	mu       sync.RWMutex
	identity *Identity
	epoch    int64

	subMu   sync.Mutex
	subs    map[int]chan Change
	nextSub int
}

func NewTracker(provider Provider) *Tracker {
	t := &Tracker{
		provider: provider,
		cmds:     make(chan func(), 64),
		done:     make(chan struct{}),
		subs:     make(map[int]chan Change),
	}
	go t.loop()
	return t
}

func (t *Tracker) loop() {
	for {
		select {
		case cmd := <-t.cmds:
			cmd()
		case <-t.done:
			return
		}
	}
}

func (t *Tracker) Close() { close(t.done) }

// Resume 启动时的一次性阻塞恢复：校验既有令牌，有效则进入已登录态。
func (t *Tracker) Resume(ctx context.Context, token string) error {
	if token == "" || t.provider == nil {
		return nil
	}
	ident, err := t.provider.GetSession(ctx, token)
	if err != nil {
		return err
	}
	t.SignIn(ident)
	return nil
}

// SignIn 进入已登录态（登录或令牌刷新后的身份替换）
func (t *Tracker) SignIn(ident *Identity) {
	t.transition(func() {
		kind := SignedIn
		if t.identity != nil && ident != nil && t.identity.ID == ident.ID {
			kind = Refreshed
		}
		t.mu.Lock()
		t.identity = ident
		t.epoch++
		epoch := t.epoch
		t.mu.Unlock()
		t.broadcast(Change{Kind: kind, Identity: ident, Epoch: epoch})
	})
}

// SignOut 清空会话：epoch 递增使所有在途结果失效，订阅方据此整体失效缓存。
func (t *Tracker) SignOut() {
	t.transition(func() {
		t.mu.Lock()
		t.identity = nil
		t.epoch++
		epoch := t.epoch
		t.mu.Unlock()
		t.broadcast(Change{Kind: SignedOut, Epoch: epoch})
	})
}

// transition 把迁移送入串行循环并等待其生效
func (t *Tracker) transition(fn func()) {
	ack := make(chan struct{})
	select {
	case t.cmds <- func() { fn(); close(ack) }:
		// Close 与入队竞争时循环可能已退出，不能只等 ack
		select {
		case <-ack:
		case <-t.done:
		}
	case <-t.done:
	}
}

// Current 返回当前身份与 epoch；未登录时 ok 为 false。
func (t *Tracker) Current() (Identity, int64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.identity == nil {
		return Identity{}, t.epoch, false
	}
	return *t.identity, t.epoch, true
}

func (t *Tracker) Epoch() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.epoch
}

// Apply 在串行循环内执行 fn，前提是 epoch 仍是当前值；
// 过期则返回 ErrStaleEpoch，fn 不执行。异步取数的落地一律走这里。
func (t *Tracker) Apply(epoch int64, fn func()) error {
	res := make(chan error, 1)
	select {
	case t.cmds <- func() {
		t.mu.RLock()
		cur := t.epoch
		t.mu.RUnlock()
		if cur != epoch {
			res <- ErrStaleEpoch
			return
		}
		fn()
		res <- nil
	}:
		select {
		case err := <-res:
			return err
		case <-t.done:
			// 已执行完的结果优先于关闭信号
			select {
			case err := <-res:
				return err
			default:
				return ErrStaleEpoch
			}
		}
	case <-t.done:
		return ErrStaleEpoch
	}
}

// Subscribe 订阅会话迁移事件；返回取消函数。
func (t *Tracker) Subscribe() (<-chan Change, func()) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	id := t.nextSub
	t.nextSub++
	ch := make(chan Change, 16)
	t.subs[id] = ch
	return ch, func() {
		t.subMu.Lock()
		defer t.subMu.Unlock()
		if _, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(ch)
		}
	}
}

func (t *Tracker) broadcast(c Change) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for id, ch := range t.subs {
		select {
		case ch <- c:
		default:
			logger.Warn("session subscriber lagging, drop change",
				zap.Int("sub", id), zap.Int64("epoch", c.Epoch))
		}
	}
}
