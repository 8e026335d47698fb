package guard

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/esfera-conectada/internal/repository"
	"github.com/d60-Lab/esfera-conectada/pkg/errs"
	"github.com/d60-Lab/esfera-conectada/pkg/logger"
)

// Sets 某个身份的关系集合，登录/关系变更时整体重算
type Sets struct {
	BlockedByMe  map[string]struct{} // 我拉黑的
	BlockingMe   map[string]struct{} // 拉黑我的
	SubscribedTo map[string]struct{} // 我订阅的
}

// Guard 关系守卫。集合加载失败时 fail closed：
// 所有作者视为不可见、所有写操作被拒，直到重试成功。
type Guard struct {
	blocks repository.BlockRepository
	subs   repository.SubscriptionRepository
	cache  *redis.Client // 可为 nil，直连 DB
	ttl    time.Duration

	mu    sync.RWMutex
	owner string
	sets  *Sets // nil 表示未就绪（fail closed）
}

func New(blocks repository.BlockRepository, subs repository.SubscriptionRepository, cache *redis.Client, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Guard{blocks: blocks, subs: subs, cache: cache, ttl: ttl}
}

// Load 为给定身份整体重算关系集合：优先读 redis 集合缓存，
// 未命中回源 DB 并回填。任一来源失败则保持未就绪。
func (g *Guard) Load(ctx context.Context, userID string) error {
	if sets, ok := g.loadFromCache(ctx, userID); ok {
		g.install(userID, sets)
		return nil
	}

	blocked, err := g.blocks.ListBlocked(ctx, userID)
	if err != nil {
		g.Invalidate()
		return errs.FromCall(err)
	}
	blockers, err := g.blocks.ListBlockers(ctx, userID)
	if err != nil {
		g.Invalidate()
		return errs.FromCall(err)
	}
	targets, err := g.subs.ListTargets(ctx, userID)
	if err != nil {
		g.Invalidate()
		return errs.FromCall(err)
	}

	sets := &Sets{
		BlockedByMe:  toSet(blocked),
		BlockingMe:   toSet(blockers),
		SubscribedTo: toSet(targets),
	}
	g.install(userID, sets)
	g.primeCache(ctx, userID, blocked, blockers, targets)
	return nil
}

func (g *Guard) install(userID string, sets *Sets) {
	g.mu.Lock()
	g.owner = userID
	g.sets = sets
	g.mu.Unlock()
}

// Invalidate 丢弃集合并回到 fail-closed 态（登出、关系变更、加载失败时调用）
func (g *Guard) Invalidate() {
	g.mu.Lock()
	g.sets = nil
	g.mu.Unlock()
}

// InvalidateCache 额外清掉 redis 缓存（拉黑/订阅变更后调用，下次 Load 必回源）
func (g *Guard) InvalidateCache(ctx context.Context, userID string) {
	g.Invalidate()
	if g.cache == nil {
		return
	}
	if err := g.cache.Del(ctx, keyLoaded(userID), keyBlocked(userID), keyBlockers(userID), keySubs(userID)).Err(); err != nil {
		logger.Warn("guard cache invalidate failed", zap.String("user", userID), zap.Error(err))
	}
}

func (g *Guard) Ready() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sets != nil
}

// IsVisible 作者对当前身份可见：不在我拉黑的集合也不在拉黑我的集合。
// 未就绪时一律不可见。
func (g *Guard) IsVisible(authorID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.sets == nil {
		return false
	}
	if authorID == g.owner {
		return true
	}
	if _, ok := g.sets.BlockedByMe[authorID]; ok {
		return false
	}
	if _, ok := g.sets.BlockingMe[authorID]; ok {
		return false
	}
	return true
}

// CanMessage 能否对目标发起写操作（私信/评论/点赞/订阅）
func (g *Guard) CanMessage(targetID string) bool {
	return g.IsVisible(targetID)
}

// IsSubscribed 当前身份是否订阅了目标
func (g *Guard) IsSubscribed(targetID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.sets == nil {
		return false
	}
	_, ok := g.sets.SubscribedTo[targetID]
	return ok
}

func (g *Guard) loadFromCache(ctx context.Context, userID string) (*Sets, bool) {
	if g.cache == nil {
		return nil, false
	}
	loaded, err := g.cache.Exists(ctx, keyLoaded(userID)).Result()
	if err != nil || loaded == 0 {
		return nil, false
	}
	blocked, err := g.cache.SMembers(ctx, keyBlocked(userID)).Result()
	if err != nil {
		return nil, false
	}
	blockers, err := g.cache.SMembers(ctx, keyBlockers(userID)).Result()
	if err != nil {
		return nil, false
	}
	targets, err := g.cache.SMembers(ctx, keySubs(userID)).Result()
	if err != nil {
		return nil, false
	}
	return &Sets{
		BlockedByMe:  toSet(blocked),
		BlockingMe:   toSet(blockers),
		SubscribedTo: toSet(targets),
	}, true
}

func (g *Guard) primeCache(ctx context.Context, userID string, blocked, blockers, targets []string) {
	if g.cache == nil {
		return
	}
	pipe := g.cache.Pipeline()
	for key, members := range map[string][]string{
		keyBlocked(userID):  blocked,
		keyBlockers(userID): blockers,
		keySubs(userID):     targets,
	} {
		pipe.Del(ctx, key)
		if len(members) > 0 {
			pipe.SAdd(ctx, key, toAnySlice(members)...)
		}
		pipe.Expire(ctx, key, g.ttl)
	}
	pipe.Set(ctx, keyLoaded(userID), 1, g.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn("guard cache prime failed", zap.String("user", userID), zap.Error(err))
	}
}

func keyLoaded(uid string) string   { return "rel:loaded:" + uid }
func keyBlocked(uid string) string  { return "rel:blocked:" + uid }
func keyBlockers(uid string) string { return "rel:blockers:" + uid }
func keySubs(uid string) string     { return "rel:subs:" + uid }

func toSet(ids []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func toAnySlice(ids []string) []interface{} {
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
