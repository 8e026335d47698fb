package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/d60-Lab/esfera-conectada/internal/feed"
	"github.com/d60-Lab/esfera-conectada/internal/model"
	"github.com/d60-Lab/esfera-conectada/internal/realtime"
	"github.com/d60-Lab/esfera-conectada/internal/repository"
	"github.com/d60-Lab/esfera-conectada/pkg/errs"
)

// Action 变更动作
type Action int

const (
	ActionCreatePost Action = iota + 1
	ActionDeletePost
	ActionComment
	ActionLike
	ActionUnlike
	ActionSubscribe
	ActionUnsubscribe
	ActionBlock
	ActionUnblock
	ActionMessage
)

type CreatePostInput struct {
	Text     string `json:"text" validate:"required,max=4000"`
	MediaURL string `json:"media_url" validate:"omitempty,max=256"`
}

type DeletePostInput struct {
	PostID string `json:"post_id" validate:"required"`
}

type CommentInput struct {
	PostID string `json:"post_id" validate:"required"`
	Text   string `json:"text" validate:"required,max=2000"`
}

type LikeInput struct {
	PostID string `json:"post_id" validate:"required"`
}

type RelationInput struct {
	TargetID string `json:"target_id" validate:"required"`
}

type MessageInput struct {
	RecipientID string `json:"recipient_id" validate:"required"`
	Text        string `json:"text" validate:"required,max=4000"`
}

// Dispatcher 变更分发器：唯一的写入口。所有本地可判定的前置条件
// （空文本、自订阅、重复赞、拉黑关系）在发起网络调用之前拒绝；
// 成功后套用乐观更新并触发通知扇出，失败则回滚乐观条目。
type Dispatcher struct {
	posts    repository.PostRepository
	comments repository.CommentRepository
	likes    repository.LikeRepository
	subs     repository.SubscriptionRepository
	blocks   repository.BlockRepository
	messages repository.MessageRepository

	fanout   *NotificationFanout
	validate *validator.Validate
	timeout  time.Duration
}

func NewDispatcher(
	posts repository.PostRepository,
	comments repository.CommentRepository,
	likes repository.LikeRepository,
	subs repository.SubscriptionRepository,
	blocks repository.BlockRepository,
	messages repository.MessageRepository,
	fanout *NotificationFanout,
	timeout time.Duration,
) *Dispatcher {
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	return &Dispatcher{
		posts:    posts,
		comments: comments,
		likes:    likes,
		subs:     subs,
		blocks:   blocks,
		messages: messages,
		fanout:   fanout,
		validate: validator.New(),
		timeout:  timeout,
	}
}

// Dispatch 单一入口；payload 类型与 action 对应。
func (d *Dispatcher) Dispatch(ctx context.Context, sess *Session, action Action, payload any) (any, error) {
	if sess == nil || sess.Identity.ID == "" {
		return nil, errs.ErrAuth
	}
	switch action {
	case ActionCreatePost:
		in, err := payloadAs[CreatePostInput](d, payload)
		if err != nil {
			return nil, err
		}
		return d.createPost(ctx, sess, in)
	case ActionDeletePost:
		in, err := payloadAs[DeletePostInput](d, payload)
		if err != nil {
			return nil, err
		}
		return nil, d.deletePost(ctx, sess, in)
	case ActionComment:
		in, err := payloadAs[CommentInput](d, payload)
		if err != nil {
			return nil, err
		}
		return d.comment(ctx, sess, in)
	case ActionLike:
		in, err := payloadAs[LikeInput](d, payload)
		if err != nil {
			return nil, err
		}
		return nil, d.like(ctx, sess, in)
	case ActionUnlike:
		in, err := payloadAs[LikeInput](d, payload)
		if err != nil {
			return nil, err
		}
		return nil, d.unlike(ctx, sess, in)
	case ActionSubscribe:
		in, err := payloadAs[RelationInput](d, payload)
		if err != nil {
			return nil, err
		}
		return nil, d.subscribe(ctx, sess, in)
	case ActionUnsubscribe:
		in, err := payloadAs[RelationInput](d, payload)
		if err != nil {
			return nil, err
		}
		return nil, d.unsubscribe(ctx, sess, in)
	case ActionBlock:
		in, err := payloadAs[RelationInput](d, payload)
		if err != nil {
			return nil, err
		}
		return nil, d.block(ctx, sess, in)
	case ActionUnblock:
		in, err := payloadAs[RelationInput](d, payload)
		if err != nil {
			return nil, err
		}
		return nil, d.unblock(ctx, sess, in)
	case ActionMessage:
		in, err := payloadAs[MessageInput](d, payload)
		if err != nil {
			return nil, err
		}
		return d.message(ctx, sess, in)
	default:
		return nil, errs.Validationf("unknown action %d", action)
	}
}

func payloadAs[T any](d *Dispatcher, payload any) (T, error) {
	in, ok := payload.(T)
	if !ok {
		var zero T
		if p, ok := payload.(*T); ok {
			in = *p
		} else {
			return zero, errs.Validationf("payload type mismatch")
		}
	}
	if err := d.validate.Struct(in); err != nil {
		var zero T
		return zero, errs.Validationf("%v", err)
	}
	return in, nil
}

func (d *Dispatcher) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.timeout)
}

// requireGuard 守卫未就绪时拒绝一切写操作（fail closed）
func requireGuard(sess *Session) error {
	if !sess.Guard.Ready() {
		return errs.Permissionf("relationships unavailable, retry")
	}
	return nil
}

func (d *Dispatcher) createPost(ctx context.Context, sess *Session, in CreatePostInput) (*model.Post, error) {
	if err := requireGuard(sess); err != nil {
		return nil, err
	}
	me := sess.Identity.ID
	epoch := sess.Epoch()
	entry := sess.Pending.Insert(feed.EntryPost, me, "", in.Text)

	cctx, cancel := d.call(ctx)
	defer cancel()
	post := &model.Post{ID: uuid.New().String(), AuthorID: me, Text: in.Text, MediaURL: in.MediaURL}
	if err := d.posts.Create(cctx, post); err != nil {
		sess.Pending.Rollback(entry.TempID)
		return nil, errs.FromCall(err)
	}
	if err := sess.Confirm(epoch, entry.TempID, post.ID); err != nil {
		return nil, err
	}
	return post, nil
}

func (d *Dispatcher) deletePost(ctx context.Context, sess *Session, in DeletePostInput) error {
	cctx, cancel := d.call(ctx)
	defer cancel()
	return errs.FromCall(d.posts.DeleteOwned(cctx, in.PostID, sess.Identity.ID))
}

func (d *Dispatcher) comment(ctx context.Context, sess *Session, in CommentInput) (*model.Comment, error) {
	if err := requireGuard(sess); err != nil {
		return nil, err
	}
	me := sess.Identity.ID

	cctx, cancel := d.call(ctx)
	defer cancel()
	post, err := d.posts.GetByID(cctx, in.PostID)
	if err != nil {
		return nil, errs.FromCall(err)
	}
	// 拉黑关系下不发起写调用
	if !sess.Guard.CanMessage(post.AuthorID) {
		return nil, errs.Permissionf("cannot comment on this author")
	}

	epoch := sess.Epoch()
	entry := sess.Pending.Insert(feed.EntryComment, me, in.PostID, in.Text)
	c, err := d.comments.Create(cctx, in.PostID, me, in.Text)
	if err != nil {
		sess.Pending.Rollback(entry.TempID)
		return nil, errs.FromCall(err)
	}
	if err := sess.Confirm(epoch, entry.TempID, c.ID); err != nil {
		return nil, err
	}
	if post.AuthorID != me {
		d.fanout.Enqueue(post.AuthorID, model.NotificationPayload{
			Kind:      model.NotifyNewComment,
			ActorID:   me,
			PostID:    post.ID,
			CommentID: c.ID,
			Preview:   preview(in.Text),
		}, realtime.TableComments, c, "")
	}
	return c, nil
}

func (d *Dispatcher) like(ctx context.Context, sess *Session, in LikeInput) error {
	if err := requireGuard(sess); err != nil {
		return err
	}
	me := sess.Identity.ID

	cctx, cancel := d.call(ctx)
	defer cancel()
	post, err := d.posts.GetByID(cctx, in.PostID)
	if err != nil {
		return errs.FromCall(err)
	}
	if !sess.Guard.CanMessage(post.AuthorID) {
		return errs.Permissionf("cannot like this author's post")
	}
	// 尽力去重；最终唯一性仍由 (post,user) 唯一索引兜底
	exists, err := d.likes.Exists(cctx, in.PostID, me)
	if err != nil {
		return errs.FromCall(err)
	}
	if exists {
		return errs.Validationf("duplicate like")
	}
	l, err := d.likes.Create(cctx, in.PostID, me)
	if err != nil {
		return errs.FromCall(err)
	}
	if post.AuthorID != me {
		d.fanout.Enqueue(post.AuthorID, model.NotificationPayload{
			Kind:    model.NotifyNewLike,
			ActorID: me,
			PostID:  post.ID,
		}, realtime.TableLikes, l, "")
	}
	return nil
}

func (d *Dispatcher) unlike(ctx context.Context, sess *Session, in LikeInput) error {
	cctx, cancel := d.call(ctx)
	defer cancel()
	return errs.FromCall(d.likes.Delete(cctx, in.PostID, sess.Identity.ID))
}

func (d *Dispatcher) subscribe(ctx context.Context, sess *Session, in RelationInput) error {
	me := sess.Identity.ID
	if in.TargetID == me {
		return errs.Validationf("cannot subscribe to self")
	}
	if err := requireGuard(sess); err != nil {
		return err
	}
	if !sess.Guard.CanMessage(in.TargetID) {
		return errs.Permissionf("cannot subscribe to this user")
	}

	cctx, cancel := d.call(ctx)
	defer cancel()
	if err := d.subs.Create(cctx, in.TargetID, me); err != nil {
		return errs.FromCall(err)
	}
	d.refreshGuard(ctx, sess)
	d.fanout.Enqueue(in.TargetID, model.NotificationPayload{
		Kind:    model.NotifyNewSubscriber,
		ActorID: me,
	}, realtime.TableSubscribers, map[string]string{"target": in.TargetID, "subscriber": me}, "")
	return nil
}

func (d *Dispatcher) unsubscribe(ctx context.Context, sess *Session, in RelationInput) error {
	cctx, cancel := d.call(ctx)
	defer cancel()
	if err := d.subs.Delete(cctx, in.TargetID, sess.Identity.ID); err != nil {
		return errs.FromCall(err)
	}
	d.refreshGuard(ctx, sess)
	return nil
}

func (d *Dispatcher) block(ctx context.Context, sess *Session, in RelationInput) error {
	me := sess.Identity.ID
	if in.TargetID == me {
		return errs.Validationf("cannot block self")
	}
	cctx, cancel := d.call(ctx)
	defer cancel()
	if err := d.blocks.Create(cctx, me, in.TargetID); err != nil {
		return errs.FromCall(err)
	}
	d.refreshGuard(ctx, sess)
	return nil
}

// unblock 解除拉黑后不做历史回放，只整体重算关系集合
func (d *Dispatcher) unblock(ctx context.Context, sess *Session, in RelationInput) error {
	cctx, cancel := d.call(ctx)
	defer cancel()
	if err := d.blocks.Delete(cctx, sess.Identity.ID, in.TargetID); err != nil {
		return errs.FromCall(err)
	}
	d.refreshGuard(ctx, sess)
	return nil
}

func (d *Dispatcher) message(ctx context.Context, sess *Session, in MessageInput) (*model.Message, error) {
	if err := requireGuard(sess); err != nil {
		return nil, err
	}
	me := sess.Identity.ID
	if in.RecipientID == me {
		return nil, errs.Validationf("cannot message self")
	}
	if !sess.Guard.CanMessage(in.RecipientID) {
		return nil, errs.Permissionf("cannot message this user")
	}

	epoch := sess.Epoch()
	entry := sess.Pending.Insert(feed.EntryMessage, me, in.RecipientID, in.Text)
	cctx, cancel := d.call(ctx)
	defer cancel()
	m := &model.Message{ID: uuid.New().String(), SenderID: me, RecipientID: in.RecipientID, Text: in.Text}
	if err := d.messages.Create(cctx, m); err != nil {
		sess.Pending.Rollback(entry.TempID)
		return nil, errs.FromCall(err)
	}
	if err := sess.Confirm(epoch, entry.TempID, m.ID); err != nil {
		return nil, err
	}
	d.fanout.Enqueue(in.RecipientID, model.NotificationPayload{
		Kind:      model.NotifyNewMessage,
		ActorID:   me,
		MessageID: m.ID,
		Preview:   preview(in.Text),
	}, realtime.TableMessages, m, realtime.MessagesTopic(me))
	return m, nil
}

// refreshGuard 关系变更后整体重算；失败时守卫保持 fail closed
func (d *Dispatcher) refreshGuard(ctx context.Context, sess *Session) {
	me := sess.Identity.ID
	sess.Guard.InvalidateCache(ctx, me)
	_ = sess.Guard.Load(ctx, me)
}

func preview(text string) string {
	const max = 80
	if len(text) <= max {
		return text
	}
	return text[:max]
}
