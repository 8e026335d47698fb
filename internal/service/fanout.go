package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/d60-Lab/esfera-conectada/internal/model"
	"github.com/d60-Lab/esfera-conectada/internal/realtime"
	"github.com/d60-Lab/esfera-conectada/internal/repository"
	"github.com/d60-Lab/esfera-conectada/pkg/logger"
)

type fanoutJob struct {
	recipientID string
	payload     model.NotificationPayload
	table       string
	row         any
	echoTopic   string // 作者自己的频道，用于乐观条目的回声对账；可为空
	enqAt       time.Time
}

// NotificationFanout 通知扇出的本地异步执行器：
// 写通知行 + 发布实时事件。投递前按 (actor, recipient) 重查拉黑关系，
// 命中则静默丢弃。
type NotificationFanout struct {
	notifs    repository.NotificationRepository
	blocks    repository.BlockRepository
	publisher *realtime.Publisher
	ch        chan fanoutJob
	metricsCh chan time.Duration
}

func NewNotificationFanout(notifs repository.NotificationRepository, blocks repository.BlockRepository, publisher *realtime.Publisher, queueSize int) *NotificationFanout {
	if queueSize <= 0 {
		queueSize = 10000
	}
	return &NotificationFanout{
		notifs:    notifs,
		blocks:    blocks,
		publisher: publisher,
		ch:        make(chan fanoutJob, queueSize),
		metricsCh: make(chan time.Duration, 65536),
	}
}

func (f *NotificationFanout) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = 4
	}
	stopCh := make(chan struct{})
	for i := 0; i < workers; i++ {
		go func() {
			for {
				select {
				case job := <-f.ch:
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					f.process(ctx, job)
					cancel()
					if !job.enqAt.IsZero() {
						select {
						case f.metricsCh <- time.Since(job.enqAt):
						default:
						}
					}
				case <-stopCh:
					return
				}
			}
		}()
	}
	return func(ctx context.Context) error {
		close(stopCh)
		// 等待队列自然排空一小段时间
		timeout := time.After(2 * time.Second)
		for {
			select {
			case <-timeout:
				return nil
			default:
				if len(f.ch) == 0 {
					return nil
				}
				time.Sleep(50 * time.Millisecond)
			}
		}
	}
}

func (f *NotificationFanout) process(ctx context.Context, job fanoutJob) {
	blocked, err := f.blocks.ExistsEither(ctx, job.payload.ActorID, job.recipientID)
	if err != nil {
		logger.Warn("fanout block re-check failed, drop",
			zap.String("actor", job.payload.ActorID), zap.String("recipient", job.recipientID), zap.Error(err))
		return
	}
	if blocked {
		return
	}

	encoded, err := model.EncodePayload(job.payload)
	if err != nil {
		logger.Error("fanout payload encode failed", zap.Error(err))
		return
	}
	n := &model.Notification{
		ID:      uuid.New().String(),
		UserID:  job.recipientID,
		Payload: encoded,
	}
	if err := f.notifs.Create(ctx, n); err != nil {
		logger.Warn("fanout notification write failed",
			zap.String("recipient", job.recipientID), zap.Error(err))
	}

	if f.publisher == nil || job.row == nil {
		return
	}
	topic := topicFor(job.payload.Kind, job.recipientID)
	if err := f.publisher.Publish(ctx, topic, job.table, realtime.EventInsert, job.row); err != nil {
		logger.Warn("fanout realtime publish failed", zap.String("topic", topic), zap.Error(err))
	}
	if job.echoTopic != "" {
		_ = f.publisher.Publish(ctx, job.echoTopic, job.table, realtime.EventInsert, job.row)
	}
}

func topicFor(kind, recipientID string) string {
	switch kind {
	case model.NotifyNewMessage:
		return realtime.MessagesTopic(recipientID)
	case model.NotifyNewSubscriber:
		return realtime.SubscribersTopic(recipientID)
	default:
		return realtime.EngagementTopic(recipientID)
	}
}

// Enqueue 非阻塞入队；队列满时丢弃并告警。
func (f *NotificationFanout) Enqueue(recipientID string, p model.NotificationPayload, table string, row any, echoTopic string) {
	select {
	case f.ch <- fanoutJob{recipientID: recipientID, payload: p, table: table, row: row, echoTopic: echoTopic, enqAt: time.Now()}:
	default:
		logger.Warn("fanout queue full, drop notification",
			zap.String("recipient", recipientID), zap.String("kind", p.Kind))
	}
}

// Metrics 返回扇出落地耗时的只读通道（每处理一条发送一次 duration）。
func (f *NotificationFanout) Metrics() <-chan time.Duration { return f.metricsCh }

// QueueLen 返回当前队列长度（采样值）。
func (f *NotificationFanout) QueueLen() int { return len(f.ch) }
