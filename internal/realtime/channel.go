package realtime

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// 每个表一类变更流，按收件人切 topic：
//   rt:messages:<uid>    发给我的私信
//   rt:engagement:<uid>  我的帖子上的评论/点赞
//   rt:subscribers:<uid> 新订阅者
const (
	TableMessages    = "messages"
	TableComments    = "comments"
	TableLikes       = "likes"
	TableSubscribers = "subscribers"
)

type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Event 实时变更事件 {type, row}
type Event struct {
	Type  EventType       `json:"type"`
	Table string          `json:"table"`
	Row   json.RawMessage `json:"row"`
}

func MessagesTopic(uid string) string    { return "rt:messages:" + uid }
func EngagementTopic(uid string) string  { return "rt:engagement:" + uid }
func SubscribersTopic(uid string) string { return "rt:subscribers:" + uid }

// Publisher 把变更事件发布到 redis 频道
type Publisher struct{ rdb *redis.Client }

func NewPublisher(rdb *redis.Client) *Publisher { return &Publisher{rdb: rdb} }

func (p *Publisher) Publish(ctx context.Context, topic string, table string, typ EventType, row any) error {
	raw, err := json.Marshal(row)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(Event{Type: typ, Table: table, Row: raw})
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, topic, payload).Err()
}
