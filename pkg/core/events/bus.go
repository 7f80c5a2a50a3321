// Package events 提供基于Watermill的工作流事件总线
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

// TopicWorkflowEvents 工作流事件主题
const TopicWorkflowEvents = "workflow.events"

// WorkflowEvent 工作流事件（对外导出）
// 历史表为事实来源，事件投递为尽力而为
type WorkflowEvent struct {
	WorkflowInstanceID string    `json:"workflow_instance_id"`
	Action             string    `json:"action"`
	PerformedByID      string    `json:"performed_by_id,omitempty"`
	StageNumber        int       `json:"stage_number,omitempty"`
	Notes              string    `json:"notes,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// Bus 工作流事件总线（对外导出）
type Bus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter
}

// NewBus 创建事件总线
func NewBus(debug bool) *Bus {
	logger := watermill.NewStdLogger(debug, false)
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
			OutputChannelBuffer:            64,
		},
		logger,
	)
	return &Bus{pubsub: pubsub, logger: logger}
}

// Publish 发布一条工作流事件
func (b *Bus) Publish(ctx context.Context, event WorkflowEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)
	if err := b.pubsub.Publish(TopicWorkflowEvents, msg); err != nil {
		return fmt.Errorf("发布事件失败: %w", err)
	}
	return nil
}

// Subscribe 订阅工作流事件流
// 返回的channel在ctx取消后关闭
func (b *Bus) Subscribe(ctx context.Context) (<-chan WorkflowEvent, error) {
	messages, err := b.pubsub.Subscribe(ctx, TopicWorkflowEvents)
	if err != nil {
		return nil, fmt.Errorf("订阅事件失败: %w", err)
	}

	out := make(chan WorkflowEvent, 16)
	go func() {
		defer close(out)
		for msg := range messages {
			var event WorkflowEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				msg.Ack()
				continue
			}
			msg.Ack()
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close 关闭事件总线
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
