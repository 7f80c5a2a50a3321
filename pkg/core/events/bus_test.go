package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(false)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	sent := WorkflowEvent{
		WorkflowInstanceID: "wf-001",
		Action:             "WORKFLOW_STARTED",
		PerformedByID:      "alice",
		StageNumber:        1,
		Notes:              "Workflow started",
	}
	require.NoError(t, bus.Publish(ctx, sent))

	select {
	case got := <-ch:
		assert.Equal(t, "wf-001", got.WorkflowInstanceID)
		assert.Equal(t, "WORKFLOW_STARTED", got.Action)
		assert.Equal(t, "alice", got.PerformedByID)
		assert.Equal(t, 1, got.StageNumber)
		assert.False(t, got.Timestamp.IsZero(), "发布时应补齐时间戳")
	case <-time.After(2 * time.Second):
		t.Fatal("等待事件超时")
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := NewBus(false)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch1, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	ch2, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, WorkflowEvent{WorkflowInstanceID: "wf-fan", Action: "APPROVED"}))

	for _, ch := range []<-chan WorkflowEvent{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, "wf-fan", got.WorkflowInstanceID)
		case <-time.After(2 * time.Second):
			t.Fatal("某个订阅者未收到事件")
		}
	}
}

func TestBus_SubscribeCancelClosesChannel(t *testing.T) {
	bus := NewBus(false)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "取消订阅后channel应关闭")
	case <-time.After(2 * time.Second):
		t.Fatal("取消后channel未关闭")
	}
}
