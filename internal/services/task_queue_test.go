package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rdychk/rdychk/internal/config"
)

func TestTaskTypePreview_Constant(t *testing.T) {
	if TaskTypePreview != "preview:refresh" {
		t.Errorf("TaskTypePreview = %q, expected %q", TaskTypePreview, "preview:refresh")
	}
}

func TestSyncQueue_RunsProcessor(t *testing.T) {
	q := NewSyncQueue()
	if q.IsAsync() {
		t.Error("SyncQueue should not be async")
	}

	var got atomic.Value
	q.SetProcessor(func(_ context.Context, task *PreviewTask) error {
		got.Store(task.URL)
		return nil
	})
	if err := q.Enqueue(&PreviewTask{URL: "https://example.com/"}); err != nil {
		t.Fatal(err)
	}
	q.Close()

	if got.Load() != "https://example.com/" {
		t.Errorf("processor saw %v", got.Load())
	}
}

func TestSyncQueue_WithoutProcessorDrops(t *testing.T) {
	q := NewSyncQueue()
	if err := q.Enqueue(&PreviewTask{URL: "https://example.com/"}); err != nil {
		t.Errorf("Enqueue() without processor error = %v", err)
	}
}

func TestRunPreviewTask(t *testing.T) {
	var seen string
	proc := func(_ context.Context, task *PreviewTask) error {
		seen = task.URL
		return nil
	}

	if err := runPreviewTask(context.Background(), []byte(`{"url":"https://a.example/"}`), proc); err != nil {
		t.Fatal(err)
	}
	if seen != "https://a.example/" {
		t.Errorf("processor saw %q", seen)
	}
	if err := runPreviewTask(context.Background(), []byte(`not json`), proc); err == nil {
		t.Error("expected error for a malformed payload")
	}
	if err := runPreviewTask(context.Background(), []byte(`{}`), nil); err != nil {
		t.Errorf("nil processor should be a no-op, got %v", err)
	}

	boom := errors.New("boom")
	err := runPreviewTask(context.Background(), []byte(`{}`), func(context.Context, *PreviewTask) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("processor error not returned: %v", err)
	}
}

func TestNewWorker_DisabledRedis(t *testing.T) {
	if w := NewWorker(&config.RedisConfig{Enabled: false}); w != nil {
		t.Error("NewWorker should return nil when Redis is disabled")
	}
}

func TestPreviewCleanup_Schedule(t *testing.T) {
	svc := NewLinkPreviewService(newTestDB(t), NewURLGuard(fakeResolver{}), testPreviewConfig())

	bad := NewPreviewCleanup(svc, "not a schedule", time.Hour)
	if err := bad.StartScheduler(); err == nil {
		t.Error("expected an error for an invalid cron spec")
	}

	ok := NewPreviewCleanup(svc, "@every 1h", time.Hour)
	if err := ok.StartScheduler(); err != nil {
		t.Fatal(err)
	}
	ok.StopScheduler()
}

func TestNewTaskQueue_SyncWhenRedisDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	q := NewTaskQueue(cfg)
	if _, ok := q.(*SyncQueue); !ok {
		t.Errorf("NewTaskQueue() = %T, expected *SyncQueue", q)
	}
}
