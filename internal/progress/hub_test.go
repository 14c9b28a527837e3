package progress_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeckner/civicrawl/internal/domain"
	"github.com/mbeckner/civicrawl/internal/progress"
)

func TestHub_LatestOverwritten(t *testing.T) {
	t.Parallel()

	hub := progress.NewHub()

	hub.Publish(domain.ProgressSnapshot{ModuleKey: "ideas", Status: domain.ProgressRunning, Page: 1})
	hub.Publish(domain.ProgressSnapshot{ModuleKey: "ideas", Status: domain.ProgressRunning, Page: 2, ItemsScraped: 40})

	snap, ok := hub.Latest("ideas")
	require.True(t, ok)
	assert.Equal(t, 2, snap.Page)
	assert.Equal(t, 40, snap.ItemsScraped)

	_, ok = hub.Latest("events")
	assert.False(t, ok)
}

func TestHub_SubscriberReceivesReplayAndUpdates(t *testing.T) {
	t.Parallel()

	hub := progress.NewHub()
	hub.Publish(domain.ProgressSnapshot{ModuleKey: "ideas", Status: domain.ProgressRunning, Page: 3})

	ch, cancel := hub.Subscribe("ideas")
	defer cancel()

	// Late subscriber sees the current state first.
	select {
	case snap := <-ch:
		assert.Equal(t, 3, snap.Page)
	case <-time.After(time.Second):
		t.Fatal("no replay received")
	}

	hub.Publish(domain.ProgressSnapshot{ModuleKey: "ideas", Status: domain.ProgressRunning, Page: 4})
	select {
	case snap := <-ch:
		assert.Equal(t, 4, snap.Page)
	case <-time.After(time.Second):
		t.Fatal("no update received")
	}
}

func TestHub_SubscriberIsolationByModule(t *testing.T) {
	t.Parallel()

	hub := progress.NewHub()
	ch, cancel := hub.Subscribe("events")
	defer cancel()

	hub.Publish(domain.ProgressSnapshot{ModuleKey: "ideas", Status: domain.ProgressRunning})

	select {
	case snap := <-ch:
		t.Fatalf("unexpected snapshot for module %s", snap.ModuleKey)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_TerminalSnapshotExpiresAfterGrace(t *testing.T) {
	t.Parallel()

	hub := progress.NewHubWithGrace(30 * time.Millisecond)
	hub.Publish(domain.ProgressSnapshot{ModuleKey: "issues", Status: domain.ProgressCompleted})

	// Readable immediately after completion.
	_, ok := hub.Latest("issues")
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		_, ok := hub.Latest("issues")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestHub_NewRunCancelsPendingCleanup(t *testing.T) {
	t.Parallel()

	hub := progress.NewHubWithGrace(40 * time.Millisecond)
	hub.Publish(domain.ProgressSnapshot{ModuleKey: "issues", Status: domain.ProgressError, Message: "boom"})

	// A fresh run starts before the grace delay elapses.
	hub.Publish(domain.ProgressSnapshot{ModuleKey: "issues", Status: domain.ProgressRunning, Page: 1})

	time.Sleep(80 * time.Millisecond)

	snap, ok := hub.Latest("issues")
	require.True(t, ok)
	assert.Equal(t, domain.ProgressRunning, snap.Status)
}

func TestHub_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	t.Parallel()

	hub := progress.NewHub()
	_, cancel := hub.Subscribe("ideas")
	defer cancel()

	done := make(chan struct{})
	go func() {
		// More publishes than the subscriber buffer holds; the reader
		// never drains.
		for i := 0; i < 100; i++ {
			hub.Publish(domain.ProgressSnapshot{ModuleKey: "ideas", Status: domain.ProgressRunning, Page: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestHub_SlowSubscriberStillReceivesTerminal(t *testing.T) {
	t.Parallel()

	hub := progress.NewHub()
	ch, cancel := hub.Subscribe("ideas")
	defer cancel()

	// Fall far behind the buffer before the run finishes.
	for i := 0; i < 20; i++ {
		hub.Publish(domain.ProgressSnapshot{ModuleKey: "ideas", Status: domain.ProgressRunning, Page: i})
	}
	hub.Publish(domain.ProgressSnapshot{ModuleKey: "ideas", Status: domain.ProgressCompleted, ItemsScraped: 99})

	var last domain.ProgressSnapshot
	var got bool
	for {
		select {
		case snap := <-ch:
			last = snap
			got = true
			continue
		default:
		}
		break
	}

	require.True(t, got)
	assert.Equal(t, domain.ProgressCompleted, last.Status)
	assert.Equal(t, 99, last.ItemsScraped)
}

func TestHub_ConcurrentPublishAndSubscribe(t *testing.T) {
	t.Parallel()

	hub := progress.NewHub()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hub.Publish(domain.ProgressSnapshot{ModuleKey: "ideas", Status: domain.ProgressRunning, Page: n})
				ch, cancel := hub.Subscribe("ideas")
				<-ch
				cancel()
			}
		}(i)
	}
	wg.Wait()

	_, ok := hub.Latest("ideas")
	assert.True(t, ok)
}
