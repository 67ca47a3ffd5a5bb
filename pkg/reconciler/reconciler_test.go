package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/brokerfleet/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTasks struct {
	infos []*types.TaskInfo
	err   error
}

func (s staticTasks) ListTaskInfos() ([]*types.TaskInfo, error) {
	return s.infos, s.err
}

type recordingCluster struct {
	mu    sync.Mutex
	calls [][]string
}

func (c *recordingCluster) Reconcile(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, cloneIDs(ids))
}

func (c *recordingCluster) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func cloneIDs(ids []string) []string {
	return append([]string(nil), ids...)
}

func infos(ids ...string) []*types.TaskInfo {
	out := make([]*types.TaskInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, &types.TaskInfo{ID: id})
	}
	return out
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name      string
		tasks     staticTasks
		batchSize int
		wantErr   bool
		wantCalls [][]string
	}{
		{
			name:      "sorted single batch",
			tasks:     staticTasks{infos: infos("broker-1__b", "broker-0__a")},
			wantCalls: [][]string{{"broker-0__a", "broker-1__b"}},
		},
		{
			name:      "split into batches",
			tasks:     staticTasks{infos: infos("broker-0__a", "broker-1__b", "broker-2__c")},
			batchSize: 2,
			wantCalls: [][]string{{"broker-0__a", "broker-1__b"}, {"broker-2__c"}},
		},
		{
			name:  "nothing recorded",
			tasks: staticTasks{},
		},
		{
			name:    "store failure",
			tasks:   staticTasks{err: errors.New("disk on fire")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &recordingCluster{}
			r := NewReconciler(tt.tasks, c, time.Minute, WithBatchSize(tt.batchSize))

			err := r.Reconcile()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, c.calls)
		})
	}
}

func TestRunReconcilesUntilCancelled(t *testing.T) {
	c := &recordingCluster{}
	r := NewReconciler(staticTasks{infos: infos("broker-0__a")}, c, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	assert.Eventually(t, func() bool { return c.callCount() >= 3 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
