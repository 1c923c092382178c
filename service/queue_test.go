package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/layer-3/sentinel/core"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
)

func newTestQueues(onChange func()) *QueueManager {
	return NewQueueManager(clock.NewTestClock(testTime), watermill.NopLogger{}, onChange)
}

func TestQueueAuthRejectsDuplicateOrigin(t *testing.T) {
	queues := newTestQueues(nil)

	_, err := queues.Auth.Enqueue(testOrigin, testURL, "s1", core.AuthorizeRequest{Origin: "dapp"})
	require.NoError(t, err)

	_, err = queues.Auth.Enqueue(testOrigin, testURL+"/other", "s2", core.AuthorizeRequest{Origin: "dapp"})
	require.ErrorIs(t, err, core.ErrDuplicate)
	require.Equal(t, 1, queues.Auth.Len())

	// Other queues take several requests per origin.
	for i := 0; i < 2; i++ {
		_, err = queues.Signing.Enqueue(testOrigin, testURL, "s1", core.SignRequest{})
		require.NoError(t, err)
	}
	require.Equal(t, 2, queues.Signing.Len())
}

func TestQueueCompletesOnce(t *testing.T) {
	queues := newTestQueues(nil)

	req, err := queues.Metadata.Enqueue(testOrigin, testURL, "s1", core.MetadataDef{GenesisHash: "0x01"})
	require.NoError(t, err)

	require.NoError(t, queues.Metadata.Resolve(req.ID, true))
	require.ErrorIs(t, queues.Metadata.Resolve(req.ID, true), core.ErrNotFound)
	require.ErrorIs(t, queues.Metadata.Reject(req.ID, core.ErrRejected), core.ErrNotFound)
	require.ErrorIs(t, queues.Metadata.Cancel(req.ID), core.ErrNotFound)

	ok, err := req.Wait(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, queues.Metadata.Len())
}

func TestQueueRejectAndCancel(t *testing.T) {
	queues := newTestQueues(nil)

	first, err := queues.Signing.Enqueue(testOrigin, testURL, "s1", core.SignRequest{Address: aliceAddr})
	require.NoError(t, err)
	second, err := queues.Signing.Enqueue(testOrigin, testURL, "s1", core.SignRequest{Address: bobAddr})
	require.NoError(t, err)

	require.NoError(t, queues.Signing.Reject(first.ID, core.ErrRejected))
	require.NoError(t, queues.Signing.Cancel(second.ID))

	_, err = first.Wait(context.Background())
	require.ErrorIs(t, err, core.ErrRejected)
	_, err = second.Wait(context.Background())
	require.ErrorIs(t, err, core.ErrCancelled)
}

func TestQueueListIsFIFO(t *testing.T) {
	queues := newTestQueues(nil)

	var ids []core.RequestID
	for _, addr := range []string{"a", "b", "c"} {
		req, err := queues.Signing.Enqueue(testOrigin, testURL, "s1", core.SignRequest{Address: addr})
		require.NoError(t, err)
		ids = append(ids, req.ID)
	}
	require.NoError(t, queues.Signing.Resolve(ids[1], core.SignResult{}))

	views := queues.Signing.List()
	require.Len(t, views, 2)
	require.Equal(t, ids[0], views[0].ID)
	require.Equal(t, "a", views[0].Payload.Address)
	require.Equal(t, ids[2], views[1].ID)
	require.Equal(t, testTime, views[0].CreatedAt)
}

func TestQueueIDsAreUniqueAcrossQueues(t *testing.T) {
	queues := newTestQueues(nil)

	auth, err := queues.Auth.Enqueue(testOrigin, testURL, "s1", core.AuthorizeRequest{})
	require.NoError(t, err)
	meta, err := queues.Metadata.Enqueue(testOrigin, testURL, "s1", core.MetadataDef{})
	require.NoError(t, err)

	require.NotEqual(t, auth.ID, meta.ID)
	require.Regexp(t, `^\d+\.\d+$`, string(auth.ID))
}

func TestQueueWaitTimeoutKeepsRequest(t *testing.T) {
	queues := newTestQueues(nil)

	req, err := queues.Signing.Enqueue(testOrigin, testURL, "s1", core.SignRequest{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = req.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	_, ok := queues.Signing.Get(req.ID)
	require.True(t, ok)
}

func TestQueueNotifiesOnChange(t *testing.T) {
	var changes atomic.Int32
	queues := newTestQueues(func() { changes.Add(1) })

	signal := make(chan struct{}, 4)
	sub := queues.Auth.Subscribe(signal)
	defer sub.Unsubscribe()

	req, err := queues.Auth.Enqueue(testOrigin, testURL, "s1", core.AuthorizeRequest{})
	require.NoError(t, err)
	require.NoError(t, queues.Auth.Reject(req.ID, core.ErrRejected))

	require.EqualValues(t, 2, changes.Load())
	require.Len(t, signal, 2)

	auth, metadata, signing := queues.Counts()
	require.Zero(t, auth+metadata+signing)
}
