package collection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/vecton/pkg/catalog"
	"github.com/cuemby/vecton/pkg/consensus"
	"github.com/cuemby/vecton/pkg/types"
	"github.com/cuemby/vecton/pkg/updates"
)

type fakeShardWriter struct {
	applied []types.ShardID
}

func (w *fakeShardWriter) ApplyToShard(shardID types.ShardID, op updates.CollectionUpdateOperations) error {
	w.applied = append(w.applied, shardID)
	return nil
}

func newTestFacade(t *testing.T, shardNumber uint32) (*Facade, *catalog.TableOfContent, *fakeShardWriter) {
	t.Helper()
	toc := catalog.New(types.PeerID(1))
	cfg := types.DefaultConfig()
	cfg.VectorDim = 4
	cfg.ShardNumber = shardNumber
	require.NoError(t, toc.PerformCollectionMetaOp(consensus.ConsensusOperation{
		Kind:             consensus.OpCreateCollection,
		CreateCollection: &consensus.CreateCollectionOp{Name: "docs", Config: cfg},
	}))
	writer := &fakeShardWriter{}
	return New("docs", toc, writer), toc, writer
}

func TestUpdateFromClientRejectedWhenWriteLocked(t *testing.T) {
	facade, toc, _ := newTestFacade(t, 2)
	toc.SetLocks(true, "maintenance")

	op := updates.CollectionUpdateOperations{
		Kind:  updates.UpdateKindPoint,
		Point: &updates.PointOperation{Kind: updates.PointUpsertBatch, Points: []uint64{1, 2}},
	}
	err := facade.UpdateFromClient(op)
	assert.Error(t, err)
}

func TestUpdateFromClientSplitsPointsAcrossShards(t *testing.T) {
	facade, _, writer := newTestFacade(t, 4)

	op := updates.CollectionUpdateOperations{
		Kind: updates.UpdateKindPoint,
		Point: &updates.PointOperation{
			Kind:   updates.PointUpsertBatch,
			Points: []uint64{1, 2, 3, 4, 5, 6, 7, 8},
		},
	}
	require.NoError(t, facade.UpdateFromClient(op))
	assert.NotEmpty(t, writer.applied)
}

func TestUpdateFromClientFanOutOnFilterDelete(t *testing.T) {
	facade, _, writer := newTestFacade(t, 3)

	op := updates.CollectionUpdateOperations{
		Kind:  updates.UpdateKindPoint,
		Point: &updates.PointOperation{Kind: updates.PointDeleteByFilter},
	}
	require.NoError(t, facade.UpdateFromClient(op))
	assert.Len(t, writer.applied, 3)
}

func TestUpdateFromPeerBypassesWriteLock(t *testing.T) {
	facade, toc, writer := newTestFacade(t, 2)
	toc.SetLocks(true, "maintenance")

	op := updates.CollectionUpdateOperations{
		Kind:  updates.UpdateKindPoint,
		Point: &updates.PointOperation{Kind: updates.PointUpsertBatch, Points: []uint64{1}},
	}
	require.NoError(t, facade.UpdateFromPeer(0, op))
	assert.Equal(t, []types.ShardID{0}, writer.applied)
}

func TestPayloadDeleteDoesNotEngageWriteLock(t *testing.T) {
	facade, toc, _ := newTestFacade(t, 2)
	toc.SetLocks(true, "maintenance")

	op := updates.CollectionUpdateOperations{
		Kind:    updates.UpdateKindPayload,
		Payload: &updates.PayloadOperation{Kind: updates.PayloadDelete, Points: []uint64{1}},
	}
	assert.NoError(t, facade.UpdateFromClient(op))
}
