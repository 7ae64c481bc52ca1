package collection

import (
	"github.com/cuemby/vecton/pkg/segment"
	"github.com/cuemby/vecton/pkg/types"
	"github.com/cuemby/vecton/pkg/updates"
	"github.com/cuemby/vecton/pkg/vecerr"
)

// LocalShardWriter applies operations to whichever local segment.Entry
// this process holds for each shard of one collection. It is the simplest
// ShardWriter: one replica, no forwarding.
type LocalShardWriter struct {
	segments map[types.ShardID]segment.Entry
	opNum    uint64
}

// NewLocalShardWriter builds a writer over segments, one per shard id
// this process replicates.
func NewLocalShardWriter(segments map[types.ShardID]segment.Entry) *LocalShardWriter {
	return &LocalShardWriter{segments: segments}
}

// ApplyToShard routes op's variant to the matching segment.Entry method,
// assigning the next monotonic op_num for idempotence.
func (w *LocalShardWriter) ApplyToShard(shardID types.ShardID, op updates.CollectionUpdateOperations) error {
	seg, ok := w.segments[shardID]
	if !ok {
		return vecerr.NewServiceErrorf("collection: no local segment for shard %d", shardID)
	}
	w.opNum++
	opNum := w.opNum

	switch op.Kind {
	case updates.UpdateKindPoint:
		return applyPointOp(seg, opNum, *op.Point)
	case updates.UpdateKindPayload:
		return applyPayloadOp(seg, opNum, *op.Payload)
	case updates.UpdateKindFieldIndex:
		return applyFieldIndexOp(seg, opNum, *op.FieldIndex)
	default:
		return vecerr.NewServiceError("collection: unknown update operation kind")
	}
}

func applyPointOp(seg segment.Entry, opNum uint64, op updates.PointOperation) error {
	switch op.Kind {
	case updates.PointUpsertBatch, updates.PointUpsertList:
		for _, id := range op.Points {
			vectors := op.Vectors[id]
			if _, err := seg.UpsertVector(opNum, id, vectors); err != nil {
				return err
			}
		}
		return nil
	case updates.PointDeletePoints, updates.PointSyncPoints:
		for _, id := range op.Points {
			if _, err := seg.DeletePoint(opNum, id); err != nil {
				return err
			}
		}
		return nil
	case updates.PointDeleteByFilter:
		_, err := seg.DeleteFiltered(opNum, op.Filter)
		return err
	default:
		return vecerr.NewServiceError("collection: unknown point operation kind")
	}
}

func applyPayloadOp(seg segment.Entry, opNum uint64, op updates.PayloadOperation) error {
	switch op.Kind {
	case updates.PayloadSet:
		for _, id := range op.Points {
			if _, err := seg.SetPayload(opNum, id, op.Payload); err != nil {
				return err
			}
		}
		return nil
	case updates.PayloadSetByFilter:
		for _, id := range matchingPoints(seg, op.Filter) {
			if _, err := seg.SetPayload(opNum, id, op.Payload); err != nil {
				return err
			}
		}
		return nil
	case updates.PayloadDelete:
		for _, id := range op.Points {
			for _, key := range op.Keys {
				if _, err := seg.DeletePayload(opNum, id, key); err != nil {
					return err
				}
			}
		}
		return nil
	case updates.PayloadClear:
		for _, id := range op.Points {
			if _, err := seg.ClearPayload(opNum, id); err != nil {
				return err
			}
		}
		return nil
	case updates.PayloadClearByFilter:
		for _, id := range matchingPoints(seg, op.Filter) {
			if _, err := seg.ClearPayload(opNum, id); err != nil {
				return err
			}
		}
		return nil
	default:
		return vecerr.NewServiceError("collection: unknown payload operation kind")
	}
}

func applyFieldIndexOp(seg segment.Entry, opNum uint64, op updates.FieldIndexOperation) error {
	switch op.Kind {
	case updates.FieldIndexCreate:
		_, err := seg.CreateFieldIndex(opNum, op.Key, op.Schema)
		return err
	case updates.FieldIndexDelete:
		_, err := seg.DeleteFieldIndex(opNum, op.Key)
		return err
	default:
		return vecerr.NewServiceError("collection: unknown field index operation kind")
	}
}

func matchingPoints(seg segment.Entry, filter *segment.Filter) []segment.PointID {
	return seg.ReadFiltered(nil, seg.PointsCount(), filter)
}
