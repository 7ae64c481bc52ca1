// Package segment defines the capability-set contract every local shard
// replica's storage must satisfy. Grounded on
// original_source/lib/segment/src/entry/entry_point.rs: a flat trait of
// idempotent, version-gated point operations plus a handful of
// lifecycle/telemetry methods. Go has no trait objects, so the contract
// is a plain interface; concrete variants (in-memory, mmap-backed)
// implement it with no shared base type.
package segment

import (
	"path/filepath"
	"strconv"

	"github.com/cuemby/vecton/pkg/vecerr"
)

// SeqNumberType is the monotonic per-write sequence number used for
// idempotence.
type SeqNumberType = uint64

// PointID identifies one vector/payload row within a segment.
type PointID = uint64

// PayloadKey names one field of a point's payload.
type PayloadKey = string

// Payload is a point's JSON-like side data. Payload query execution is
// out of scope; this is a plain map carried opaquely.
type Payload map[string]any

// Clone returns a deep-enough copy for safe independent mutation by the
// segment (shallow per value: small state is copied, larger values shared).
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// NamedVectors maps a vector name ("" for the default/unnamed vector) to
// its components. Multi-vector points are in scope per the trait shape;
// the arithmetic over the components is not.
type NamedVectors map[string][]float32

// Filter is an opaque read-path predicate; its evaluation semantics are
// out of scope — the segment only needs to recognize "a filter was
// given" to select the linear-scan read path.
type Filter struct {
	// MatchFunc, when non-nil, is evaluated per point id during
	// read_filtered/delete_filtered/estimate_points_count. A nil
	// MatchFunc matches every point (used by tests exercising the
	// iteration contract without building a real query engine).
	MatchFunc func(id PointID, payload Payload) bool
}

func (f *Filter) matches(id PointID, payload Payload) bool {
	if f == nil || f.MatchFunc == nil {
		return true
	}
	return f.MatchFunc(id, payload)
}

// CardinalityEstimation is a coarse points-count estimate for a filter.
// Real cardinality estimation (index statistics) is out of scope; the
// in-memory segment reports exact counts since it can afford to.
type CardinalityEstimation struct {
	Min, Exp, Max uint64
}

// SegmentType distinguishes concrete segment implementations for
// telemetry/info purposes only.
type SegmentType string

const (
	SegmentTypePlain SegmentType = "plain"
	SegmentTypeMmap  SegmentType = "mmap"
)

// SegmentConfig is the subset of collection Config relevant to one
// segment: vector dimensionality per named vector.
type SegmentConfig struct {
	VectorDims map[string]uint64
}

// SegmentInfo reports current segment stats.
type SegmentInfo struct {
	SegmentType   SegmentType
	NumPoints     int
	NumDeleted    int
	IndexSchema   map[PayloadKey]string
}

// SegmentTelemetry is opaque collected telemetry data; only a
// placeholder struct is needed since telemetry emission is out of scope.
type SegmentTelemetry struct {
	SegmentType SegmentType
	NumPoints   int
}

// FailedState records the last operation error that must be cleared
// before further writes are accepted.
type FailedState struct {
	Version SeqNumberType
	PointID *PointID
	Err     error
}

// ScoredPoint is a single search result. Ranking arithmetic is out of
// scope; Score is whatever the concrete segment computed.
type ScoredPoint struct {
	ID      PointID
	Score   float32
	Payload Payload
	Vector  NamedVectors
}

// WithPayload/WithVector select how much of a point to return on read
// paths; both degrees of freedom are kept minimal since the bytes-on-disk
// format and query execution are out of scope.
type WithPayload struct{ Enable bool }
type WithVector struct{ Enable bool }

// SearchParams is an opaque tuning knob bag passed through to the
// concrete segment's search implementation.
type SearchParams struct {
	HNSWEf uint32
}

// Entry is the segment capability set. Every mutating method
// takes opNum and must be idempotent: applying opNum <= point_version(id)
// is a no-op and returns (false, nil).
type Entry interface {
	Version() SeqNumberType
	PointVersion(id PointID) (SeqNumberType, bool)

	Search(vectorName string, vector []float32, withPayload WithPayload, withVector WithVector, filter *Filter, top int, params *SearchParams) ([]ScoredPoint, error)
	SearchBatch(vectorName string, vectors [][]float32, withPayload WithPayload, withVector WithVector, filter *Filter, top int, params *SearchParams) ([][]ScoredPoint, error)

	UpsertVector(opNum SeqNumberType, id PointID, vectors NamedVectors) (bool, error)
	DeletePoint(opNum SeqNumberType, id PointID) (bool, error)
	SetPayload(opNum SeqNumberType, id PointID, payload Payload) (bool, error)
	SetFullPayload(opNum SeqNumberType, id PointID, payload Payload) (bool, error)
	DeletePayload(opNum SeqNumberType, id PointID, key PayloadKey) (bool, error)
	ClearPayload(opNum SeqNumberType, id PointID) (bool, error)

	Vector(vectorName string, id PointID) ([]float32, error)
	AllVectors(id PointID) (NamedVectors, error)
	Payload(id PointID) (Payload, error)

	IterPoints() []PointID
	ReadFiltered(offset *PointID, limit int, filter *Filter) []PointID
	ReadRange(from, to *PointID) []PointID
	HasPoint(id PointID) bool
	PointsCount() int
	EstimatePointsCount(filter *Filter) CardinalityEstimation

	VectorDim(vectorName string) (int, error)
	VectorDims() map[string]int
	DeletedCount() int

	SegmentType() SegmentType
	Info() SegmentInfo
	Config() SegmentConfig
	IsAppendable() bool

	Flush(sync bool) (SeqNumberType, error)
	DropData() error
	DataPath() string

	DeleteFieldIndex(opNum SeqNumberType, key PayloadKey) (bool, error)
	CreateFieldIndex(opNum SeqNumberType, key PayloadKey, schema string) (bool, error)
	GetIndexedFields() map[PayloadKey]string

	CheckError() *FailedState
	DeleteFiltered(opNum SeqNumberType, filter *Filter) (int, error)

	TakeSnapshot(snapshotDirPath string) error
	CopySegmentDirectory(targetDirPath string) (string, error)

	GetTelemetryData() SegmentTelemetry
}

// dataPath joins a segment's root with its canonical sub-path, matching
// the on-disk directory layout "<collection>/<shard>/<segment>/".
func dataPath(root string, elems ...string) string {
	return filepath.Join(append([]string{root}, elems...)...)
}

// wrongVector builds the User-class dimension-mismatch error.
func wrongVector(expected, received int) error {
	return vecerr.NewUserError("wrong_vector", "expected dim "+strconv.Itoa(expected)+", got "+strconv.Itoa(received))
}

func vectorNameNotExists(name string) error {
	return vecerr.NewUserError("vector_name_not_exists", name)
}

func pointIDError(id PointID) error {
	return vecerr.NewUserError("point_id_error", "no point with id "+strconv.FormatUint(id, 10))
}
