package segment

import (
	"math"
	"sort"
	"sync"

	"github.com/cuemby/vecton/pkg/vecerr"
)

// point is one row's mutable state: its vectors, payload, and the
// version that last touched it.
type point struct {
	vectors NamedVectors
	payload Payload
	version SeqNumberType
	deleted bool
}

// Memory is an in-memory Entry, the default segment used by tests and by
// collections that have not (yet) materialized an mmap-backed segment.
// Grounded on entry_point.rs's SegmentEntry contract; every mutating
// method enforces the version gate before touching state
// idempotently (a stale op_num is a no-op).
type Memory struct {
	mu sync.RWMutex

	root    string
	dims    map[string]int
	points  map[PointID]*point
	version SeqNumberType
	indexed map[PayloadKey]string
	failed  *FailedState
}

// NewMemory builds an empty in-memory segment rooted at rootPath.
func NewMemory(rootPath string, dims map[string]int) *Memory {
	if dims == nil {
		dims = map[string]int{}
	}
	return &Memory{
		root:    rootPath,
		dims:    dims,
		points:  make(map[PointID]*point),
		indexed: make(map[PayloadKey]string),
	}
}

func (m *Memory) Version() SeqNumberType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

func (m *Memory) PointVersion(id PointID) (SeqNumberType, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.points[id]
	if !ok || p.deleted {
		return 0, false
	}
	return p.version, true
}

// bumpVersion advances the segment-wide high-water mark; called after any
// accepted mutation, mirroring the Rust segment's `self.version =
// self.version.max(op_num)`.
func (m *Memory) bumpVersion(opNum SeqNumberType) {
	if opNum > m.version {
		m.version = opNum
	}
}

// gate reports whether opNum is stale for id (idempotence check).
// Callers must hold m.mu for writing.
func (m *Memory) gate(id PointID, opNum SeqNumberType) (skip bool, existing *point) {
	p, ok := m.points[id]
	if !ok {
		return false, nil
	}
	if opNum <= p.version {
		return true, p
	}
	return false, p
}

func (m *Memory) UpsertVector(opNum SeqNumberType, id PointID, vectors NamedVectors) (bool, error) {
	for name, v := range vectors {
		dim, ok := m.dims[name]
		if ok && dim != len(v) {
			return false, wrongVector(dim, len(v))
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if skip, existing := m.gate(id, opNum); skip {
		_ = existing
		return false, nil
	}

	p, ok := m.points[id]
	if !ok {
		p = &point{payload: Payload{}}
		m.points[id] = p
		for name, v := range vectors {
			if _, ok := m.dims[name]; !ok {
				m.dims[name] = len(v)
			}
		}
	}
	merged := p.vectors
	if merged == nil {
		merged = NamedVectors{}
	}
	for name, v := range vectors {
		cp := make([]float32, len(v))
		copy(cp, v)
		merged[name] = cp
	}
	p.vectors = merged
	p.version = opNum
	p.deleted = false
	m.bumpVersion(opNum)
	return true, nil
}

func (m *Memory) DeletePoint(opNum SeqNumberType, id PointID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.points[id]
	if !ok {
		return false, nil
	}
	if opNum <= p.version {
		return false, nil
	}
	p.deleted = true
	p.version = opNum
	m.bumpVersion(opNum)
	return true, nil
}

func (m *Memory) SetPayload(opNum SeqNumberType, id PointID, payload Payload) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.points[id]
	if !ok {
		return false, pointIDError(id)
	}
	if opNum <= p.version {
		return false, nil
	}
	if p.payload == nil {
		p.payload = Payload{}
	}
	for k, v := range payload {
		p.payload[k] = v
	}
	p.version = opNum
	m.bumpVersion(opNum)
	return true, nil
}

func (m *Memory) SetFullPayload(opNum SeqNumberType, id PointID, payload Payload) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.points[id]
	if !ok {
		return false, pointIDError(id)
	}
	if opNum <= p.version {
		return false, nil
	}
	p.payload = payload.Clone()
	p.version = opNum
	m.bumpVersion(opNum)
	return true, nil
}

func (m *Memory) DeletePayload(opNum SeqNumberType, id PointID, key PayloadKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.points[id]
	if !ok {
		return false, pointIDError(id)
	}
	if opNum <= p.version {
		return false, nil
	}
	delete(p.payload, key)
	p.version = opNum
	m.bumpVersion(opNum)
	return true, nil
}

func (m *Memory) ClearPayload(opNum SeqNumberType, id PointID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.points[id]
	if !ok {
		return false, pointIDError(id)
	}
	if opNum <= p.version {
		return false, nil
	}
	p.payload = Payload{}
	p.version = opNum
	m.bumpVersion(opNum)
	return true, nil
}

func (m *Memory) Vector(vectorName string, id PointID) ([]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.points[id]
	if !ok || p.deleted {
		return nil, pointIDError(id)
	}
	v, ok := p.vectors[vectorName]
	if !ok {
		return nil, vectorNameNotExists(vectorName)
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, nil
}

func (m *Memory) AllVectors(id PointID) (NamedVectors, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.points[id]
	if !ok || p.deleted {
		return nil, pointIDError(id)
	}
	out := make(NamedVectors, len(p.vectors))
	for name, v := range p.vectors {
		cp := make([]float32, len(v))
		copy(cp, v)
		out[name] = cp
	}
	return out, nil
}

func (m *Memory) Payload(id PointID) (Payload, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.points[id]
	if !ok || p.deleted {
		return nil, pointIDError(id)
	}
	return p.payload.Clone(), nil
}

func (m *Memory) IterPoints() []PointID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PointID, 0, len(m.points))
	for id, p := range m.points {
		if !p.deleted {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *Memory) ReadFiltered(offset *PointID, limit int, filter *Filter) []PointID {
	ids := m.IterPoints()
	out := make([]PointID, 0, limit)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range ids {
		if offset != nil && id < *offset {
			continue
		}
		p := m.points[id]
		if !filter.matches(id, p.payload) {
			continue
		}
		out = append(out, id)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func (m *Memory) ReadRange(from, to *PointID) []PointID {
	ids := m.IterPoints()
	out := make([]PointID, 0, len(ids))
	for _, id := range ids {
		if from != nil && id < *from {
			continue
		}
		if to != nil && id >= *to {
			continue
		}
		out = append(out, id)
	}
	return out
}

func (m *Memory) HasPoint(id PointID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.points[id]
	return ok && !p.deleted
}

func (m *Memory) PointsCount() int {
	return len(m.IterPoints())
}

func (m *Memory) EstimatePointsCount(filter *Filter) CardinalityEstimation {
	ids := m.ReadFiltered(nil, 0, filter)
	n := uint64(len(ids))
	return CardinalityEstimation{Min: n, Exp: n, Max: n}
}

func (m *Memory) VectorDim(vectorName string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dim, ok := m.dims[vectorName]
	if !ok {
		return 0, vectorNameNotExists(vectorName)
	}
	return dim, nil
}

func (m *Memory) VectorDims() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int, len(m.dims))
	for k, v := range m.dims {
		out[k] = v
	}
	return out
}

func (m *Memory) DeletedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, p := range m.points {
		if p.deleted {
			n++
		}
	}
	return n
}

func (m *Memory) SegmentType() SegmentType { return SegmentTypePlain }

func (m *Memory) Info() SegmentInfo {
	return SegmentInfo{
		SegmentType: SegmentTypePlain,
		NumPoints:   m.PointsCount(),
		NumDeleted:  m.DeletedCount(),
		IndexSchema: m.GetIndexedFields(),
	}
}

func (m *Memory) Config() SegmentConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dims := make(map[string]uint64, len(m.dims))
	for k, v := range m.dims {
		dims[k] = uint64(v)
	}
	return SegmentConfig{VectorDims: dims}
}

func (m *Memory) IsAppendable() bool { return true }

// Flush reports the highest version as durably persisted: the in-memory
// segment has no separate durability boundary.
func (m *Memory) Flush(sync bool) (SeqNumberType, error) {
	_ = sync
	return m.Version(), nil
}

func (m *Memory) DropData() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = make(map[PointID]*point)
	return nil
}

func (m *Memory) DataPath() string { return dataPath(m.root) }

func (m *Memory) DeleteFieldIndex(opNum SeqNumberType, key PayloadKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indexed[key]; !ok {
		return false, nil
	}
	delete(m.indexed, key)
	m.bumpVersion(opNum)
	return true, nil
}

func (m *Memory) CreateFieldIndex(opNum SeqNumberType, key PayloadKey, schema string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.indexed[key]; ok && existing == schema {
		return false, nil
	}
	m.indexed[key] = schema
	m.bumpVersion(opNum)
	return true, nil
}

func (m *Memory) GetIndexedFields() map[PayloadKey]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[PayloadKey]string, len(m.indexed))
	for k, v := range m.indexed {
		out[k] = v
	}
	return out
}

func (m *Memory) CheckError() *FailedState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failed
}

// fail records a service-class failure state: a
// segment that has observed one to refuse further writes until cleared
//. Memory does not enforce the refusal itself (no caller path
// triggers a genuine corruption in-memory); it exists so higher layers
// can observe and react to a propagated error.
func (m *Memory) fail(version SeqNumberType, id *PointID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = &FailedState{Version: version, PointID: id, Err: err}
}

func (m *Memory) DeleteFiltered(opNum SeqNumberType, filter *Filter) (int, error) {
	ids := m.ReadFiltered(nil, 0, filter)
	n := 0
	for _, id := range ids {
		ok, err := m.DeletePoint(opNum, id)
		if err != nil {
			m.fail(opNum, &id, err)
			return n, vecerr.NewServiceErrorf("delete_filtered: %v", err)
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (m *Memory) TakeSnapshot(snapshotDirPath string) error {
	// Snapshot byte format is out of scope; acknowledging the call
	// is sufficient for the in-memory variant.
	return nil
}

func (m *Memory) CopySegmentDirectory(targetDirPath string) (string, error) {
	return targetDirPath, nil
}

func (m *Memory) GetTelemetryData() SegmentTelemetry {
	return SegmentTelemetry{SegmentType: SegmentTypePlain, NumPoints: m.PointsCount()}
}

// score computes a similarity score; ranking arithmetic detail is out of
// scope so only enough is implemented to make Search/SearchBatch
// exercise the contract end to end.
func score(a, b []float32) float32 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func (m *Memory) Search(vectorName string, vector []float32, withPayload WithPayload, withVector WithVector, filter *Filter, top int, params *SearchParams) ([]ScoredPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	candidates := make([]ScoredPoint, 0, len(m.points))
	for id, p := range m.points {
		if p.deleted || !filter.matches(id, p.payload) {
			continue
		}
		v, ok := p.vectors[vectorName]
		if !ok {
			continue
		}
		sp := ScoredPoint{ID: id, Score: score(vector, v)}
		if withPayload.Enable {
			sp.Payload = p.payload.Clone()
		}
		if withVector.Enable {
			sp.Vector = NamedVectors{vectorName: append([]float32(nil), v...)}
		}
		candidates = append(candidates, sp)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if top > 0 && len(candidates) > top {
		candidates = candidates[:top]
	}
	return candidates, nil
}

func (m *Memory) SearchBatch(vectorName string, vectors [][]float32, withPayload WithPayload, withVector WithVector, filter *Filter, top int, params *SearchParams) ([][]ScoredPoint, error) {
	out := make([][]ScoredPoint, len(vectors))
	for i, v := range vectors {
		res, err := m.Search(vectorName, v, withPayload, withVector, filter, top, params)
		if err != nil {
			return nil, err
		}
		out[i] = res
	}
	return out, nil
}

var _ Entry = (*Memory)(nil)
