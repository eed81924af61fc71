package vtexture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-engine/streamforge/internal/pool"
	"github.com/kestrel-engine/streamforge/internal/queue"
	"github.com/kestrel-engine/streamforge/internal/resident"
)

func newTestManager(t *testing.T) (*Manager, *queue.Queue, *resident.Table) {
	t.Helper()
	q := queue.New()
	table := resident.NewTable(pool.New(1 << 20))
	m, err := NewManager(q, table, 1<<20)
	require.NoError(t, err)
	return m, q, table
}

func TestCreateSizesPageGridAndMips(t *testing.T) {
	m, _, _ := newTestManager(t)

	vt := m.Create(16384, 16384, 0)
	assert.Equal(t, uint32(4), vt.PageGridW)
	assert.Equal(t, uint32(4), vt.PageGridH)
	assert.Equal(t, uint32(3), vt.MipCount)
	assert.Len(t, vt.Indirection, 2048*2048*4)

	small := m.Create(4096, 4096, 0)
	assert.Equal(t, uint32(1), small.PageGridW)
	assert.Equal(t, uint32(1), small.MipCount)
}

func TestPseudoAssetIDLayout(t *testing.T) {
	id := pseudoAssetID(3, 7, 9)
	assert.Equal(t, uint64(3)<<32|uint64(9)<<16|uint64(7), uint64(id))
}

func TestRequestPageEnqueuesHighPriority(t *testing.T) {
	m, q, _ := newTestManager(t)
	vt := m.Create(16384, 16384, 0)

	page := m.RequestPage(vt, 1, 2, 0)
	require.NotNil(t, page)

	h, req, ok := q.PopNext()
	require.True(t, ok)
	assert.Equal(t, queue.High, req.Priority)
	assert.Equal(t, pseudoAssetID(vt.ID, 1, 2), req.AssetID)
	assert.NotZero(t, h)
}

// completePageRequest plays the scheduler's role for one page request:
// installs a resident record and fires the completion callback.
func completePageRequest(t *testing.T, q *queue.Queue, table *resident.Table) {
	t.Helper()
	h, req, ok := q.PopNext()
	require.True(t, ok)

	table.Insert(&resident.Record{AssetID: req.AssetID, AggregateSize: 64})
	q.SetStatus(h, queue.Complete)
	req.Status = queue.Complete
	if req.Callback != nil {
		req.Callback(h, &req)
	}
}

func TestPageBecomesResidentOnCompletion(t *testing.T) {
	m, q, table := newTestManager(t)
	vt := m.Create(16384, 16384, 0)

	page := m.RequestPage(vt, 0, 0, 0)
	completePageRequest(t, q, table)

	assert.True(t, page.resident.Load())

	// A repeat request for a resident page must not enqueue again.
	m.RequestPage(vt, 0, 0, 0)
	_, _, ok := q.PopNext()
	assert.False(t, ok, "resident page request should coalesce, not re-enqueue")
}

func TestUpdateIndirectionMarksResidentCells(t *testing.T) {
	m, q, table := newTestManager(t)
	vt := m.Create(8192, 8192, 0) // 2x2 page grid

	m.RequestPage(vt, 0, 0, 0)
	completePageRequest(t, q, table)
	m.UpdateIndirection(vt)

	// Cell (0,0) is covered by the resident page (0,0).
	assert.Equal(t, byte(0xFF), vt.Indirection[3])

	// A cell in the right half is covered by the absent page (1,0).
	off := (vt.indirDim/2 + 1) * indirCellBytes
	assert.Equal(t, byte(0), vt.Indirection[off+3])
}
