package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"pc_store/internal/database/dbtest"
	"pc_store/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedProduct(t *testing.T, db *gorm.DB, stock int64) model.Product {
	t.Helper()
	p := model.Product{Name: "RTX 4070", Price: decimal.NewFromInt(100), Stock: stock}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func stockOf(t *testing.T, db *gorm.DB, id uuid.UUID) int64 {
	t.Helper()
	var p model.Product
	require.NoError(t, db.Unscoped().First(&p, "id = ?", id).Error)
	return p.Stock
}

func TestReserve_Decrements(t *testing.T) {
	db := dbtest.Open(t)
	l := NewLedger(nil)
	p := seedProduct(t, db, 5)

	err := db.Transaction(func(tx *gorm.DB) error {
		return l.Reserve(context.Background(), tx, []Line{{ProductID: p.ID, Quantity: 2}})
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), stockOf(t, db, p.ID))
}

func TestReserve_MergesDuplicateLines(t *testing.T) {
	db := dbtest.Open(t)
	l := NewLedger(nil)
	p := seedProduct(t, db, 3)

	err := db.Transaction(func(tx *gorm.DB) error {
		return l.Reserve(context.Background(), tx, []Line{
			{ProductID: p.ID, Quantity: 2},
			{ProductID: p.ID, Quantity: 2},
		})
	})

	var se *StockError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, int64(4), se.Requested)
	assert.Equal(t, int64(3), se.Available)
	assert.Equal(t, int64(3), stockOf(t, db, p.ID))
}

func TestReserve_InsufficientRollsBackEarlierLines(t *testing.T) {
	db := dbtest.Open(t)
	l := NewLedger(nil)
	a := seedProduct(t, db, 10)
	b := seedProduct(t, db, 1)

	err := db.Transaction(func(tx *gorm.DB) error {
		return l.Reserve(context.Background(), tx, []Line{
			{ProductID: a.ID, Quantity: 4},
			{ProductID: b.ID, Quantity: 2},
		})
	})

	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, int64(10), stockOf(t, db, a.ID))
	assert.Equal(t, int64(1), stockOf(t, db, b.ID))
}

func TestReserve_UnknownProduct(t *testing.T) {
	db := dbtest.Open(t)
	l := NewLedger(nil)

	err := db.Transaction(func(tx *gorm.DB) error {
		return l.Reserve(context.Background(), tx, []Line{{ProductID: uuid.New(), Quantity: 1}})
	})
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestRelease_RestoresStock(t *testing.T) {
	db := dbtest.Open(t)
	l := NewLedger(nil)
	p := seedProduct(t, db, 3)

	err := db.Transaction(func(tx *gorm.DB) error {
		return l.Release(context.Background(), tx, []Line{{ProductID: p.ID, Quantity: 2}})
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), stockOf(t, db, p.ID))
}

func TestRelease_SoftDeletedProductStillRestored(t *testing.T) {
	db := dbtest.Open(t)
	l := NewLedger(nil)
	p := seedProduct(t, db, 0)
	require.NoError(t, db.Delete(&p).Error)

	err := db.Transaction(func(tx *gorm.DB) error {
		return l.Release(context.Background(), tx, []Line{{ProductID: p.ID, Quantity: 2}})
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), stockOf(t, db, p.ID))
}

func TestRelease_MissingProductIsSkipped(t *testing.T) {
	db := dbtest.Open(t)
	l := NewLedger(nil)

	err := db.Transaction(func(tx *gorm.DB) error {
		return l.Release(context.Background(), tx, []Line{{ProductID: uuid.New(), Quantity: 1}})
	})
	assert.NoError(t, err)
}

func TestReserve_ConcurrentNeverOversells(t *testing.T) {
	db := dbtest.Open(t)
	l := NewLedger(nil)
	p := seedProduct(t, db, 5)

	const workers = 12
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		short   int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.Transaction(func(tx *gorm.DB) error {
				return l.Reserve(context.Background(), tx, []Line{{ProductID: p.ID, Quantity: 1}})
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, ErrInsufficientStock):
				short++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, success)
	assert.Equal(t, workers-5, short)
	assert.Equal(t, int64(0), stockOf(t, db, p.ID))
}

func TestLinesOf(t *testing.T) {
	id := uuid.New()
	lines := LinesOf([]model.OrderItem{{ProductID: id, Quantity: 3}})
	assert.Equal(t, []Line{{ProductID: id, Quantity: 3}}, lines)
}
