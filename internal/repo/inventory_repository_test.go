package repo

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/director74/fulfillment_engine/internal/entity"
	apperrors "github.com/director74/fulfillment_engine/pkg/errors"
)

func inventoryRows(onHand, reserved, safetyStock int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "variant_id", "location_id", "on_hand", "reserved", "safety_stock", "channel_buffers",
	}).AddRow(1, 7, 3, onHand, reserved, safetyStock, []byte(`{}`))
}

// Резервация читает строку с блокировкой FOR UPDATE, проверяет
// доступность и пишет движение в журнал в одной транзакции: два
// конкурентных резерва не могут превысить доступное количество
func TestReserveLocksChecksAndAppendsInOneTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewInventoryRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM "inventory_items" WHERE variant_id = .+ AND location_id = .+ FOR UPDATE`).
		WillReturnRows(inventoryRows(10, 2, 0))
	mock.ExpectExec(`UPDATE "inventory_items" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "stock_movements"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	line := entity.ReserveLine{VariantID: 7, LocationID: 3, Channel: "web", Quantity: 3}
	err := repo.Reserve(context.Background(), line, "order-10")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveRollsBackWhenInsufficient(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewInventoryRepository(db)

	// Под блокировкой доступно 1, запрошено 3: транзакция откатывается
	// без обновления остатка и без записи в журнал
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM "inventory_items" WHERE variant_id = .+ AND location_id = .+ FOR UPDATE`).
		WillReturnRows(inventoryRows(5, 4, 0))
	mock.ExpectRollback()

	line := entity.ReserveLine{VariantID: 7, LocationID: 3, Channel: "web", Quantity: 3}
	err := repo.Reserve(context.Background(), line, "order-10")
	assert.ErrorIs(t, err, apperrors.ErrInsufficientInventory)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitSaleRollsBackOnInvariantViolation(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewInventoryRepository(db)

	// Списание больше резерва нарушает инвариант reserved <= on_hand
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM "inventory_items" WHERE variant_id = .+ AND location_id = .+ FOR UPDATE`).
		WillReturnRows(inventoryRows(10, 1, 0))
	mock.ExpectRollback()

	line := entity.ReserveLine{VariantID: 7, LocationID: 3, Channel: "web", Quantity: 2}
	err := repo.CommitSale(context.Background(), line, "order-10")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitSaleDecrementsBothCountersAndLogsSale(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewInventoryRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM "inventory_items" WHERE variant_id = .+ AND location_id = .+ FOR UPDATE`).
		WillReturnRows(inventoryRows(10, 2, 0))
	mock.ExpectExec(`UPDATE "inventory_items" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "stock_movements"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	line := entity.ReserveLine{VariantID: 7, LocationID: 3, Channel: "web", Quantity: 2}
	err := repo.CommitSale(context.Background(), line, "order-10")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
