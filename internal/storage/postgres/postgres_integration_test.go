//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/xenking/merchshop/internal/domain/notification"
	"github.com/xenking/merchshop/internal/domain/order"
	"github.com/xenking/merchshop/internal/domain/product"
	"github.com/xenking/merchshop/internal/domain/promo"
)

func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:17-alpine",
		tcpostgres.WithDatabase("merch"),
		tcpostgres.WithUsername("merch"),
		tcpostgres.WithPassword("merch"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))
	// Idempotent.
	require.NoError(t, RunMigrations(ctx, pool))
	return pool
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRepositories(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()

	products := NewProductRepository(pool)
	promos := NewPromoRepository(pool)
	orders := NewOrderRepository(pool)
	notifications := NewNotificationRepository(pool)
	tx := NewTransactor(pool)

	discount := dec("80000.00")
	require.NoError(t, products.Upsert(ctx, product.Product{ID: 1, Name: "Hoodie", Price: dec("100000.00"), DiscountPrice: &discount, IsActive: true}))
	require.NoError(t, products.Upsert(ctx, product.Product{ID: 2, Name: "Mug", Price: dec("25000.50"), IsActive: true}))

	from := time.Now().Add(-time.Hour)
	to := time.Now().Add(time.Hour)
	spring := &promo.Code{Code: "spring10", Percent: dec("10"), IsActive: true, HasDateWindow: true, ActiveFrom: &from, ActiveTo: &to}
	require.NoError(t, promos.Upsert(ctx, spring))
	require.NotZero(t, spring.ID)

	t.Run("products by ids", func(t *testing.T) {
		got, err := products.GetByIDs(ctx, []int64{1, 2, 99})
		require.NoError(t, err)
		require.Len(t, got, 2)
		for _, p := range got {
			if p.ID == 1 {
				require.NotNil(t, p.DiscountPrice)
				assert.True(t, p.DiscountPrice.Equal(discount))
			} else {
				assert.Nil(t, p.DiscountPrice)
			}
		}
	})

	t.Run("promo lookup is case insensitive", func(t *testing.T) {
		c, err := promos.FindByCode(ctx, "Spring10")
		require.NoError(t, err)
		assert.Equal(t, "SPRING10", c.Code)
		assert.True(t, c.Percent.Equal(dec("10")))
		assert.True(t, c.HasDateWindow)

		_, err = promos.FindByCode(ctx, "NOPE")
		assert.ErrorIs(t, err, promo.ErrNotFound)
	})

	newOrder := func() *order.Order {
		return &order.Order{
			FullName:      "Ann",
			PhoneNumber:   "+998901234567",
			PaymentMethod: order.PaymentCash,
			PromoID:       &spring.ID,
			Subtotal:      dec("105000.50"),
			DiscountTotal: dec("10500.05"),
			Total:         dec("94500.45"),
			Status:        order.StatusNew,
			Items: []order.Item{
				{ProductID: 1, NameSnapshot: "Hoodie", PriceSnapshot: dec("80000.00"), Qty: 1, LineTotal: dec("80000.00")},
				{ProductID: 2, NameSnapshot: "Mug", PriceSnapshot: dec("25000.50"), Qty: 1, LineTotal: dec("25000.50")},
			},
		}
	}

	t.Run("create and get order", func(t *testing.T) {
		o := newOrder()
		require.NoError(t, tx.InTx(ctx, func(ctx context.Context) error {
			if err := orders.Create(ctx, o); err != nil {
				return err
			}
			return orders.CreateItems(ctx, o.ID, o.Items)
		}))

		got, err := orders.Get(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, "SPRING10", got.PromoCode)
		assert.Empty(t, got.TelegramUsername)
		assert.True(t, got.Total.Equal(o.Total))
		require.Len(t, got.Items, 2)
		assert.Equal(t, "Hoodie", got.Items[0].NameSnapshot)
		assert.Equal(t, o.ID, got.Items[1].OrderID)

		prev, err := orders.UpdateStatus(ctx, o.ID, order.StatusConfirmed)
		require.NoError(t, err)
		assert.Equal(t, order.StatusNew, prev)
	})

	t.Run("failed items roll back the header", func(t *testing.T) {
		o := newOrder()
		o.Items[1].ProductID = 999
		err := tx.InTx(ctx, func(ctx context.Context) error {
			if err := orders.Create(ctx, o); err != nil {
				return err
			}
			return orders.CreateItems(ctx, o.ID, o.Items)
		})
		require.Error(t, err)

		_, err = orders.Get(ctx, o.ID)
		assert.ErrorIs(t, err, order.ErrNotFound)
	})

	t.Run("notifications finalize once and cascade", func(t *testing.T) {
		o := newOrder()
		require.NoError(t, orders.Create(ctx, o))
		require.NoError(t, orders.CreateItems(ctx, o.ID, o.Items))

		n := &notification.GroupNotification{OrderID: o.ID}
		require.NoError(t, notifications.Create(ctx, n))
		assert.Equal(t, notification.StatusPending, n.Status)

		require.NoError(t, notifications.MarkSent(ctx, n.ID, "42"))
		assert.ErrorIs(t, notifications.MarkFailed(ctx, n.ID, "late"), notification.ErrAlreadyFinal)

		list, err := notifications.ListByOrder(ctx, o.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "42", list[0].MessageID)

		stats, err := notifications.Stats(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, stats.Sent, 1)

		require.NoError(t, orders.Delete(ctx, o.ID))
		list, err = notifications.ListByOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Empty(t, list)
		assert.ErrorIs(t, orders.Delete(ctx, o.ID), order.ErrNotFound)

		err = notifications.Create(ctx, &notification.GroupNotification{OrderID: o.ID})
		assert.ErrorIs(t, err, order.ErrNotFound)
	})

	t.Run("deleting a promo keeps order amounts", func(t *testing.T) {
		o := newOrder()
		require.NoError(t, orders.Create(ctx, o))
		require.NoError(t, orders.CreateItems(ctx, o.ID, o.Items))

		require.NoError(t, promos.Delete(ctx, "spring10"))
		got, err := orders.Get(ctx, o.ID)
		require.NoError(t, err)
		assert.Nil(t, got.PromoID)
		assert.True(t, got.DiscountTotal.Equal(dec("10500.05")))
	})

	t.Run("batch upsert", func(t *testing.T) {
		require.NoError(t, promos.UpsertMany(ctx, []promo.Code{
			{Code: "A1", Percent: dec("5"), IsActive: true},
			{Code: "B2", Percent: dec("50"), IsActive: false},
		}))
		c, err := promos.FindByCode(ctx, "b2")
		require.NoError(t, err)
		assert.False(t, c.IsActive)
	})
}
