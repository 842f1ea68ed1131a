package service

import (
	"context"
	"fmt"
	"time"

	"salon-service/internal/util"

	"go.uber.org/zap"
)

// InventoryClient reserves and releases product stock for orders
type InventoryClient struct {
	stock  StockRepository
	logger *zap.Logger
}

// NewInventoryClient creates a new inventory client
func NewInventoryClient(stock StockRepository) *InventoryClient {
	return &InventoryClient{
		stock:  stock,
		logger: util.GetLogger(),
	}
}

// ReserveStock takes quantity off a product.
// It reports false when the product no longer has enough stock.
func (ic *InventoryClient) ReserveStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	ctx, span := util.StartSpan(ctx, "InventoryClient.ReserveStock")
	defer span.End()

	start := time.Now()
	defer func() {
		util.StockReserveLatency.Observe(time.Since(start).Seconds())
	}()

	ok, err := ic.stock.DecrementStock(ctx, productID, quantity)
	if err != nil {
		util.RecordError(span, err)
		return false, fmt.Errorf("reserve stock for product %d: %w", productID, err)
	}
	return ok, nil
}

// ReleaseStock puts quantity back on a product
func (ic *InventoryClient) ReleaseStock(ctx context.Context, productID int64, quantity int) error {
	ctx, span := util.StartSpan(ctx, "InventoryClient.ReleaseStock")
	defer span.End()

	if err := ic.stock.RestoreStock(ctx, productID, quantity); err != nil {
		util.RecordError(span, err)
		return fmt.Errorf("release stock for product %d: %w", productID, err)
	}

	ic.logger.Debug("Stock released",
		zap.Int64("product_id", productID),
		zap.Int("quantity", quantity))
	return nil
}
