package shared

import "fmt"

// StockKey identifies a product+size pair. IDs are compared exactly as stored.
type StockKey struct {
	ProductID string
	Size      string
}

// NewStockKey builds the key for one product+size pair.
func NewStockKey(productID, size string) StockKey {
	return StockKey{ProductID: productID, Size: size}
}

// IdempotencyKey builds redis keys for processed request keys.
func IdempotencyKey(module, key string) string {
	return fmt.Sprintf("idempotency:%s:%s", module, key)
}
