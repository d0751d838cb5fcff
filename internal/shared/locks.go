package shared

import "fmt"

// StockResyncLockKey builds the redis lock key serialising stock projection rebuilds.
func StockResyncLockKey(companyID, productID string) string {
	return fmt.Sprintf("billing:stock-resync:%s:%s:lock", companyID, productID)
}
