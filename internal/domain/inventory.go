package domain

// InventoryEntry is the stock of one product at one branch.
type InventoryEntry struct {
	ID        int64
	ProductID int64
	BranchID  int64
	Stock     int
}
