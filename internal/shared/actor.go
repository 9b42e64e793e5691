package shared

// Actor identifies who performs an operation and from which warehouse.
type Actor struct {
	UserID      int64
	WarehouseID int64
	Name        string
}

// Validate ensures the actor can scope invoices and stock.
func (a Actor) Validate() error {
	if a.UserID <= 0 {
		return Validation("user is required")
	}
	if a.WarehouseID <= 0 {
		return Validation("warehouse is required")
	}
	return nil
}
