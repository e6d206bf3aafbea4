package receipt

// History persists the whole receipt collection.
// Every mutation rewrites the collection; implementations must keep its order.
type History interface {
	// LoadAll returns every receipt in stored order
	LoadAll() ([]*Receipt, error)

	// ReplaceAll atomically replaces the stored collection
	ReplaceAll(receipts []*Receipt) error

	// Close closes the underlying store
	Close() error
}
