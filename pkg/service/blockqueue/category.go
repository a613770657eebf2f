package blockqueue

// Category identifies an independent queue namespace. Every operation
// is scoped to exactly one Category, and categories never share state.
type Category string

// The closed set of categories the pipeline syncs.
const (
	Blocks       Category = "BLOCKS"
	Transactions Category = "TRANSACTIONS"
	Receipts     Category = "RECEIPTS"
)

// Categories lists every valid Category.
func Categories() []Category {
	return []Category{Blocks, Transactions, Receipts}
}

// Valid reports whether c is a member of the closed category set.
func (c Category) Valid() bool {
	switch c {
	case Blocks, Transactions, Receipts:
		return true
	}
	return false
}

// BackupKey is the field under which c's backup record is stored in
// the backups hash.
func (c Category) BackupKey() string {
	return string(c) + "-backup"
}

func (c Category) queueKey() string {
	return string(c) + "-queue"
}
