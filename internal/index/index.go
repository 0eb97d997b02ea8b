package index

// DocumentIndex defines the interface for tracked-document lookups.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type DocumentIndex interface {
	UpsertDocument(d DocumentRow) error
	DeleteDocument(path string) error
	GetByPath(path string) (*DocumentRow, error)
	GetByPageID(pageID string) (*DocumentRow, error)
	AllDocuments() ([]DocumentRow, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies DocumentIndex at compile time.
var _ DocumentIndex = (*DB)(nil)
