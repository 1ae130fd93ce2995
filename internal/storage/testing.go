package storage

// NewMemoryService opens a migrated in-memory database and returns a
// service over it. Closing the service closes the database.
func NewMemoryService() (*Service, error) {
	db, err := OpenInMemory()
	if err != nil {
		return nil, err
	}
	return NewService(db), nil
}
