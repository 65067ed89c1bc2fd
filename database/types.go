package database

// EntryRecord represents one key-value entry in the database.
type EntryRecord struct {
	Key   string
	Value string
}
