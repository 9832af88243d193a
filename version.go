package sqlitemgmt

// LibraryVersion is the release of this module.
const LibraryVersion = "1.0.7"

// DriverName returns the database/sql driver name databases are opened with: "sqlite" for the
// pure Go driver, "sqlite3" when built with the cgo_sqlite tag.
func DriverName() string {
	return driverName
}

// DriverType returns "purego" or "cgo".
func DriverType() string {
	return driverType
}
