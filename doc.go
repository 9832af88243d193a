// Package sqlitemgmt manages a SQLite database: it brings the schema to a version through
// migrations and lifecycle callbacks, creates tables from tagged structs, and runs queries
// described by method names.
//
// Entities are structs that name their table and tag their columns:
//
//	type Product struct {
//		ID     int64   `db:"id,pk,autoincrement"`
//		Name   string  `db:"name,notnull,unique"`
//		Price  float64 `db:"price,default=0"`
//		Line   *Line   `join:"target=line_id,source=id"`
//	}
//
//	func (Product) TableName() string { return "products" }
//
// A typical program opens a Manager, creates its tables and queries them:
//
//	m, err := sqlitemgmt.Open(ctx, "app.db", sqlitemgmt.WithMigrations(os.DirFS("migrations")))
//	products, err := sqlitemgmt.NewTable[Product](ctx, m)
//	repo := products.Repository()
//	cheap, err := repo.Find(ctx, "findAllByLineOrderByPriceAsc", lineID)
//
// Query methods can also be bound to func fields of a struct with Bind.
//
// Databases are opened with the pure Go modernc.org/sqlite driver. Build with the cgo_sqlite tag
// to use github.com/mattn/go-sqlite3 instead.
package sqlitemgmt
