// Package database provides the Store used to record applied migrations in a history table, and
// the DBTxConn interface shared by *sql.DB, *sql.Tx and *sql.Conn.
package database
