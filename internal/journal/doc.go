// Package journal persists drowsy episodes and calibration sessions in SQL.
//
// The DSN selects the driver: postgres:// and postgresql:// URLs use pgx,
// anything else is treated as a SQLite path or file: URI. Schema migrations
// are embedded and applied with goose on Open.
package journal
