// Package infra stores todos in a relational database through bun.
//
// Supported database types are "sqlite" (modernc.org/sqlite, pure Go),
// "postgres" (pgx stdlib driver) and "mysql" (go-sql-driver/mysql). The todos
// table is created on Open when missing.
package infra
