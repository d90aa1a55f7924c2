// Package domain defines the Todo entity, its transfer schema and the storage
// contracts. It knows nothing about HTTP or SQL.
package domain
