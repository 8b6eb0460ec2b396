// Package store defines the repository interfaces and shared persistence
// primitives (DBTX, transactions, sentinel errors) used by the service layer.
// Concrete adapters live in internal/platform/postgres; everything else
// depends only on these interfaces.
package store
