// Package postgres contains the PostgreSQL adapters for the store interfaces.
package postgres
