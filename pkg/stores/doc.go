// Package stores persists report run history.
//
// SQLiteStore keeps one row per report execution, with the per-component
// outcomes serialized as JSON. The schema is managed by embedded
// migrations and applied with Migrate.
package stores
