// Package tracking records the entities of a unit of work and detects
// their changes by comparing column values with the snapshot taken when
// they were loaded or last saved.
package tracking
