// Package store defines the entity store contract consumed by repositories
// and the unit of work, and implements it on top of Bun.
package store
