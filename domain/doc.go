// Package domain holds the Author, Course, Cover and Tag entities, their
// validation rules and the integrity rules applied when they are persisted.
package domain
