// Package repository provides the repositories of a unit of work: a
// generic Repository over tracked entities, deferred Query builders and
// the author and course repositories with their specialized queries.
package repository
