// Package errs defines the error taxonomy shared by the store, the change
// tracker, the repositories and the unit of work.
package errs
