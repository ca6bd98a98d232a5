/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package pluto

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/tomoncle/pluto/database"
	"github.com/tomoncle/pluto/domain"
	"github.com/tomoncle/pluto/errs"
	"github.com/tomoncle/pluto/repository"
	"github.com/tomoncle/pluto/store"
	"github.com/tomoncle/pluto/tracking"
)

// State is the lifecycle position of a unit of work.
type State int

const (
	Open State = iota
	Committed
	Disposed
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Committed:
		return "committed"
	default:
		return "disposed"
	}
}

// UnitOfWork aggregates the repositories of one session and commits their
// pending changes in a single transaction. It is not safe for concurrent use.
type UnitOfWork interface {
	// ID identifies the unit of work in logs.
	ID() string
	Authors() repository.AuthorRepository
	Courses() repository.CourseRepository
	Tags() repository.Repository[domain.Tag]
	// Commit writes every staged change and returns the number of affected
	// rows. Nothing changes in memory when it fails.
	Commit(ctx context.Context) (int64, error)
	Entries() ([]*tracking.Entry, error)
	HasChanges() (bool, error)
	State() State
	// Close discards staged changes and releases the session.
	Close() error
}

// Option configures a unit of work.
type Option func(*unitOfWork)

// WithLogger sets the logger of the unit of work.
func WithLogger(logger database.Logger) Option {
	return func(u *unitOfWork) {
		if logger != nil {
			u.logger = logger
		}
	}
}

type unitOfWork struct {
	id      string
	state   State
	session store.Session
	tracker *tracking.Tracker
	logger  database.Logger
	authors repository.AuthorRepository
	courses repository.CourseRepository
	tags    repository.Repository[domain.Tag]
}

// New opens a unit of work on a new session of s.
func New(ctx context.Context, s store.Store, opts ...Option) (UnitOfWork, error) {
	session, err := s.BeginSession(ctx)
	if err != nil {
		return nil, err
	}
	u := &unitOfWork{
		id:      uuid.NewString(),
		session: session,
		logger:  database.GetLogger(),
	}
	for _, opt := range opts {
		opt(u)
	}
	u.logger = u.logger.With("uow", u.id)
	u.tracker = tracking.New(session, u.guard)
	scope := repository.Scope{Session: session, Tracker: u.tracker, Guard: u.guard}
	u.authors = repository.NewAuthorRepository(scope)
	u.courses = repository.NewCourseRepository(scope)
	u.tags = repository.NewRepository[domain.Tag](scope)
	u.logger.Debug("unit of work opened")
	return u, nil
}

// Run opens a unit of work, calls fn and closes it whatever fn returns.
func Run(ctx context.Context, s store.Store, fn func(UnitOfWork) error, opts ...Option) (err error) {
	u, err := New(ctx, s, opts...)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, u.Close())
	}()
	return fn(u)
}

func (u *unitOfWork) guard(op string) error {
	switch u.state {
	case Committed:
		return errs.InvalidState(op, "unit of work is committed")
	case Disposed:
		return errs.InvalidState(op, "unit of work is disposed")
	}
	return nil
}

func (u *unitOfWork) ID() string { return u.id }

func (u *unitOfWork) State() State { return u.state }

func (u *unitOfWork) Authors() repository.AuthorRepository { return u.authors }

func (u *unitOfWork) Courses() repository.CourseRepository { return u.courses }

func (u *unitOfWork) Tags() repository.Repository[domain.Tag] { return u.tags }

func (u *unitOfWork) Commit(ctx context.Context) (int64, error) {
	if err := u.guard("commit"); err != nil {
		return 0, err
	}
	changes, entries := u.tracker.Changes()
	if len(changes) == 0 {
		return 0, nil
	}
	for _, c := range changes {
		if c.Op == store.OpDelete {
			continue
		}
		if v, ok := c.Entity.(store.Validatable); ok {
			if err := v.Validate(); err != nil {
				return 0, errs.WithOp("commit", errs.Validation(u.session.EntityName(c.Entity), err))
			}
		}
	}

	result, err := u.session.Persist(ctx, changes)
	if err != nil {
		u.logger.Warn("commit failed", "changes", len(changes), "error", err)
		return 0, errs.WithOp("commit", err)
	}
	u.tracker.AcceptChanges(entries, result)
	u.state = Committed
	u.logger.Debug("unit of work committed", "changes", len(changes), "rows", result.RowsAffected)
	return result.RowsAffected, nil
}

func (u *unitOfWork) Entries() ([]*tracking.Entry, error) {
	if err := u.guard("entries"); err != nil {
		return nil, err
	}
	return u.tracker.Entries(), nil
}

func (u *unitOfWork) HasChanges() (bool, error) {
	if err := u.guard("has changes"); err != nil {
		return false, err
	}
	return u.tracker.HasChanges(), nil
}

func (u *unitOfWork) Close() error {
	if u.state == Disposed {
		return nil
	}
	u.state = Disposed
	u.tracker.Close()
	err := u.session.Close()
	u.logger.Debug("unit of work closed")
	return err
}
