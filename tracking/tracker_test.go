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

package tracking_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/pluto/domain"
	"github.com/tomoncle/pluto/errs"
	"github.com/tomoncle/pluto/internal/dbtest"
	"github.com/tomoncle/pluto/store"
	"github.com/tomoncle/pluto/tracking"
)

func newTracker(t *testing.T) (*tracking.Tracker, store.Session, *dbtest.Env) {
	t.Helper()
	env := dbtest.Open(t)
	s, err := env.Store.BeginSession(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	tr := tracking.New(s, nil)
	tr.RegisterType(&domain.Author{})
	tr.RegisterType(&domain.Course{})
	tr.RegisterType(&domain.Tag{})
	return tr, s, env
}

func load[T any](t *testing.T, s store.Session, id int64) *T {
	t.Helper()
	v := new(T)
	require.NoError(t, s.Load(context.Background(), any(v).(store.Entity), id))
	return v
}

func TestAttachResolvesIdentity(t *testing.T) {
	tr, s, env := newTracker(t)
	stored := env.Author(t, "Mosh")

	first := tr.Attach(load[domain.Author](t, s, stored.ID)).(*domain.Author)
	first.Name = "edited"
	second := tr.Attach(load[domain.Author](t, s, stored.ID))

	assert.Same(t, first, second)
	assert.Equal(t, "edited", first.Name)
	e, ok := tr.Lookup(reflect.TypeOf(first), stored.ID)
	require.True(t, ok)
	assert.Equal(t, tracking.Modified, e.State())
	assert.Equal(t, []string{"name"}, e.ModifiedColumns())
}

func TestAttachMergesRelations(t *testing.T) {
	tr, s, env := newTracker(t)
	author := env.Author(t, "Mosh")
	env.Course(t, author, "Go", "10", domain.Beginner)

	tracked := tr.Attach(load[domain.Author](t, s, author.ID)).(*domain.Author)
	assert.Nil(t, tracked.Courses)

	var withCourses []*domain.Author
	require.NoError(t, s.Select(context.Background(), &store.QuerySpec{Relations: []string{"Courses"}}, &withCourses))
	require.Len(t, withCourses, 1)

	got := tr.Attach(withCourses[0]).(*domain.Author)
	assert.Same(t, tracked, got)
	require.Len(t, tracked.Courses, 1)

	course, ok := tr.Lookup(reflect.TypeOf(&domain.Course{}), tracked.Courses[0].ID)
	require.True(t, ok)
	assert.Same(t, tracked.Courses[0], course.Entity())
	assert.Len(t, tr.Entries(), 2)
}

func TestRevertingAnEditIsUnchanged(t *testing.T) {
	tr, s, env := newTracker(t)
	stored := env.Tag(t, "go")
	tag := tr.Attach(load[domain.Tag](t, s, stored.ID)).(*domain.Tag)
	e, _ := tr.Entry(tag)

	tag.Name = "golang"
	assert.Equal(t, tracking.Modified, e.State())
	tag.Name = "go"
	assert.Equal(t, tracking.Unchanged, e.State())
	assert.False(t, tr.HasChanges())
}

func TestCourseAuthorSwapIsDetected(t *testing.T) {
	tr, s, env := newTracker(t)
	mosh := env.Author(t, "Mosh")
	anthony := env.Author(t, "Anthony")
	stored := env.Course(t, mosh, "Go", "10", domain.Beginner)

	course := tr.Attach(load[domain.Course](t, s, stored.ID)).(*domain.Course)
	course.Author = tr.Attach(load[domain.Author](t, s, anthony.ID)).(*domain.Author)

	e, _ := tr.Entry(course)
	assert.Equal(t, tracking.Modified, e.State())
	assert.Equal(t, []string{"author_id"}, e.ModifiedColumns())
}

func TestAddAndRemoveTransitions(t *testing.T) {
	tr, s, env := newTracker(t)
	stored := env.Tag(t, "go")
	tag := tr.Attach(load[domain.Tag](t, s, stored.ID)).(*domain.Tag)

	fresh := &domain.Tag{Name: "new"}
	require.NoError(t, tr.Add(fresh))
	require.NoError(t, tr.Add(fresh))
	assert.Len(t, tr.Entries(), 2)

	err := tr.Remove(fresh)
	assert.ErrorIs(t, err, errs.ErrInvalidState)
	err = tr.Add(tag)
	assert.ErrorIs(t, err, errs.ErrInvalidState)
	err = tr.Add(&domain.Tag{ID: stored.ID, Name: "copy"})
	assert.ErrorIs(t, err, errs.ErrInvalidState)

	err = tr.Remove(&domain.Tag{ID: 42})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "detached")

	require.NoError(t, tr.Remove(tag))
	e, _ := tr.Entry(tag)
	assert.Equal(t, tracking.Deleted, e.State())
	assert.ErrorIs(t, tr.Remove(tag), errs.ErrInvalidState)

	changes, entries := tr.Changes()
	require.Len(t, changes, 2)
	assert.Equal(t, store.OpDelete, changes[0].Op)
	assert.Equal(t, store.OpInsert, changes[1].Op)
	assert.Same(t, fresh, entries[1].Entity())
}

func TestAcceptChanges(t *testing.T) {
	ctx := context.Background()
	tr, s, env := newTracker(t)
	stored := env.Tag(t, "go")
	author := env.Author(t, "Mosh")
	tag := tr.Attach(load[domain.Tag](t, s, stored.ID)).(*domain.Tag)
	removed := tr.Attach(load[domain.Author](t, s, author.ID)).(*domain.Author)

	tag.Name = "golang"
	course := &domain.Course{Name: "Go", Description: "d", Level: domain.Beginner, Author: &domain.Author{Name: "Anthony"}}
	require.NoError(t, tr.Add(course.Author))
	require.NoError(t, tr.Add(course))
	require.NoError(t, tr.Remove(removed))

	changes, entries := tr.Changes()
	require.Len(t, changes, 4)
	res, err := s.Persist(ctx, changes)
	require.NoError(t, err)
	tr.AcceptChanges(entries, res)

	assert.NotZero(t, course.ID)
	assert.Equal(t, course.Author.ID, course.AuthorID)
	assert.EqualValues(t, 1, course.Version)
	require.NotNil(t, course.Cover)
	assert.Equal(t, course.ID, course.Cover.ID)
	assert.EqualValues(t, 2, tag.Version)
	assert.False(t, tr.HasChanges())

	_, ok := tr.Entry(removed)
	assert.False(t, ok)
	e, ok := tr.Lookup(reflect.TypeOf(course), course.ID)
	require.True(t, ok)
	assert.Same(t, course, e.Entity())
}

func TestReload(t *testing.T) {
	ctx := context.Background()
	tr, s, env := newTracker(t)
	stored := env.Tag(t, "go")
	tag := tr.Attach(load[domain.Tag](t, s, stored.ID)).(*domain.Tag)
	e, _ := tr.Entry(tag)

	tag.Name = "local edit"
	_, err := env.DB.NewUpdate().Model((*domain.Tag)(nil)).
		Set("name = ?", "remote").Set("version = 2").Where("id = ?", stored.ID).Exec(ctx)
	require.NoError(t, err)

	require.NoError(t, e.Reload(ctx))
	assert.Equal(t, "remote", tag.Name)
	assert.EqualValues(t, 2, tag.Version)
	assert.Equal(t, tracking.Unchanged, e.State())

	_, err = env.DB.NewDelete().Model((*domain.Tag)(nil)).Where("id = ?", stored.ID).Exec(ctx)
	require.NoError(t, err)
	err = e.Reload(ctx)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
	assert.Equal(t, tracking.Detached, e.State())

	added := &domain.Tag{Name: "unsaved"}
	require.NoError(t, tr.Add(added))
	ae, _ := tr.Entry(added)
	assert.ErrorIs(t, ae.Reload(ctx), errs.ErrInvalidState)
}

func TestGuardAndClose(t *testing.T) {
	env := dbtest.Open(t)
	s, err := env.Store.BeginSession(context.Background())
	require.NoError(t, err)
	defer s.Close()

	blocked := errs.InvalidState("add", "unit of work is committed")
	tr := tracking.New(s, func(string) error { return blocked })
	tr.RegisterType(&domain.Tag{})
	assert.ErrorIs(t, tr.Add(&domain.Tag{Name: "x"}), errs.ErrInvalidState)

	tr = tracking.New(s, nil)
	tr.RegisterType(&domain.Tag{})
	tag := &domain.Tag{Name: "x"}
	require.NoError(t, tr.Add(tag))
	e, _ := tr.Entry(tag)
	tr.Close()
	assert.Equal(t, tracking.Detached, e.State())
	assert.Empty(t, tr.Entries())
	assert.ErrorIs(t, tr.Add(tag), errs.ErrInvalidState)
}

func TestForeignKeyEditRelinksAuthor(t *testing.T) {
	tr, s, env := newTracker(t)
	mosh := env.Author(t, "Mosh")
	anthony := env.Author(t, "Anthony")
	stored := env.Course(t, mosh, "Go", "10", domain.Beginner)

	loaded := load[domain.Course](t, s, stored.ID)
	loaded.Author = load[domain.Author](t, s, mosh.ID)
	course := tr.Attach(loaded).(*domain.Course)
	e, _ := tr.Entry(course)

	// untracked target: the stale author is dropped
	course.AuthorID = anthony.ID
	assert.Equal(t, tracking.Modified, e.State())
	assert.Equal(t, []string{"author_id"}, e.ModifiedColumns())
	assert.Nil(t, course.Author)
	assert.Equal(t, anthony.ID, course.AuthorID)

	course.AuthorID = mosh.ID
	assert.Equal(t, tracking.Unchanged, e.State())

	tracked := tr.Attach(load[domain.Author](t, s, anthony.ID)).(*domain.Author)
	course.AuthorID = anthony.ID
	assert.Equal(t, tracking.Modified, e.State())
	assert.Same(t, tracked, course.Author)
}

func TestCourseTagLinkChanges(t *testing.T) {
	ctx := context.Background()
	tr, s, env := newTracker(t)
	mosh := env.Author(t, "Mosh")
	stored := env.Course(t, mosh, "Go", "10", domain.Beginner)
	goTag := env.Tag(t, "go")

	loaded := load[domain.Course](t, s, stored.ID)
	loaded.Tags = []*domain.Tag{}
	course := tr.Attach(loaded).(*domain.Course)
	e, _ := tr.Entry(course)
	assert.Equal(t, tracking.Unchanged, e.State())

	tag := tr.Attach(load[domain.Tag](t, s, goTag.ID)).(*domain.Tag)
	course.Tags = append(course.Tags, tag, tag)
	assert.Equal(t, tracking.Modified, e.State())
	assert.Empty(t, e.ModifiedColumns())
	links := e.LinkChanges()
	require.Len(t, links, 1)
	assert.Equal(t, "Tags", links[0].Relation)
	assert.Equal(t, []store.Entity{tag}, links[0].Added)
	assert.Empty(t, links[0].Removed)

	changes, entries := tr.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, store.OpUpdate, changes[0].Op)
	assert.Equal(t, links, changes[0].Links)
	res, err := s.Persist(ctx, changes)
	require.NoError(t, err)
	// course version, join row
	assert.EqualValues(t, 2, res.RowsAffected)
	tr.AcceptChanges(entries, res)
	assert.Empty(t, e.LinkChanges())
	assert.False(t, tr.HasChanges())

	rows, err := env.DB.NewSelect().Model((*domain.CourseTag)(nil)).Where("course_id = ?", course.ID).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rows)

	// a nil relation counts as not loaded
	course.Tags = nil
	assert.Equal(t, tracking.Unchanged, e.State())
	course.Tags = []*domain.Tag{}
	require.Equal(t, tracking.Modified, e.State())
	assert.Equal(t, []store.Entity{tag}, e.LinkChanges()[0].Removed)
}
