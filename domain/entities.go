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

package domain

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
	"github.com/tomoncle/pluto/errs"
	"github.com/tomoncle/pluto/store"
	"github.com/uptrace/bun"
)

// Author writes courses. Deleting an author that still owns courses is rejected.
type Author struct {
	bun.BaseModel `bun:"table:authors,alias:author"`

	ID      int64     `bun:"id,pk,autoincrement" json:"id"`
	Name    string    `bun:"name,type:varchar(255),notnull" json:"name"`
	Version int64     `bun:"version,notnull" json:"version"`
	Courses []*Course `bun:"rel:has-many,join:id=author_id" json:"courses,omitempty"`
}

func (a *Author) GetID() int64       { return a.ID }
func (a *Author) GetVersion() int64  { return a.Version }
func (a *Author) SetVersion(v int64) { a.Version = v }

func (a *Author) Validate() error {
	return validation.ValidateStruct(a,
		validation.Field(&a.Name, validation.Required, validation.Length(1, 255)),
	)
}

func (a *Author) Constraints() store.Constraints {
	return store.Constraints{
		Restrict: []store.Dependent{{Model: (*Course)(nil), Column: "author_id", Name: "courses"}},
	}
}

// Course is taught by exactly one author, has exactly one cover and any
// number of tags.
type Course struct {
	bun.BaseModel `bun:"table:courses,alias:course"`

	ID          int64           `bun:"id,pk,autoincrement" json:"id"`
	Name        string          `bun:"name,type:varchar(255),notnull" json:"name"`
	Description string          `bun:"description,type:varchar(2000),notnull" json:"description"`
	FullPrice   decimal.Decimal `bun:"full_price,type:decimal(10,2),notnull" json:"full_price"`
	Level       CourseLevel     `bun:"level,notnull" json:"level"`
	AuthorID    int64           `bun:"author_id,notnull" json:"author_id"`
	Version     int64           `bun:"version,notnull" json:"version"`
	Author      *Author         `bun:"rel:belongs-to,join:author_id=id" json:"author,omitempty"`
	Cover       *Cover          `bun:"rel:has-one,join:id=id" json:"cover,omitempty"`
	Tags        []*Tag          `bun:"m2m:course_tags,join:Course=Tag" json:"tags,omitempty"`
}

func (c *Course) GetID() int64       { return c.ID }
func (c *Course) GetVersion() int64  { return c.Version }
func (c *Course) SetVersion(v int64) { c.Version = v }

func (c *Course) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&c.Description, validation.Required, validation.Length(1, 2000)),
		validation.Field(&c.FullPrice, validation.By(nonNegative)),
		validation.Field(&c.Level, validation.Required, validation.In(Beginner, Intermediate, Advanced)),
		validation.Field(&c.AuthorID, validation.When(c.Author == nil,
			validation.Required.Error("is required unless an author is set"))),
	)
}

func nonNegative(value interface{}) error {
	d, ok := value.(decimal.Decimal)
	if !ok {
		return errors.New("must be a decimal")
	}
	if d.IsNegative() {
		return errors.New("must not be negative")
	}
	return nil
}

// LinkForeignKeys copies the identity of the referenced author into AuthorID.
func (c *Course) LinkForeignKeys(resolve store.Resolver) {
	if c.Author == nil {
		return
	}
	if author, ok := resolve(c.Author).(*Author); ok && author.ID != 0 {
		c.AuthorID = author.ID
	}
}

// RelinkReferences lets an edited AuthorID win over a loaded Author that
// still carries the old identity.
func (c *Course) RelinkReferences(changed map[string]bool, lookup func(model any, id int64) any) {
	if !changed["author_id"] || c.Author == nil || c.Author.ID == c.AuthorID {
		return
	}
	author, _ := lookup((*Author)(nil), c.AuthorID).(*Author)
	c.Author = author
}

func (c *Course) LinkRelations() []string { return []string{"Tags"} }

func (c *Course) Linked(relation string) []store.Entity {
	if relation != "Tags" || c.Tags == nil {
		return nil
	}
	out := make([]store.Entity, 0, len(c.Tags))
	for _, tag := range c.Tags {
		if tag != nil {
			out = append(out, tag)
		}
	}
	return out
}

func (c *Course) SetLinked(relation string, targets []store.Entity) {
	if relation != "Tags" {
		return
	}
	tags := make([]*Tag, 0, len(targets))
	for _, target := range targets {
		if tag, ok := target.(*Tag); ok {
			tags = append(tags, tag)
		}
	}
	c.Tags = tags
}

func (c *Course) LinkRow(relation string, owner, target int64) any {
	return &CourseTag{CourseID: owner, TagID: target}
}

func (c *Course) Constraints() store.Constraints {
	return store.Constraints{
		References: []store.Reference{{Model: (*Author)(nil), ID: c.AuthorID, Name: "author"}},
		Cascade: []store.Dependent{
			{Model: (*Cover)(nil), Column: "id", Name: "cover"},
			{Model: (*CourseTag)(nil), Column: "course_id", Name: "tags"},
		},
	}
}

// OwnedRows returns the cover row and one course_tags row per tag.
func (c *Course) OwnedRows(id int64, resolve store.Resolver) ([]any, error) {
	rows := []any{&Cover{ID: id}}
	for _, tag := range c.Tags {
		if tag == nil {
			continue
		}
		t, _ := resolve(tag).(*Tag)
		if t == nil || t.ID == 0 {
			return nil, errs.Validationf("course", "tag %q is neither persisted nor added", tag.Name)
		}
		rows = append(rows, c.LinkRow("Tags", id, t.ID))
	}
	return rows, nil
}

// AdoptOwned points Cover at the row written with the course.
func (c *Course) AdoptOwned(id int64) {
	if c.Cover == nil {
		c.Cover = &Cover{}
	}
	c.Cover.ID = id
}

// Cover shares its identity with its course and only exists with it.
type Cover struct {
	bun.BaseModel `bun:"table:covers,alias:cover"`

	ID int64 `bun:"id,pk" json:"id"`
}

func (c *Cover) GetID() int64 { return c.ID }

// Tag labels courses.
type Tag struct {
	bun.BaseModel `bun:"table:tags,alias:tag"`

	ID      int64     `bun:"id,pk,autoincrement" json:"id"`
	Name    string    `bun:"name,type:varchar(255),notnull" json:"name"`
	Version int64     `bun:"version,notnull" json:"version"`
	Courses []*Course `bun:"m2m:course_tags,join:Tag=Course" json:"courses,omitempty"`
}

func (t *Tag) GetID() int64       { return t.ID }
func (t *Tag) GetVersion() int64  { return t.Version }
func (t *Tag) SetVersion(v int64) { t.Version = v }

func (t *Tag) Validate() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.Name, validation.Required, validation.Length(1, 255)),
	)
}

func (t *Tag) Constraints() store.Constraints {
	return store.Constraints{
		Cascade: []store.Dependent{{Model: (*CourseTag)(nil), Column: "tag_id", Name: "courses"}},
	}
}

// CourseTag is the join row of the course/tag many-to-many relation.
type CourseTag struct {
	bun.BaseModel `bun:"table:course_tags,alias:course_tag"`

	CourseID int64   `bun:"course_id,pk"`
	Course   *Course `bun:"rel:belongs-to,join:course_id=id"`
	TagID    int64   `bun:"tag_id,pk"`
	Tag      *Tag    `bun:"rel:belongs-to,join:tag_id=id"`
}
