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

package database

import (
	"fmt"
	"slices"
	"strings"

	"github.com/uptrace/bun"
)

var referentialActions = []string{"CASCADE", "RESTRICT", "SET NULL", "NO ACTION"}

// ForeignKeyConstraint is a column of Table referencing
// ReferenceTable.ReferenceColumn.
type ForeignKeyConstraint struct {
	Table           string
	Column          string
	ReferenceTable  string
	ReferenceColumn string
	OnDelete        string
	OnUpdate        string
	ConstraintName  string
}

// Name returns ConstraintName, or fk_<table>_<column>.
func (fk ForeignKeyConstraint) Name() string {
	if fk.ConstraintName != "" {
		return fk.ConstraintName
	}
	return "fk_" + fk.Table + "_" + fk.Column
}

// Clause returns the body and arguments of CreateTableQuery.ForeignKey.
func (fk ForeignKeyConstraint) Clause() (string, []any) {
	var b strings.Builder
	b.WriteString("(?) REFERENCES ? (?)")
	if fk.OnDelete != "" {
		b.WriteString(" ON DELETE " + strings.ToUpper(fk.OnDelete))
	}
	if fk.OnUpdate != "" {
		b.WriteString(" ON UPDATE " + strings.ToUpper(fk.OnUpdate))
	}
	return b.String(), []any{bun.Ident(fk.Column), bun.Ident(fk.ReferenceTable), bun.Ident(fk.ReferenceColumn)}
}

// problems lists every missing part and unknown action of fk.
func (fk ForeignKeyConstraint) problems() []error {
	var out []error
	missing := func(what, value string) {
		if value == "" {
			out = append(out, fmt.Errorf("%s: %s is empty", fk.Name(), what))
		}
	}
	missing("table", fk.Table)
	missing("column", fk.Column)
	missing("reference table", fk.ReferenceTable)
	missing("reference column", fk.ReferenceColumn)
	for _, action := range []string{fk.OnDelete, fk.OnUpdate} {
		if action == "" {
			continue
		}
		if !slices.ContainsFunc(referentialActions, func(a string) bool { return strings.EqualFold(a, action) }) {
			out = append(out, fmt.Errorf("%s: unknown referential action %q", fk.Name(), action))
		}
	}
	return out
}

// ForeignKeyManager holds the constraints declared by the models of a registry.
type ForeignKeyManager struct {
	constraints []ForeignKeyConstraint
	logger      Logger
}

func NewForeignKeyManager(logger Logger, registry ModelRegistry) *ForeignKeyManager {
	if logger == nil {
		logger = GetLogger()
	}
	fkm := &ForeignKeyManager{logger: logger}
	for _, model := range registry.Models() {
		fkm.constraints = append(fkm.constraints, model.ForeignKeys()...)
	}
	return fkm
}

// Apply declares the constraints of table on a CREATE TABLE query.
func (fkm *ForeignKeyManager) Apply(q *bun.CreateTableQuery, table string) *bun.CreateTableQuery {
	for _, fk := range fkm.ForTable(table) {
		query, args := fk.Clause()
		q = q.ForeignKey(query, args...)
		fkm.logger.Debug("foreign key declared", "constraint", fk.Name())
	}
	return q
}

// ForTable returns the constraints owned by table, matched case-insensitively.
func (fkm *ForeignKeyManager) ForTable(table string) []ForeignKeyConstraint {
	var out []ForeignKeyConstraint
	for _, fk := range fkm.constraints {
		if strings.EqualFold(fk.Table, table) {
			out = append(out, fk)
		}
	}
	return out
}

func (fkm *ForeignKeyManager) All() []ForeignKeyConstraint {
	return fkm.constraints
}

// Validate returns one error per problem found across all constraints.
func (fkm *ForeignKeyManager) Validate() []error {
	var out []error
	for _, fk := range fkm.constraints {
		out = append(out, fk.problems()...)
	}
	return out
}
