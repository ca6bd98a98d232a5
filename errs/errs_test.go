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

package errs

import (
	"errors"
	"fmt"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NotFound("course", 7))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrConflict))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestErrorMessage(t *testing.T) {
	err := Conflict("commit", "course", errors.New("version 3 is stale"))
	assert.Equal(t, "commit: course: conflict: version 3 is stale", err.Error())

	err2 := InvalidState("remove", "entity is %s", "detached")
	assert.Equal(t, "remove: entity is detached", err2.Error())
}

func TestValidationFlattensFields(t *testing.T) {
	verrs := validation.Errors{
		"name":  errors.New("cannot be blank"),
		"level": nil,
		"cover": validation.Errors{"id": errors.New("must be positive")},
	}

	err := Validation("course", verrs)

	require.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, map[string]string{
		"name":     "cannot be blank",
		"cover.id": "must be positive",
	}, err.Fields)
	assert.Equal(t, "course: validation failed: cover.id must be positive; name cannot be blank", err.Error())
}

func TestWithOp(t *testing.T) {
	assert.Nil(t, WithOp("get", nil))

	err := WithOp("get", NotFound("author", 1))
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "get", e.Op)

	plain := WithOp("get", errors.New("boom"))
	assert.Equal(t, "get: boom", plain.Error())
}
