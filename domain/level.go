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

import "github.com/tomoncle/pluto/types"

// CourseLevel is the difficulty of a course, stored as 1..3.
type CourseLevel int

const (
	Beginner CourseLevel = iota + 1
	Intermediate
	Advanced
)

var _ types.BaseEnum = Beginner

var courseLevels = []CourseLevel{Beginner, Intermediate, Advanced}

// CourseLevels returns every valid level in ascending order.
func CourseLevels() []CourseLevel {
	out := make([]CourseLevel, len(courseLevels))
	copy(out, courseLevels)
	return out
}

// ParseCourseLevel accepts a level name such as "intermediate".
func ParseCourseLevel(name string) (CourseLevel, bool) {
	return types.EnumByName(courseLevels, name)
}

// CourseLevelOf converts a stored number to a level.
func CourseLevelOf(n int) (CourseLevel, bool) {
	return types.EnumByNumber(courseLevels, n)
}

func (l CourseLevel) IsValid() bool {
	return l >= Beginner && l <= Advanced
}

func (l CourseLevel) Number() int {
	if !l.IsValid() {
		return types.IllegalValue
	}
	return int(l)
}

func (l CourseLevel) Name() string {
	switch l {
	case Beginner:
		return "beginner"
	case Intermediate:
		return "intermediate"
	case Advanced:
		return "advanced"
	default:
		return types.IllegalName
	}
}

func (l CourseLevel) String() string {
	return l.Name()
}

func (l CourseLevel) Desc() string {
	switch l {
	case Beginner:
		return "no prior knowledge required"
	case Intermediate:
		return "assumes working knowledge of the basics"
	case Advanced:
		return "for experienced practitioners"
	default:
		return types.IllegalName
	}
}
