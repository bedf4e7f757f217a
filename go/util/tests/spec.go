/*
	Copyright 2021 SANGFOR TECHNOLOGIES

	Licensed under the Apache License, Version 2.0 (the "License");
	you may not use this file except in compliance with the License.
	You may obtain a copy of the License at

		http://www.apache.org/licenses/LICENSE-2.0

	Unless required by applicable law or agreed to in writing, software
	distributed under the License is distributed on an "AS IS" BASIS,
	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
	See the License for the specific language governing permissions and
	limitations under the License.
*/
package tests

import (
	"reflect"
	"strings"
	"testing"
)

// Spec is an access point to test expectations
type Spec struct {
	t *testing.T
}

// S generates a spec. Use it once per test, or once per check
func S(t *testing.T) *Spec {
	return &Spec{t: t}
}

// ExpectNil expects given value to be nil, or errors
func (spec *Spec) ExpectNil(actual interface{}) {
	spec.t.Helper()
	if isNil(actual) {
		return
	}
	spec.t.Errorf("Expected %+v to be nil", actual)
}

// ExpectNotNil expects given value to be not nil, or errors
func (spec *Spec) ExpectNotNil(actual interface{}) {
	spec.t.Helper()
	if !isNil(actual) {
		return
	}
	spec.t.Errorf("Expected %+v to be not nil", actual)
}

// ExpectEquals expects given values to be equal (comparison via `==`), or errors
func (spec *Spec) ExpectEquals(actual, value interface{}) {
	spec.t.Helper()
	if actual == value {
		return
	}
	spec.t.Errorf("Expected:\n[[[%+v]]]\n- got:\n[[[%+v]]]", value, actual)
}

// ExpectNotEquals expects given values to be nonequal (comparison via `==`), or errors
func (spec *Spec) ExpectNotEquals(actual, value interface{}) {
	spec.t.Helper()
	if !(actual == value) {
		return
	}
	spec.t.Errorf("Expected not %+v", value)
}

// ExpectDeepEquals expects given values to be deeply equal, used for slices and maps
func (spec *Spec) ExpectDeepEquals(actual, value interface{}) {
	spec.t.Helper()
	if reflect.DeepEqual(actual, value) {
		return
	}
	spec.t.Errorf("Expected:\n[[[%#v]]]\n- got:\n[[[%#v]]]", value, actual)
}

// ExpectContains expects given string to contain the substring
func (spec *Spec) ExpectContains(actual string, sub string) {
	spec.t.Helper()
	if strings.Contains(actual, sub) {
		return
	}
	spec.t.Errorf("Expected %q to contain %q", actual, sub)
}

// ExpectNotContains expects given string not to contain the substring
func (spec *Spec) ExpectNotContains(actual string, sub string) {
	spec.t.Helper()
	if !strings.Contains(actual, sub) {
		return
	}
	spec.t.Errorf("Expected %q not to contain %q", actual, sub)
}

// ExpectFalse expects given values to be false, or errors
func (spec *Spec) ExpectFalse(actual interface{}) {
	spec.t.Helper()
	spec.ExpectEquals(actual, false)
}

// ExpectTrue expects given values to be true, or errors
func (spec *Spec) ExpectTrue(actual interface{}) {
	spec.t.Helper()
	spec.ExpectEquals(actual, true)
}

// isNil also treats typed nil pointers, maps and slices held by an interface as nil
func isNil(actual interface{}) bool {
	if actual == nil {
		return true
	}
	v := reflect.ValueOf(actual)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	}
	return false
}
