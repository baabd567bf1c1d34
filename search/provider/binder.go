// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package provider

import "strconv"

// paramBinder numbers the positional parameters of exactly one statement.
// A fresh binder is created for every statement and passed down by pointer;
// it is never stored on the provider.
type paramBinder struct {
	values []interface{}
}

func newParamBinder() *paramBinder {
	return &paramBinder{}
}

// bind records v and returns its placeholder.
func (b *paramBinder) bind(v interface{}) string {
	b.values = append(b.values, v)
	return "$" + strconv.Itoa(len(b.values))
}

func (b *paramBinder) mark() int {
	return len(b.values)
}

// since returns the values bound after mark m.
func (b *paramBinder) since(m int) []interface{} {
	out := make([]interface{}, len(b.values)-m)
	copy(out, b.values[m:])
	return out
}

// sqlFragment is a compiled boolean expression and the values it bound.
type sqlFragment struct {
	text   string
	values []interface{}
}

// compileState is the per-statement state threaded through translation.
type compileState struct {
	binder     *paramBinder
	conditions int
}

func newCompileState() *compileState {
	return &compileState{binder: newParamBinder()}
}

// statement is a ready-to-execute SQL statement.
type statement struct {
	text   string
	params []interface{}
}
