/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package context

import (
	"context"
)

// ContextKey indexes the builtin values carried along a connection.
type ContextKey int

const (
	ContextKeyConnectionID ContextKey = iota
	ContextKeyRemoteAddr
	ContextKeyProtocolVersion
	ContextKeyEnd
)

// valueCtx keeps the builtin keys in an array so lookups skip the context chain.
type valueCtx struct {
	context.Context

	builtin [ContextKeyEnd]interface{}
}

func (c *valueCtx) Value(key interface{}) interface{} {
	if contextKey, ok := key.(ContextKey); ok && contextKey >= 0 && contextKey < ContextKeyEnd {
		return c.builtin[contextKey]
	}
	return c.Context.Value(key)
}

func Get(ctx context.Context, key ContextKey) interface{} {
	if ctx == nil {
		return nil
	}
	if mosnCtx, ok := ctx.(*valueCtx); ok {
		return mosnCtx.builtin[key]
	}
	return ctx.Value(key)
}

// WithValue add the given key-value pair into the existed value context, or create a new value context which contains the pair.
// This Function should not be used along with the official context.WithValue !!
func WithValue(parent context.Context, key ContextKey, value interface{}) context.Context {
	if mosnCtx, ok := parent.(*valueCtx); ok {
		mosnCtx.builtin[key] = value
		return mosnCtx
	}

	// create new valueCtx
	mosnCtx := &valueCtx{Context: parent}
	mosnCtx.builtin[key] = value
	return mosnCtx
}

// Clone copy the origin value context(if it is), and return new one
func Clone(parent context.Context) context.Context {
	if mosnCtx, ok := parent.(*valueCtx); ok {
		clone := &valueCtx{Context: mosnCtx}
		// array copy assign
		clone.builtin = mosnCtx.builtin
		return clone
	}
	return parent
}
