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

package bolt

import (
	"github.com/pkg/errors"

	"mosn.io/bolt/pkg/protocol/serialize"
)

// DeserializeLevel selects how much of a command is turned into typed values.
type DeserializeLevel int

const (
	LevelClass  DeserializeLevel = iota // class only
	LevelHeader                         // class and header
	LevelAll                            // class, header and content
)

// SerializeClass writes ClassName into the class block, an empty name leaves the block untouched.
func (c *rpcCommand) SerializeClass() error {
	if c.ClassName != "" {
		if err := c.SetClassBytes([]byte(c.ClassName)); err != nil {
			return &SerializationError{Stage: "class", Err: err}
		}
	}
	return nil
}

func (c *rpcCommand) SerializeHeader() error {
	if c.Headers.Len() > 0 {
		if err := c.SetHeaderBytes(encodeHeader(&c.Headers)); err != nil {
			return &SerializationError{Stage: "header", Err: err}
		}
	}
	return nil
}

// SerializeContent encodes Payload with the serializer named by the command codec.
func (c *rpcCommand) SerializeContent() error {
	if c.Payload == nil {
		return nil
	}
	s, err := serialize.Get(c.Codec)
	if err != nil {
		return &SerializationError{Stage: "content", Err: err}
	}
	content, err := s.Serialize(c.Payload)
	if err != nil {
		return &SerializationError{Stage: "content", Err: err}
	}
	if err := c.SetContentBytes(content); err != nil {
		return &SerializationError{Stage: "content", Err: err}
	}
	return nil
}

func (c *rpcCommand) Serialize() error {
	if err := c.SerializeClass(); err != nil {
		return err
	}
	if err := c.SerializeHeader(); err != nil {
		return err
	}
	return c.SerializeContent()
}

func (c *rpcCommand) DeserializeClass() error {
	if len(c.class) > 0 {
		c.ClassName = string(c.class)
	}
	return nil
}

func (c *rpcCommand) DeserializeHeader() error {
	if len(c.header) == 0 {
		return nil
	}
	c.Headers.Reset()
	if err := decodeHeader(c.header, &c.Headers); err != nil {
		c.Headers.Reset()
		return &DeserializationError{Stage: "header", Err: err}
	}
	return nil
}

// DeserializeContent decodes the content block, the class name guides the serializer.
func (c *rpcCommand) DeserializeContent() error {
	if len(c.content) == 0 {
		return nil
	}
	s, err := serialize.Get(c.Codec)
	if err != nil {
		return &DeserializationError{Stage: "content", Err: err}
	}
	payload, err := s.Deserialize(c.content, c.ClassName)
	if err != nil {
		return &DeserializationError{Stage: "content", Err: err}
	}
	c.Payload = payload
	return nil
}

// Deserialize runs the stages up to level, earlier stages always run first.
func (c *rpcCommand) Deserialize(level DeserializeLevel) error {
	if level < LevelClass || level > LevelAll {
		return errors.Wrapf(ErrInvalidDeserializeLevel, "level %d", level)
	}
	if err := c.DeserializeClass(); err != nil {
		return err
	}
	if level == LevelClass {
		return nil
	}
	if err := c.DeserializeHeader(); err != nil {
		return err
	}
	if level == LevelHeader {
		return nil
	}
	return c.DeserializeContent()
}
