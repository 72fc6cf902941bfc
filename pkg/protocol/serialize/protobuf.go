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

package serialize

import (
	"fmt"
	"reflect"

	"github.com/golang/protobuf/proto"
	"github.com/pkg/errors"
)

// ProtobufSerializer resolves the class block as a fully qualified message name.
var ProtobufSerializer Serializer = protobufSerializer{}

type protobufSerializer struct{}

func (protobufSerializer) Serialize(v interface{}) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("%T is not a proto message", v)
	}
	return proto.Marshal(msg)
}

func (protobufSerializer) Deserialize(data []byte, className string) (interface{}, error) {
	typ := proto.MessageType(className)
	if typ == nil {
		return nil, errors.Wrapf(ErrUnknownClass, "proto message %q", className)
	}
	if typ.Kind() != reflect.Ptr {
		return nil, errors.Wrapf(ErrUnknownClass, "proto message %q", className)
	}
	msg, ok := reflect.New(typ.Elem()).Interface().(proto.Message)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownClass, "proto message %q", className)
	}
	if err := proto.Unmarshal(data, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// ClassName returns the name to put in the class block for msg.
func ClassName(msg proto.Message) string {
	return proto.MessageName(msg)
}
