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
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// serializer codes carried in the frame header
const (
	Hessian2 byte = 1
	Protobuf byte = 11
	JSON     byte = 12
)

var (
	ErrUnknownSerializer = errors.New("unknown serializer")
	ErrUnknownClass      = errors.New("unknown class")
)

// Serializer converts payload objects to content bytes and back.
// className is the class block of the command, implementations may ignore it.
type Serializer interface {
	Serialize(v interface{}) ([]byte, error)
	Deserialize(data []byte, className string) (interface{}, error)
}

var (
	mutex       sync.RWMutex
	serializers = map[byte]Serializer{}
	names       = map[string]byte{}
)

func init() {
	Register(Hessian2, "hessian2", HessianSerializer)
	Register(Protobuf, "protobuf", ProtobufSerializer)
	Register(JSON, "json", JSONSerializer)
}

// Register binds a serializer to a code, replacing any previous one.
func Register(code byte, name string, s Serializer) {
	mutex.Lock()
	defer mutex.Unlock()
	serializers[code] = s
	if name != "" {
		names[strings.ToLower(name)] = code
	}
}

// Get returns the serializer bound to code.
func Get(code byte) (Serializer, error) {
	mutex.RLock()
	defer mutex.RUnlock()
	if s, ok := serializers[code]; ok {
		return s, nil
	}
	return nil, errors.Wrapf(ErrUnknownSerializer, "code %d", code)
}

// Lookup resolves a serializer name such as "hessian2" to its code.
func Lookup(name string) (byte, error) {
	mutex.RLock()
	defer mutex.RUnlock()
	if code, ok := names[strings.ToLower(name)]; ok {
		return code, nil
	}
	return 0, errors.Wrapf(ErrUnknownSerializer, "name %s", name)
}
