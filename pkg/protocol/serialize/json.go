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
	"reflect"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONSerializer decodes into registered classes, or into generic values when the class is unknown.
var JSONSerializer = &jsonSerializer{
	classes: make(map[string]reflect.Type),
}

type jsonSerializer struct {
	mutex   sync.RWMutex
	classes map[string]reflect.Type
}

// RegisterClass binds className to the type of sample.
func (s *jsonSerializer) RegisterClass(className string, sample interface{}) {
	typ := reflect.TypeOf(sample)
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	s.mutex.Lock()
	s.classes[className] = typ
	s.mutex.Unlock()
}

func (s *jsonSerializer) Serialize(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (s *jsonSerializer) Deserialize(data []byte, className string) (interface{}, error) {
	s.mutex.RLock()
	typ, ok := s.classes[className]
	s.mutex.RUnlock()

	if !ok {
		var v interface{}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	}

	ptr := reflect.New(typ)
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Interface(), nil
}
