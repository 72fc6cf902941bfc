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
	hessian "github.com/apache/dubbo-go-hessian2"
)

// HessianSerializer is the default serializer, objects carry their own type information.
var HessianSerializer Serializer = hessianSerializer{}

type hessianSerializer struct{}

func (hessianSerializer) Serialize(v interface{}) ([]byte, error) {
	encoder := hessian.NewEncoder()
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return encoder.Buffer(), nil
}

func (hessianSerializer) Deserialize(data []byte, className string) (interface{}, error) {
	decoder := hessian.NewDecoder(data)
	return decoder.Decode()
}

// RegisterPOJO makes a go struct decodable as the java class it names.
func RegisterPOJO(o hessian.POJO) {
	hessian.RegisterPOJO(o)
}
