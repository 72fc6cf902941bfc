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
	"encoding/binary"
	"fmt"
	"unsafe"
)

// BytesKV is one application header entry.
type BytesKV struct {
	Key   []byte
	Value []byte
}

// Header is the typed form of the header block, an ordered list of string pairs.
type Header struct {
	Kvs []BytesKV
}

func (h *Header) Get(key string) (value string, ok bool) {
	for i, n := 0, len(h.Kvs); i < n; i++ {
		kv := &h.Kvs[i]
		if key == string(kv.Key) {
			return string(kv.Value), true
		}
	}
	return "", false
}

func (h *Header) Set(key string, value string) {
	for i, n := 0, len(h.Kvs); i < n; i++ {
		kv := &h.Kvs[i]
		if key == string(kv.Key) {
			kv.Value = append(kv.Value[:0], value...)
			return
		}
	}

	var kv *BytesKV
	h.Kvs, kv = allocKV(h.Kvs)
	kv.Key = append(kv.Key[:0], key...)
	kv.Value = append(kv.Value[:0], value...)
}

func (h *Header) Del(key string) {
	for i, n := 0, len(h.Kvs); i < n; i++ {
		kv := &h.Kvs[i]
		if key == string(kv.Key) {
			tmp := *kv
			copy(h.Kvs[i:], h.Kvs[i+1:])
			n--
			h.Kvs[n] = tmp
			h.Kvs = h.Kvs[:n]
			return
		}
	}
}

// Range calls f for each entry in order, false means stop iteration.
func (h *Header) Range(f func(key, value string) bool) {
	for i, n := 0, len(h.Kvs); i < n; i++ {
		kv := &h.Kvs[i]
		if !f(b2s(kv.Key), b2s(kv.Value)) {
			return
		}
	}
}

func (h *Header) Len() int {
	return len(h.Kvs)
}

func (h *Header) Reset() {
	h.Kvs = h.Kvs[:0]
}

func (h *Header) Clone() *Header {
	n := len(h.Kvs)

	clone := &Header{
		Kvs: make([]BytesKV, n),
	}

	for i := 0; i < n; i++ {
		src := &h.Kvs[i]
		dst := &clone.Kvs[i]

		dst.Key = append(dst.Key[:0], src.Key...)
		dst.Value = append(dst.Value[:0], src.Value...)
	}

	return clone
}

func (h *Header) ByteSize() (size uint64) {
	for _, kv := range h.Kvs {
		size += uint64(len(kv.Key) + len(kv.Value))
	}
	return
}

func allocKV(h []BytesKV) ([]BytesKV, *BytesKV) {
	n := len(h)
	if cap(h) > n {
		h = h[:n+1]
	} else {
		h = append(h, BytesKV{})
	}
	return h, &h[n]
}

// b2s converts byte slice to a string without memory allocation.
//
// Note it may break if string and/or slice header will change
// in the future go versions.
func b2s(b []byte) string {
	return *(*string)(unsafe.Pointer(&b))
}

// header block layout: repeated (int32 len | key | int32 len | value)

func getHeaderEncodeLength(kvs []BytesKV) (size int) {
	for i, n := 0, len(kvs); i < n; i++ {
		size += 8 + len(kvs[i].Key) + len(kvs[i].Value)
	}
	return
}

func encodeHeader(h *Header) []byte {
	if len(h.Kvs) == 0 {
		return nil
	}
	buf := make([]byte, getHeaderEncodeLength(h.Kvs))
	index := 0
	for _, kv := range h.Kvs {
		index = encodeStr(buf, index, kv.Key)
		index = encodeStr(buf, index, kv.Value)
	}
	return buf
}

func encodeStr(buf []byte, index int, str []byte) (newIndex int) {
	length := len(str)

	// 1. encode str length
	binary.BigEndian.PutUint32(buf[index:], uint32(length))

	// 2. encode str value
	copy(buf[index+4:], str)

	return index + 4 + length
}

func decodeHeader(bytes []byte, h *Header) (err error) {
	totalLen := len(bytes)
	index := 0

	for index < totalLen {
		kv := BytesKV{}

		// 1. read key
		kv.Key, index, err = decodeStr(bytes, totalLen, index)
		if err != nil {
			return
		}

		// 2. read value
		kv.Value, index, err = decodeStr(bytes, totalLen, index)
		if err != nil {
			return
		}

		// 3. kv append
		h.Kvs = append(h.Kvs, kv)
	}
	return nil
}

func decodeStr(bytes []byte, totalLen, index int) (str []byte, newIndex int, err error) {
	if index+4 > totalLen {
		return nil, index, fmt.Errorf("decode bolt header failed, index %d, totalLen %d", index, totalLen)
	}

	// 1. read str length
	length := binary.BigEndian.Uint32(bytes[index:])
	end := index + 4 + int(length)

	if end > totalLen || end < index {
		return nil, end, fmt.Errorf("decode bolt header failed, index %d, length %d, totalLen %d", index, length, totalLen)
	}

	// 2. read str value
	return bytes[index+4 : end : end], end, nil
}
