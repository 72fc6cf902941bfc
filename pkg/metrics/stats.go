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

package metrics

import (
	gometrics "github.com/rcrowley/go-metrics"
)

// metrics types
const (
	CodecType    = "codec"
	DispatchType = "dispatch"
	ExecutorType = "executor"
)

// metrics keys
const (
	FramesDecoded = "frames_decoded"
	FramesEncoded = "frames_encoded"
	DecodeErrors  = "decode_errors"
	EncodeErrors  = "encode_errors"
	CrcFailures   = "crc_failures"

	Dispatched       = "dispatched"
	NoProcessor      = "no_processor"
	Rejected         = "rejected"
	FailureResponses = "failure_responses"

	Workers  = "workers"
	Active   = "active"
	QueueLen = "queue_len"
)

// CodecStats counts frames going through the codec.
type CodecStats struct {
	FramesDecoded gometrics.Counter
	FramesEncoded gometrics.Counter
	DecodeErrors  gometrics.Counter
	EncodeErrors  gometrics.Counter
	CrcFailures   gometrics.Counter
}

// DispatchStats counts routing outcomes.
type DispatchStats struct {
	Dispatched       gometrics.Counter
	NoProcessor      gometrics.Counter
	Rejected         gometrics.Counter
	FailureResponses gometrics.Counter
}

func NewCodecStats(protocol string) *CodecStats {
	s := GetGroup(CodecType, Label{"protocol", protocol})
	return &CodecStats{
		FramesDecoded: s.Counter(FramesDecoded),
		FramesEncoded: s.Counter(FramesEncoded),
		DecodeErrors:  s.Counter(DecodeErrors),
		EncodeErrors:  s.Counter(EncodeErrors),
		CrcFailures:   s.Counter(CrcFailures),
	}
}

func NewDispatchStats(protocol string) *DispatchStats {
	s := GetGroup(DispatchType, Label{"protocol", protocol})
	return &DispatchStats{
		Dispatched:       s.Counter(Dispatched),
		NoProcessor:      s.Counter(NoProcessor),
		Rejected:         s.Counter(Rejected),
		FailureResponses: s.Counter(FailureResponses),
	}
}

// PoolStatus is implemented by executors that expose their occupancy.
type PoolStatus interface {
	Name() string
	Workers() int
	Active() int
	QueueLen() int
}

// RegisterExecutor exports the occupancy of an executor as gauges.
func RegisterExecutor(pool PoolStatus) {
	s := GetGroup(ExecutorType, Label{"name", pool.Name()})
	s.FunctionalGauge(Workers, func() int64 { return int64(pool.Workers()) })
	s.FunctionalGauge(Active, func() int64 { return int64(pool.Active()) })
	s.FunctionalGauge(QueueLen, func() int64 { return int64(pool.QueueLen()) })
}
