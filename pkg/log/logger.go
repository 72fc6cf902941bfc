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

package log

import (
	"fmt"
	"strings"

	"mosn.io/pkg/log"
)

// log levels
const (
	ERROR = log.ERROR
	WARN  = log.WARN
	INFO  = log.INFO
	DEBUG = log.DEBUG
	TRACE = log.TRACE
)

// Alert keys
const (
	ErrorKeyCodec    = "codec"
	ErrorKeyDispatch = "dispatch"
	ErrorKeyExecutor = "executor"
)

var (
	// DefaultLogger is used by components that have no connection at hand.
	DefaultLogger log.ErrorLogger = log.DefaultLogger
	// Proxy logs with the connection carried in the context.
	Proxy *ConnLogger
)

func init() {
	lg, err := NewConnLogger("", log.INFO)
	if err != nil {
		panic("init bolt logger error: " + err.Error())
	}
	Proxy = lg
}

var levelMap = map[string]log.Level{
	"FATAL": log.FATAL,
	"ERROR": log.ERROR,
	"WARN":  log.WARN,
	"INFO":  log.INFO,
	"DEBUG": log.DEBUG,
	"TRACE": log.TRACE,
}

// ParseLogLevel converts a level name, case insensitive, into a log.Level.
func ParseLogLevel(level string) (log.Level, error) {
	if lv, ok := levelMap[strings.ToUpper(level)]; ok {
		return lv, nil
	}
	return log.INFO, fmt.Errorf("unknown log level: %s", level)
}

// InitDefaultLogger replaces DefaultLogger and Proxy with loggers writing to output.
// Both share one file, DefaultLogger lines carry no connection prefix.
func InitDefaultLogger(output string, level log.Level) error {
	lg, err := NewConnLogger(output, level)
	if err != nil {
		return err
	}
	DefaultLogger = lg.out
	Proxy = lg
	return nil
}
