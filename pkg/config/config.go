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

package config

import (
	"fmt"
	"time"

	"github.com/c2h5oh/datasize"
	"mosn.io/api"

	"mosn.io/bolt/pkg/log"
	"mosn.io/bolt/pkg/protocol/bolt"
	"mosn.io/bolt/pkg/protocol/serialize"
	"mosn.io/bolt/pkg/sync"
)

const (
	DefaultAddress        = "127.0.0.1:12200"
	DefaultReadBufferSize = 16 * datasize.KB
	DefaultInvokeTimeout  = 3 * time.Second
	DefaultLogPath        = "stderr"
	DefaultLogLevel       = "INFO"
	DefaultSerializer     = "hessian2"
)

// Config is the configuration of a bolt endpoint.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Protocol ProtocolConfig `json:"protocol"`
	Executor ExecutorConfig `json:"executor"`
	Log      LogConfig      `json:"log"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type ServerConfig struct {
	Address        string            `json:"address"`
	ReadBufferSize datasize.ByteSize `json:"read_buffer_size"`
	// zero disables the idle check
	IdleTimeout   api.DurationConfig `json:"idle_timeout,omitempty"`
	InvokeTimeout api.DurationConfig `json:"invoke_timeout"`
}

// ProtocolConfig controls how frames are written, the decoder accepts both versions anyway.
type ProtocolConfig struct {
	Version    byte   `json:"version"`
	Crc        bool   `json:"crc"`
	Serializer string `json:"serializer"`
}

type ExecutorConfig struct {
	MinSize   int                `json:"min_size"`
	MaxSize   int                `json:"max_size"`
	QueueSize int                `json:"queue_size"`
	KeepAlive api.DurationConfig `json:"keep_alive"`
}

type LogConfig struct {
	LogPath  string `json:"log_path"`
	LogLevel string `json:"log_level"`
}

// MetricsConfig enables the prometheus endpoint when Address is set.
type MetricsConfig struct {
	Address  string `json:"address,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:        DefaultAddress,
			ReadBufferSize: DefaultReadBufferSize,
			InvokeTimeout:  api.DurationConfig{Duration: DefaultInvokeTimeout},
		},
		Protocol: ProtocolConfig{
			Version:    bolt.ProtocolVersion1,
			Crc:        true,
			Serializer: DefaultSerializer,
		},
		Executor: ExecutorConfig{
			MinSize:   sync.DefaultMinPoolSize,
			MaxSize:   sync.DefaultMaxPoolSize,
			QueueSize: sync.DefaultQueueSize,
			KeepAlive: api.DurationConfig{Duration: sync.DefaultKeepAlive},
		},
		Log: LogConfig{
			LogPath:  DefaultLogPath,
			LogLevel: DefaultLogLevel,
		},
		Metrics: MetricsConfig{
			Endpoint: "/metrics",
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	e := c.Executor
	if e.MinSize < 0 || e.MaxSize <= 0 || e.QueueSize < 0 {
		return fmt.Errorf("invalid executor size, min %d, max %d, queue %d", e.MinSize, e.MaxSize, e.QueueSize)
	}
	if e.MinSize > e.MaxSize {
		return fmt.Errorf("executor min size %d greater than max size %d", e.MinSize, e.MaxSize)
	}
	if e.KeepAlive.Duration < 0 {
		return fmt.Errorf("invalid executor keep alive %s", e.KeepAlive)
	}
	if v := c.Protocol.Version; v != bolt.ProtocolVersion1 && v != bolt.ProtocolVersion2 {
		return fmt.Errorf("invalid protocol version %d", v)
	}
	if _, err := serialize.Lookup(c.Protocol.Serializer); err != nil {
		return err
	}
	if c.Server.ReadBufferSize == 0 {
		return fmt.Errorf("invalid read buffer size %s", c.Server.ReadBufferSize.HR())
	}
	if c.Server.Address == "" {
		return fmt.Errorf("empty server address")
	}
	if _, err := log.ParseLogLevel(c.Log.LogLevel); err != nil {
		return err
	}
	return nil
}

// SwitchCode returns the protocol switch written on outgoing commands.
func (c *Config) SwitchCode() bolt.ProtocolSwitch {
	if c.Protocol.Crc {
		return bolt.NewProtocolSwitch(bolt.CrcSwitchIndex)
	}
	return bolt.NewProtocolSwitch()
}

// SerializerCode returns the code of the configured serializer.
func (c *Config) SerializerCode() byte {
	code, err := serialize.Lookup(c.Protocol.Serializer)
	if err != nil {
		return serialize.Hessian2
	}
	return code
}
