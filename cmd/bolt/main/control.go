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

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"mosn.io/bolt/pkg/config"
	"mosn.io/bolt/pkg/log"
	"mosn.io/bolt/pkg/metrics"
	"mosn.io/bolt/pkg/metrics/sink/prometheus"
	"mosn.io/bolt/pkg/network"
	"mosn.io/bolt/pkg/protocol/bolt"
	"mosn.io/bolt/pkg/remoting"
	"mosn.io/bolt/pkg/sync"
)

const echoClass = "java.lang.String"

var (
	flagToBoltLogLevel = map[string]string{
		"trace":    "TRACE",
		"debug":    "DEBUG",
		"info":     "INFO",
		"warning":  "WARN",
		"error":    "ERROR",
		"critical": "FATAL",
	}

	clientFlags = []cli.Flag{
		cli.StringFlag{
			Name:  "addr, a",
			Usage: "bolt server `ADDRESS`",
			Value: config.DefaultAddress,
		}, cli.IntFlag{
			Name:  "version, v",
			Usage: "framing version, 1 or 2",
			Value: int(bolt.ProtocolVersion1),
		}, cli.BoolFlag{
			Name:  "crc",
			Usage: "append a crc32 trailer, only effective with version 2",
		}, cli.DurationFlag{
			Name:  "timeout, t",
			Usage: "wait at most this long for each response",
			Value: config.DefaultInvokeTimeout,
		},
	}

	cmdServe = cli.Command{
		Name:  "serve",
		Usage: "serve bolt requests, java.lang.String requests are echoed",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:   "config, c",
				Usage:  "Load configuration from `FILE`",
				EnvVar: "BOLT_CONFIG",
			}, cli.StringFlag{
				Name:  "addr, a",
				Usage: "listen address, overrides the config",
			}, cli.StringFlag{
				Name:   "log-level, l",
				Usage:  "bolt log level, trace|debug|info|warning|error|critical",
				EnvVar: "LOG_LEVEL",
			},
		},
		Action: func(c *cli.Context) error {
			cfg := config.Default()
			if path := c.String("config"); path != "" {
				var err error
				if cfg, err = config.Load(path); err != nil {
					return err
				}
			}
			if addr := c.String("addr"); addr != "" {
				cfg.Server.Address = addr
			}
			if level, ok := flagToBoltLogLevel[c.String("log-level")]; ok {
				cfg.Log.LogLevel = level
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cfg)
		},
	}

	cmdPing = cli.Command{
		Name:  "ping",
		Usage: "send heartbeats to a bolt server",
		Flags: append([]cli.Flag{
			cli.IntFlag{
				Name:  "count, n",
				Usage: "number of heartbeats",
				Value: 3,
			},
		}, clientFlags...),
		Action: func(c *cli.Context) error {
			conn, err := dial(c)
			if err != nil {
				return err
			}
			defer conn.Close()

			for i := 0; i < c.Int("count"); i++ {
				ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
				start := time.Now()
				ack, err := conn.Heartbeat(ctx)
				cancel()
				if err != nil {
					return err
				}
				fmt.Printf("heartbeat ack from %s: id=%d status=%s time=%s\n",
					conn.RemoteAddr(), ack.RequestId, bolt.StatusText(ack.ResponseStatus), time.Since(start))
			}
			return nil
		},
	}

	cmdInvoke = cli.Command{
		Name:  "invoke",
		Usage: "send one rpc request and print the response",
		Flags: append([]cli.Flag{
			cli.StringFlag{
				Name:  "class",
				Usage: "request class name",
				Value: echoClass,
			}, cli.StringFlag{
				Name:  "data, d",
				Usage: "request payload, sent as a string",
			}, cli.StringFlag{
				Name:  "serializer, s",
				Usage: "hessian2|json",
				Value: config.DefaultSerializer,
			}, cli.StringSliceFlag{
				Name:  "header, H",
				Usage: "request header as key=value, repeatable",
			},
		}, clientFlags...),
		Action: func(c *cli.Context) error {
			headers := make(map[string]string)
			for _, kv := range c.StringSlice("header") {
				i := strings.IndexByte(kv, '=')
				if i <= 0 {
					return fmt.Errorf("invalid header %q, want key=value", kv)
				}
				headers[kv[:i]] = kv[i+1:]
			}

			conn, err := dial(c)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()
			response, err := conn.InvokeObject(ctx, c.String("class"), headers, c.String("data"))
			if err != nil {
				return err
			}
			fmt.Printf("status: %s\n", bolt.StatusText(response.ResponseStatus))
			response.Headers.Range(func(key, value string) bool {
				fmt.Printf("header: %s=%s\n", key, value)
				return true
			})
			if response.Payload != nil {
				fmt.Printf("payload: %v\n", response.Payload)
			}
			return nil
		},
	}
)

func dial(c *cli.Context) (*network.Conn, error) {
	cfg := config.Default()
	cfg.Protocol.Version = byte(c.Int("version"))
	cfg.Protocol.Crc = c.Bool("crc")
	if c.IsSet("serializer") {
		cfg.Protocol.Serializer = c.String("serializer")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
	defer cancel()
	return network.Dial(ctx, c.String("addr"), network.ClientConnConfig(cfg))
}

func serve(cfg *config.Config) error {
	level, _ := log.ParseLogLevel(cfg.Log.LogLevel)
	if err := log.InitDefaultLogger(cfg.Log.LogPath, level); err != nil {
		return err
	}

	executor, err := sync.NewPoolExecutor(sync.DefaultExecutorName, cfg.Executor.MinSize, cfg.Executor.MaxSize,
		cfg.Executor.QueueSize, cfg.Executor.KeepAlive.Duration)
	if err != nil {
		return err
	}
	defer executor.Shutdown()
	metrics.RegisterExecutor(executor)

	users := remoting.NewUserProcessorRegistry()
	if err := users.Register(remoting.UserProcessorFunc(echoClass, echo)); err != nil {
		return err
	}
	handler := remoting.NewRpcCommandHandler(remoting.NewProcessorManager(executor), users, nil)

	listener := network.NewListener(cfg.Server.Address, handler, network.ServerConnConfig(cfg))
	if err := listener.Listen(); err != nil {
		return err
	}

	var metricsServer *http.Server
	if cfg.Metrics.Address != "" {
		sink, err := prometheus.NewPromSink(&prometheus.Config{Endpoint: cfg.Metrics.Endpoint})
		if err != nil {
			return err
		}
		metricsServer = &http.Server{Addr: cfg.Metrics.Address, Handler: sink.Handler()}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.DefaultLogger.Errorf("[bolt] [serve] metrics server failed: %v", err)
			}
		}()
		log.DefaultLogger.Infof("[bolt] [serve] metrics exported on %s%s", cfg.Metrics.Address, cfg.Metrics.Endpoint)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	served := make(chan error, 1)
	go func() {
		served <- listener.Serve(nil)
	}()

	select {
	case sig := <-signals:
		log.DefaultLogger.Infof("[bolt] [serve] got signal %s, shutting down", sig)
		err = nil
	case err = <-served:
	}

	listener.Close()
	if metricsServer != nil {
		metricsServer.Close()
	}
	return err
}

func echo(ctx *remoting.RemotingContext, request *bolt.Request) (interface{}, error) {
	if log.Proxy.Enabled(log.DEBUG) {
		log.Proxy.Debugf(ctx.Context(), "[bolt] [echo] request %d: %v", request.RequestId, request.Payload)
	}
	return request.Payload, nil
}
