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
	"io/ioutil"
	"path/filepath"

	"github.com/ghodss/yaml"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"mosn.io/bolt/pkg/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Load reads a yaml or json file, fields missing in the file keep their defaults.
func Load(path string) (*Config, error) {
	log.DefaultLogger.Infof("[config] load config from %s", path)
	content, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load config %s", path)
	}
	return Parse(content, yamlFormat(path))
}

// Parse decodes content over the defaults and validates the result.
func Parse(content []byte, isYaml bool) (*Config, error) {
	if isYaml {
		bytes, err := yaml.YAMLToJSON(content)
		if err != nil {
			return nil, errors.Wrap(err, "translate yaml to json")
		}
		content = bytes
	}
	cfg := Default()
	if err := json.Unmarshal(content, cfg); err != nil {
		return nil, errors.Wrap(err, "json unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Dump renders cfg as indented json.
func Dump(cfg *Config) ([]byte, error) {
	return json.MarshalIndent(cfg, "", "  ")
}

func yamlFormat(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".yaml" || ext == ".yml"
}
