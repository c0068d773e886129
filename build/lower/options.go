// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lower

import (
	"runtime"

	"github.com/pkg/errors"
)

type config struct {
	workers       int
	comments      bool
	workspaceRoot string
}

func defaultConfig() *config {
	return &config{
		workers:       runtime.NumCPU(),
		workspaceRoot: "w",
	}
}

// Option configures lowering.
type Option func(*config) error

func newConfig(opts ...Option) (*config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// WithWorkers sets how many functions [CompileAll] lowers concurrently.
func WithWorkers(n int) Option {
	return func(cfg *config) error {
		if n < 1 {
			return errors.Errorf("invalid number of workers: %d", n)
		}
		cfg.workers = n
		return nil
	}
}

// WithComments annotates every emitted write with the subset loop it
// realizes, for readers of the printed code.
func WithComments(enable bool) Option {
	return func(cfg *config) error {
		cfg.comments = enable
		return nil
	}
}

// WithWorkspaceRoot sets the base name of the workspace rows staging
// indexed outputs.
func WithWorkspaceRoot(name string) Option {
	return func(cfg *config) error {
		if name == "" {
			return errors.New("workspace root name is empty")
		}
		cfg.workspaceRoot = name
		return nil
	}
}
