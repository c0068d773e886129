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

// simitlower lowers the index expression of a scenario file into explicit
// loops and prints the resulting code. With -run it also executes the
// loops on the data of the scenario and prints the target.
//
// Usage:
//
//	simitlower [options] <scenario.yaml>
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"

	simfmt "github.com/neuroradiology/simit/base/fmt"
	"github.com/neuroradiology/simit/build/ir"
	"github.com/neuroradiology/simit/build/lower"
	"github.com/neuroradiology/simit/interp"
)

func main() {
	var (
		run      = flag.Bool("run", false, "Execute the lowered code on the scenario data")
		outDir   = flag.String("o", "", "Directory to write the lowered code to")
		workers  = flag.Int("workers", 0, "Number of concurrent lowerings (0 for one per CPU)")
		comments = flag.Bool("comments", false, "Annotate emitted writes with their subset loop")
		numbers  = flag.Bool("n", false, "Number the printed lines")
	)
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <scenario.yaml>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}
	if err := lowerScenario(flag.Arg(0), *run, *outDir, *workers, *comments, *numbers); err != nil {
		log.Fatalf("%s: %v", flag.Arg(0), err)
	}
}

func lowerScenario(path string, run bool, outDir string, workers int, comments, numbers bool) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	sc, err := loadScenario(src)
	if err != nil {
		return err
	}
	fn, env, err := buildFunc(sc)
	if err != nil {
		return err
	}
	opts := []lower.Option{lower.WithComments(comments)}
	if workers > 0 {
		opts = append(opts, lower.WithWorkers(workers))
	}
	f, err := lower.Compile(fn, env, opts...)
	if err != nil {
		return err
	}
	code := f.Body.String()
	if numbers {
		fmt.Print(simfmt.Number(code))
	} else {
		fmt.Print(code)
	}
	if outDir != "" {
		if err := writeCode(outDir, fn.Name, code); err != nil {
			return err
		}
	}
	if !run {
		return nil
	}
	return runScenario(f, sc, env)
}

// writeCode writes the lowered code under dir. A file lock serializes
// writers sharing the directory.
func writeCode(dir, name, code string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	lock := flock.New(filepath.Join(dir, ".lock"))
	if err := lock.Lock(); err != nil {
		return errors.Wrapf(err, "cannot lock %s", dir)
	}
	defer lock.Unlock()
	return os.WriteFile(filepath.Join(dir, name+".sim"), []byte(code), 0644)
}

func runScenario(f *interp.Function, sc *scenario, env *ir.Environment) error {
	ctx := interp.NewContext(f)
	if err := bindScenario(ctx, sc, env); err != nil {
		return err
	}
	if err := ctx.Run(); err != nil {
		return err
	}
	out, err := ctx.Float(sc.Target.Name)
	if err != nil {
		return err
	}
	fmt.Printf("%s = %v\n", sc.Target.Name, out)
	return nil
}
