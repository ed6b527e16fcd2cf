// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Command qirc decompiles a JSON dump of one or more bytecode
// instruction streams into QIR and either prints the resulting tree or
// evaluates it locally against a supplied argument.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/liautaud/qir/decompile"
	"github.com/liautaud/qir/qir"
	"github.com/liautaud/qir/qirconfig"
	"github.com/liautaud/qir/qirfmt"
)

func main() {
	configPath := flag.String("config", "", "path to a qirconfig YAML options file")
	dumpPath := flag.String("dump", "", "path to a JSON instruction dump")
	evalArg := flag.String("eval", "", "if set, a JSON value to apply the decompiled function to and evaluate locally, instead of printing its tree")
	flag.Parse()

	if *dumpPath == "" {
		log.Fatal("qirc: -dump is required")
	}

	opts := qirconfig.Default()
	if *configPath != "" {
		loaded, err := qirconfig.Load(*configPath)
		if err != nil {
			log.Fatalf("qirc: loading config: %v", err)
		}
		opts = loaded
	}

	data, err := os.ReadFile(*dumpPath)
	if err != nil {
		log.Fatalf("qirc: reading dump: %v", err)
	}
	var dumps []funcDump
	if err := json.Unmarshal(data, &dumps); err != nil {
		log.Fatalf("qirc: parsing dump: %v", err)
	}

	// Each function is decompiled with a fresh decompile.Build/Execute
	// call; none of them share mutable state, so they run concurrently,
	// one goroutine per function, fanning results back in over a plain
	// slice guarded by the WaitGroup rather than a channel, since every
	// goroutine owns a disjoint index.
	results := make([]result, len(dumps))
	var wg sync.WaitGroup
	for i, d := range dumps {
		wg.Add(1)
		go func(i int, d funcDump) {
			defer wg.Done()
			results[i] = decompileOne(d, opts)
		}(i, d)
	}
	wg.Wait()

	for i, r := range results {
		if r.err != nil {
			log.Printf("qirc: %s: %v", dumps[i].Name, r.err)
			continue
		}
		fmt.Printf("# %s\n", dumps[i].Name)
		if *evalArg != "" {
			out, err := evaluate(r.expr, *evalArg)
			if err != nil {
				log.Printf("qirc: %s: evaluating: %v", dumps[i].Name, err)
				continue
			}
			fmt.Println(out)
			continue
		}
		fmt.Print(qirfmt.Describe(r.expr))
	}
}

// funcDump is the shape of one entry of the JSON instruction dump: a
// function name, its formal parameter names, and its instructions in
// program order.
type funcDump struct {
	Name         string                  `json:"name"`
	Args         []string                `json:"args"`
	Instructions []decompile.Instruction `json:"instructions"`
}

type result struct {
	expr qir.Expr
	err  error
}

func decompileOne(d funcDump, opts *qirconfig.Options) result {
	for _, ins := range d.Instructions {
		if opts.Disallows(ins.Opname) {
			return result{err: fmt.Errorf("opcode %q is disallowed by configuration", ins.Opname)}
		}
	}
	listing := decompile.NewReader(d.Name, d.Args, d.Instructions)
	var reader decompile.Reader = listing
	if opts.ForceComprehensionMode {
		reader = forcedComprehension{listing}
	}
	expr, err := decompile.DecompileBudgeted(reader, opts.MaxBlocks)
	return result{expr: expr, err: err}
}

// forcedComprehension overrides Name so Decompile always treats the
// wrapped listing's FOR_ITER as opening a comprehension rewrite,
// regardless of the underlying function's declared name.
type forcedComprehension struct {
	*decompile.Listing
}

func (forcedComprehension) Name() string { return "<listcomp>" }

func evaluate(expr qir.Expr, argJSON string) (string, error) {
	var arg any
	if err := json.Unmarshal([]byte(argJSON), &arg); err != nil {
		return "", err
	}
	qarg, err := qir.Encode(arg)
	if err != nil {
		return "", err
	}
	result, err := qir.Evaluate(qir.NewApplication(expr, qarg), qir.Environment{})
	if err != nil {
		return "", err
	}
	decoded, err := qir.Decode(result)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(decoded)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
