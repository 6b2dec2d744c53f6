// Command tlc compiles TL schema files into their binary serialized form.
//
// Usage:
//
//	tlc [-o out.tlo] [-e] [-dump] schema.tl [more.tl ...]
//
// Multiple input files are concatenated and compiled as one schema. By
// default the binary output goes to stdout; -o redirects it to a file. -e
// prints every accepted combinator in canonical form to stderr, and -dump
// writes a YAML summary of the compiled schema to stdout instead of the
// binary.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/metaphox/tl"
	"github.com/metaphox/tl/compiler"
)

var (
	output      = flag.String("o", "", "write binary output to `file` instead of stdout")
	expressions = flag.Bool("e", false, "print canonical combinator expressions to stderr")
	dump        = flag.Bool("dump", false, "write a YAML summary to stdout instead of the binary")
)

type dumpConstructor struct {
	Name  string `yaml:"name"`
	Magic string `yaml:"magic"`
	Expr  string `yaml:"expr"`
}

type dumpType struct {
	Name         string            `yaml:"name"`
	Magic        string            `yaml:"magic"`
	Arity        int               `yaml:"arity"`
	Constructors []dumpConstructor `yaml:"constructors,omitempty"`
}

type dumpSchema struct {
	Types     []dumpType        `yaml:"types"`
	Functions []dumpConstructor `yaml:"functions,omitempty"`
}

func summarize(c *compiler.Constructor) dumpConstructor {
	return dumpConstructor{
		Name:  c.ID,
		Magic: fmt.Sprintf("%08x", c.Magic),
		Expr:  c.Render(),
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "tlc:", err)
	os.Exit(1)
}

func main() {
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: tlc [-o out.tlo] [-e] [-dump] schema.tl ...")
		os.Exit(2)
	}

	var srcs []string
	for _, path := range flag.Args() {
		src, err := tl.Load(path)
		if err != nil {
			fatal(err)
		}
		srcs = append(srcs, src)
	}

	prog, err := tl.Parse(strings.Join(srcs, "\n"))
	if err != nil {
		fatal(err)
	}
	var opts []compiler.Option
	if *expressions {
		opts = append(opts, compiler.WithTrace(os.Stderr))
	}
	schema, err := tl.Compile(prog, opts...)
	if err != nil {
		fatal(err)
	}
	for _, w := range schema.Warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}

	if *dump {
		d := dumpSchema{}
		for _, t := range schema.Types {
			dt := dumpType{
				Name:  t.ID,
				Magic: fmt.Sprintf("%08x", t.Magic),
				Arity: t.ParamsNum,
			}
			for _, c := range t.Constructors {
				dt.Constructors = append(dt.Constructors, summarize(c))
			}
			d.Types = append(d.Types, dt)
		}
		for _, f := range schema.Functions {
			d.Functions = append(d.Functions, summarize(f))
		}
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(d); err != nil {
			fatal(err)
		}
		enc.Close()
	}

	buf := tl.Encode(schema)
	if *output != "" {
		if err := os.WriteFile(*output, buf, 0o644); err != nil {
			fatal(err)
		}
	} else if !*dump {
		if _, err := os.Stdout.Write(buf); err != nil {
			fatal(err)
		}
	}
}
