// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-dsml.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"flag"
	"fmt"
	"os"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/google/gops/agent"
	"github.com/joho/godotenv"

	"github.com/ClusterCockpit/cc-dsml/pkg/dsml"
)

func main() {
	var flagSelf string
	var flagGops bool
	flag.StringVar(&flagSelf, "self", "", "After listing every variable, also print the listener/dispatcher role `self` would take on for this manifest")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.Parse()

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			cclog.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		cclog.Fatalf("parsing '.env' file failed: %s", err.Error())
	}

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: dsml-manifest-lint [-self name] <manifest-file>")
		os.Exit(2)
	}

	specs, err := dsml.LoadManifest(flag.Arg(0))
	if err != nil {
		cclog.Fatal(err)
	}

	for _, s := range specs {
		array := ""
		if s.IsArray {
			array = "[]"
		}
		fmt.Printf("%-24s %s%-8s owner=%s\n", s.Name, s.Kind, array, s.Owner)
	}

	if flagSelf != "" {
		fmt.Printf("\nself=%q needsListener=%v needsDispatcher=%v\n",
			flagSelf, dsml.NeedsListener(specs, flagSelf), dsml.NeedsDispatcher(specs, flagSelf))
	}
}
