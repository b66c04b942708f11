// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-dsml.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// dsml-agent is a two-role demo binary showing a State wired end to end: a
// PRODUCER owns an image-shaped payload and flips a ready flag, a CONSUMER
// registers as its peer, waits for the flag, reads the payload, and
// publishes a derived result back on variables it owns itself.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/google/gops/agent"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ClusterCockpit/cc-dsml/pkg/dsml"
)

func main() {
	var flagRole, flagManifest, flagPeerIP string
	var flagListenPort, flagPeerPort int
	var flagGops, flagMetrics bool
	flag.StringVar(&flagRole, "role", "", "Role to run as, `PRODUCER` or `CONSUMER` (must match an owner name in the manifest)")
	flag.StringVar(&flagManifest, "manifest", "testdata/manifest.tsv", "Path to the variable manifest")
	flag.IntVar(&flagListenPort, "listen-port", 0, "TCP port to listen on if this role owns any variable (0 = let the OS choose)")
	flag.StringVar(&flagPeerIP, "peer-ip", "127.0.0.1", "IP address the other role is listening on")
	flag.IntVar(&flagPeerPort, "peer-port", 1111, "TCP port the other role is listening on (its -listen-port)")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.BoolVar(&flagMetrics, "metrics", false, "Enable the Prometheus counters sideband against the default registry")
	flag.Parse()

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			cclog.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		cclog.Fatalf("parsing '.env' file failed: %s", err.Error())
	}

	switch flagRole {
	case "PRODUCER":
		runProducer(flagManifest, flagListenPort, flagPeerPort, flagPeerIP, flagMetrics)
	case "CONSUMER":
		runConsumer(flagManifest, flagListenPort, flagPeerIP, flagPeerPort, flagMetrics)
	default:
		fmt.Fprintln(os.Stderr, "usage: dsml-agent -role PRODUCER|CONSUMER [flags]")
		os.Exit(2)
	}
}

func newState(manifest, self string, port int, metrics bool) *dsml.State {
	cfg := dsml.Keys
	cfg.MetricsEnabled = metrics
	opts := []dsml.Option{dsml.WithRuntimeConfig(cfg)}
	if metrics {
		opts = append(opts, dsml.WithMetricsRegistry(prometheus.DefaultRegisterer))
	}
	s, err := dsml.New(manifest, self, port, opts...)
	if err != nil {
		cclog.Fatalf("dsml.New(%q, %q) failed: %s", manifest, self, err.Error())
	}
	return s
}

// retryRegisterOwner dials peer repeatedly for a few seconds: the demo's two
// processes are started independently by the operator, so whichever starts
// second must not fail just because the other isn't listening yet.
func retryRegisterOwner(s *dsml.State, peer, ip string, port int) error {
	deadline := time.Now().Add(10 * time.Second)
	var lastErr error
	for time.Now().Before(deadline) {
		if err := s.RegisterOwner(peer, ip, port); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(250 * time.Millisecond)
	}
	return lastErr
}

func runProducer(manifest string, port, peerPort int, peerIP string, metrics bool) {
	s := newState(manifest, "PRODUCER", port, metrics)
	defer s.Close()

	if err := retryRegisterOwner(s, "CONSUMER", peerIP, peerPort); err != nil {
		cclog.Fatalf("register_owner(CONSUMER) failed: %s", err.Error())
	}

	rows, cols := int32(2), int32(2)
	if err := dsml.Set(s, "IMAGE_ROWS", rows); err != nil {
		cclog.Fatal(err)
	}
	if err := dsml.Set(s, "IMAGE_COLS", cols); err != nil {
		cclog.Fatal(err)
	}
	if err := dsml.SetArray(s, "IMAGE_DATA", []uint8{10, 20, 30, 40}); err != nil {
		cclog.Fatal(err)
	}
	if err := dsml.Set[uint8](s, "IMAGE_SENT", 1); err != nil {
		cclog.Fatal(err)
	}
	cclog.Info("[dsml-agent]> PRODUCER published a frame, waiting for CONSUMER's result")

	if ok, err := dsml.WaitFor(s, "RESULT_X", 30*time.Second); err != nil {
		cclog.Fatal(err)
	} else if !ok {
		cclog.Warn("[dsml-agent]> PRODUCER timed out waiting for a result")
		return
	}
	x, _ := dsml.Get[float64](s, "RESULT_X")
	y, _ := dsml.Get[float64](s, "RESULT_Y")
	label, _ := dsml.GetString(s, "LABEL")
	cclog.Infof("[dsml-agent]> PRODUCER observed result x=%v y=%v label=%q", x, y, label)
}

func runConsumer(manifest string, port int, peerIP string, peerPort int, metrics bool) {
	s := newState(manifest, "CONSUMER", port, metrics)
	defer s.Close()

	if err := dsml.SetString(s, "LABEL", "unprocessed"); err != nil {
		cclog.Fatal(err)
	}

	if err := retryRegisterOwner(s, "PRODUCER", peerIP, peerPort); err != nil {
		cclog.Fatalf("register_owner(PRODUCER) failed: %s", err.Error())
	}

	if err := dsml.Wait(s, "IMAGE_SENT"); err != nil {
		cclog.Fatal(err)
	}

	data, err := dsml.GetArray[uint8](s, "IMAGE_DATA")
	if err != nil {
		cclog.Fatal(err)
	}
	rows, _ := dsml.Get[int32](s, "IMAGE_ROWS")
	cols, _ := dsml.Get[int32](s, "IMAGE_COLS")
	cclog.Infof("[dsml-agent]> CONSUMER received a %dx%d frame (%d bytes)", rows, cols, len(data))

	var sum float64
	for _, b := range data {
		sum += float64(b)
	}
	avg := sum / float64(len(data))

	if err := dsml.Set(s, "RESULT_X", avg); err != nil {
		cclog.Fatal(err)
	}
	if err := dsml.Set(s, "RESULT_Y", avg/2); err != nil {
		cclog.Fatal(err)
	}
	if err := dsml.SetString(s, "LABEL", "processed"); err != nil {
		cclog.Fatal(err)
	}
	cclog.Info("[dsml-agent]> CONSUMER published its result")
}
