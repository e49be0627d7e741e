package main

import (
	"flag"
	"fmt"
	"io"
)

// flagValues holds the parsed CLI surface from spec §6.
type flagValues struct {
	config   string
	addr     string
	mesh     bool
	nodeID   string
	meshAddr string
	peers    string
}

func newFlagSet(name string, output io.Writer) (*flag.FlagSet, *flagValues) {
	if output == nil {
		output = io.Discard
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)

	v := &flagValues{}
	fs.StringVar(&v.config, "config", "", "path to the YAML rule file (required)")
	fs.StringVar(&v.addr, "addr", "127.0.0.1:8081", "gRPC listen address")
	fs.BoolVar(&v.mesh, "mesh", false, "enable distributed mode")
	fs.StringVar(&v.nodeID, "node-id", "", "cluster-unique identifier (auto-generated if absent)")
	fs.StringVar(&v.meshAddr, "mesh-addr", "0.0.0.0:7946", "bind address for the KV-gossip substrate")
	fs.StringVar(&v.peers, "peers", "", "comma-separated bootstrap peers (host:port)")
	fs.Usage = func() { printUsage(output) }
	return fs, v
}

func printUsage(w io.Writer) {
	if w == nil {
		return
	}
	fmt.Fprintln(w, "Usage")
	fmt.Fprintln(w, "  hivemind --config <path> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Flags")
	fmt.Fprintln(w, "  --config string    path to the YAML rule file (required)")
	fmt.Fprintln(w, "  --addr string      gRPC listen address (default 127.0.0.1:8081)")
	fmt.Fprintln(w, "  --mesh             enable distributed mode")
	fmt.Fprintln(w, "  --node-id string   cluster-unique identifier (auto-generated if absent)")
	fmt.Fprintln(w, "  --mesh-addr string bind address for the KV-gossip substrate (default 0.0.0.0:7946)")
	fmt.Fprintln(w, "  --peers string     comma-separated bootstrap peers (host:port)")
}
