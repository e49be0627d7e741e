// Command hivemind runs a Hivemind rate-limit sidecar node: it loads a YAML
// rule file, serves the Envoy v3 rate-limit gRPC contract, and optionally
// joins a gossip mesh to share counter state with peers. Grounded in the
// teacher's cmd/ratelimit/main.go (signal-driven start/shutdown) and
// flags.go (flag.NewFlagSet + custom Usage).
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"hivemind/internal/app"
	"hivemind/internal/gossip"
	"hivemind/internal/observability"
	grpctransport "hivemind/transport/grpc"
)

// Exit codes per spec §6.
const (
	exitNormal        = 0
	exitConfigError   = 1
	exitBindError     = 2
	exitInternalFatal = 3
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	if stderr == nil {
		stderr = io.Discard
	}
	fs, flags := newFlagSet("hivemind", stderr)
	if err := fs.Parse(args); err != nil {
		return exitConfigError
	}
	if flags.config == "" {
		fmt.Fprintln(stderr, "hivemind: --config is required")
		fs.Usage()
		return exitConfigError
	}
	nodeID := flags.nodeID
	if nodeID == "" {
		nodeID = uuid.NewString()
	}

	logger, err := observability.NewProductionLogger()
	if err != nil {
		fmt.Fprintf(stderr, "hivemind: failed to build logger: %v\n", err)
		return exitInternalFatal
	}
	metrics := observability.NewPrometheusMetrics(prometheus.NewRegistry())

	var substrate gossip.Substrate
	if flags.mesh {
		net := gossip.NewNetwork()
		substrate = net.Join(nodeID)
		logger.Info("mesh enabled", map[string]any{
			"mesh_addr": flags.meshAddr,
			"peers":     splitPeers(flags.peers),
		})
	}

	application, err := app.New(&app.Config{
		NodeID:      nodeID,
		RulesPath:   flags.config,
		MeshEnabled: flags.mesh,
		Substrate:   substrate,
		Logger:      logger,
		Metrics:     metrics,
	})
	if err != nil {
		fmt.Fprintf(stderr, "hivemind: %v\n", err)
		return exitConfigError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		fmt.Fprintf(stderr, "hivemind: failed to start: %v\n", err)
		return exitInternalFatal
	}

	server := grpctransport.New(application.Engine, application.Admin, grpctransport.Config{
		Addr:    flags.addr,
		Logger:  logger,
		Metrics: metrics,
	})

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Start() }()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			fmt.Fprintf(stderr, "hivemind: grpc server failed: %v\n", err)
			_ = application.Shutdown(context.Background())
			return exitBindError
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	if err := application.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(stderr, "hivemind: shutdown error: %v\n", err)
		return exitInternalFatal
	}
	return exitNormal
}

func splitPeers(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
