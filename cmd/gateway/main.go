// cmd/gateway is the gateway node's entrypoint: a single binary that
// serves both the binary data-plane wire protocol (internal/gateway)
// and the gin-based control plane (internal/api) for one cluster
// member. Adapted from the teacher's cmd/server/main.go — the flag-
// parsing/wiring/graceful-shutdown shape is kept, generalized from
// flag.String to cobra + TOML config (github.com/spf13/cobra,
// github.com/pelletier/go-toml/v2 via internal/config), matching the
// CLI idiom dsmmcken-dh-cli uses throughout its cmd package.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sheepgate/gateway/internal/api"
	"github.com/sheepgate/gateway/internal/cluster"
	"github.com/sheepgate/gateway/internal/config"
	"github.com/sheepgate/gateway/internal/gateway"
	"github.com/sheepgate/gateway/internal/objectcache"
	"github.com/sheepgate/gateway/internal/store"
	"github.com/sheepgate/gateway/internal/transport"
)

var configPath string

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sheepgate",
		Short:         "gateway replication engine for a distributed object store",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a config.toml (defaults used when omitted)")
	return cmd
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logrus.NewEntry(logrus.StandardLogger())
	log.Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	engine, err := store.NewObjectEngine(cfg.DataDir, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer engine.Close()

	nodes := map[cluster.NodeID]*cluster.Node{
		cluster.NodeID(cfg.NodeID): {ID: cluster.NodeID(cfg.NodeID), Address: cfg.ListenAddr, Alive: true},
	}
	for _, p := range cfg.Peers {
		nodes[cluster.NodeID(p.ID)] = &cluster.Node{ID: cluster.NodeID(p.ID), Address: p.Address, Alive: true}
	}

	ring := cluster.NewRing(cfg.VnodesCount)
	membership := cluster.NewMembership(cluster.NodeID(cfg.NodeID), ring, nodes)
	pool := transport.NewPool(membership)

	cache, err := objectcache.NewLRUObjectCache(cfg.CacheCapacity, cfg.CacheEnabled)
	if err != nil {
		return fmt.Errorf("init object cache: %w", err)
	}

	gw := gateway.New(membership, ring, pool, engine, cache, log)

	dataServer, err := gateway.Listen(cfg.ListenAddr, gw, log)
	if err != nil {
		return fmt.Errorf("listen data plane: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(api.Logger(log), api.Recovery(log))
	api.NewHandler(membership, cluster.NodeID(cfg.NodeID)).Register(router)

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		log.Infof("data plane listening on %s (node %s)", dataServer.Addr(), cfg.NodeID)
		errCh <- dataServer.Serve(runCtx)
	}()
	go func() {
		log.Infof("control plane listening on %s", cfg.AdminAddr)
		if err := router.Run(cfg.AdminAddr); err != nil {
			errCh <- err
		}
	}()

	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if err := engine.Snapshot(); err != nil {
					log.WithError(err).Warn("periodic snapshot failed")
				}
			}
		}
	}()

	select {
	case <-runCtx.Done():
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("server error")
		}
	}

	log.Info("shutting down")
	if err := engine.Snapshot(); err != nil {
		log.WithError(err).Warn("final snapshot failed")
	}
	return dataServer.Close()
}
