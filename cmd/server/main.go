package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shiv669/echo-core-go/internal/app"
	"github.com/shiv669/echo-core-go/internal/config"
	"github.com/shiv669/echo-core-go/internal/database"
	"github.com/shiv669/echo-core-go/internal/pkg/cluster"
	"github.com/shiv669/echo-core-go/internal/pkg/nativelog"
	"github.com/shiv669/echo-core-go/internal/pkg/proctitle"
	"go.uber.org/zap"
)

const drainTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "Startup YAML config path")
	clusterEnable := flag.Bool("cluster", false, "Run one worker process per CPU core")
	clusterWorkers := flag.Int("cluster-workers", 0, "Number of cluster workers (0 = CPU count)")
	flag.Parse()

	log, err := nativelog.NewZapLogger()
	if err != nil {
		log, _ = zap.NewProduction()
		log.Warn("file log pipeline unavailable, using zap production defaults", zap.Error(err))
	}
	defer log.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	opts := cluster.Options{
		Enable:     cfg.Cluster.Enable || *clusterEnable,
		Workers:    cfg.Cluster.Workers,
		ListenAddr: fmt.Sprintf(":%d", cfg.Port),
	}
	if *clusterWorkers > 0 {
		opts.Workers = *clusterWorkers
	}

	if cluster.IsWorker() {
		_ = proctitle.Set(fmt.Sprintf("echo: worker %d", cluster.WorkerID()))
	} else {
		if opts.Enable {
			_ = proctitle.Set("echo: master")
		}
		// Migrations run once in the master, before any worker serves traffic.
		if err := database.EnsureSchema(cfg); err != nil {
			log.Fatal("failed to prepare database schema", zap.Error(err))
		}
	}

	err = cluster.Run(log, opts, func() error {
		return serve(log, cfg, opts.Enable)
	})
	if err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}

func serve(log *zap.Logger, cfg *config.AppConfig, clustered bool) error {
	application, err := app.New(cfg, log)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}

	addr := application.Addr()
	reusePort := false
	if clustered {
		if workerAddr := cluster.WorkerListenAddr(); workerAddr != "" {
			// Windows workers bind private ports behind the master proxy.
			addr = workerAddr
		} else {
			reusePort = true
		}
	}

	listener, err := cluster.ListenTCP(addr, reusePort)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	httpSrv := &http.Server{Handler: application.Router()}

	errCh := make(chan error, 1)
	go func() {
		fields := []zap.Field{zap.String("addr", addr)}
		if id := cluster.WorkerID(); id > 0 {
			fields = append(fields, zap.Int("worker_id", id))
		}
		log.Info("server starting", fields...)
		if err := httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-errCh:
		return err
	case <-stop:
	}

	log.Info("shutting down server...")
	application.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	log.Info("server exited")
	return nil
}
