package cli

import (
	"fmt"
	"time"

	"github.com/bioinfoflow/bioinfoflow/domain/logger"
	"github.com/bioinfoflow/bioinfoflow/domain/run"
	"github.com/bioinfoflow/bioinfoflow/engine"
	"github.com/bioinfoflow/bioinfoflow/infrastructure/container"
	"github.com/bioinfoflow/bioinfoflow/infrastructure/eventbus"
	"github.com/bioinfoflow/bioinfoflow/infrastructure/metrics"
	"github.com/bioinfoflow/bioinfoflow/infrastructure/persistence/memory"
	"github.com/bioinfoflow/bioinfoflow/infrastructure/persistence/mysql"
	"github.com/bioinfoflow/bioinfoflow/infrastructure/rundir"
	"github.com/bioinfoflow/bioinfoflow/internal/config"
)

var noDB bool

// buildEngine wires an engine.Engine from cfg, following §7's layering:
// a MySQL-backed repository when mysql_dsn is set, an in-memory one
// otherwise (the CLI's --no-db mode, also the fallback with no DSN
// configured at all).
func buildEngine(cfg config.Config) (*engine.Engine, error) {
	repo, err := buildRepository(cfg)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	metrics.Subscribe(bus)

	logRepo, err := buildLogRepository(cfg)
	if err != nil {
		return nil, err
	}

	return engine.New(
		engine.WithRepository(repo),
		engine.WithContainerDriver(container.NewDockerDriver(cfg.DockerBinary)),
		engine.WithRunDirManager(rundir.NewManager(cfg.BaseDir)),
		engine.WithEventBus(bus),
		engine.WithLogger(logger.NewService(logRepo, 20, 5*time.Second)),
		engine.WithDefaultParallelism(cfg.DefaultParallelism),
		engine.WithDefaultTimeLimit(cfg.DefaultTimeLimit),
		engine.WithGracePeriod(cfg.GracePeriod),
	), nil
}

func buildLogRepository(cfg config.Config) (logger.Repository, error) {
	if noDB || cfg.MySQLDSN == "" {
		return memory.NewLogRepository(), nil
	}
	repo, err := mysql.NewLogRepository(cfg.MySQLDSN)
	if err != nil {
		return nil, fmt.Errorf("connect log repository to mysql: %w", err)
	}
	return repo, nil
}

func buildRepository(cfg config.Config) (run.Repository, error) {
	if noDB || cfg.MySQLDSN == "" {
		return memory.NewStateRepository(), nil
	}
	repo, err := mysql.NewStateRepository(cfg.MySQLDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to mysql: %w", err)
	}
	return repo, nil
}
