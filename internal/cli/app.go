package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/sandalwing/si/internal/bus"
	"github.com/sandalwing/si/internal/changeset"
	"github.com/sandalwing/si/internal/config"
	"github.com/sandalwing/si/internal/entitydef"
	"github.com/sandalwing/si/internal/logging"
	"github.com/sandalwing/si/internal/model"
	"github.com/sandalwing/si/internal/storage"
	"github.com/sandalwing/si/internal/unitwork"
)

// App wires the full stack for one command invocation.
type App struct {
	Cfg     config.Config
	Log     *zap.Logger
	DB      *storage.DB
	Reg     *entitydef.Registry
	Engine  *model.Engine
	Manager *changeset.Manager
	Coord   *unitwork.Coordinator

	pub bus.Publisher
}

// openApp loads configuration and opens the database and publisher. The
// caller must Close.
func openApp(opts *RootOptions) (*App, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, Message: "load config", Err: err}
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, Message: "init logging", Err: err}
	}

	reg := entitydef.Builtin()
	if cfg.Defs != "" {
		if reg, err = entitydef.LoadFile(cfg.Defs); err != nil {
			return nil, &ExitError{Code: ExitCommandError, Message: "load entity defs", Err: err}
		}
	}

	db, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, Message: "open database", Err: err}
	}

	var pub bus.Publisher = &bus.MemoryPublisher{}
	if len(cfg.Bus.Brokers) > 0 {
		if pub, err = bus.NewKafkaPublisher(cfg.Bus.Brokers, cfg.Bus.Topic, cfg.Bus.TopicByKind); err != nil {
			_ = db.Close()
			return nil, &ExitError{Code: ExitCommandError, Message: "connect bus", Err: err}
		}
	}

	eng := model.NewEngine(reg)
	return &App{
		Cfg:     cfg,
		Log:     logger,
		DB:      db,
		Reg:     reg,
		Engine:  eng,
		Manager: changeset.NewManager(eng),
		Coord:   unitwork.NewCoordinator(db, pub, logger),
		pub:     pub,
	}, nil
}

// Close releases the database, publisher and logger.
func (a *App) Close() error {
	_ = a.Log.Sync()
	if err := a.pub.Close(); err != nil {
		_ = a.DB.Close()
		return err
	}
	return a.DB.Close()
}

// readPayload interprets a --payload value: "@path" reads a file, "-"
// reads stdin, anything else is inline JSON. Empty means no payload.
func readPayload(arg string) ([]byte, error) {
	switch {
	case arg == "":
		return nil, nil
	case arg == "-":
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read payload from stdin: %w", err)
		}
		return b, nil
	case strings.HasPrefix(arg, "@"):
		b, err := os.ReadFile(strings.TrimPrefix(arg, "@"))
		if err != nil {
			return nil, fmt.Errorf("read payload file: %w", err)
		}
		return b, nil
	default:
		return []byte(arg), nil
	}
}
