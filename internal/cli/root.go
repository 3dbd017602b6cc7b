// Package cli implements stockctl, the operator console for the allocation engine.
package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"stockflow/internal/bootstrap"
	"stockflow/internal/config"
	appctx "stockflow/internal/core/context"
	"stockflow/internal/domain/batch"
	"stockflow/pkg/logger"
)

var version = "dev"

// ErrReported is returned after a command already printed its failure.
var ErrReported = errors.New("command failed")

// Session is one open backend plus the services over it. The console keeps a
// single session for its whole lifetime so undo reaches across entries.
type Session struct {
	*bootstrap.Services
	Config config.Config

	lister  batchLister
	backend *bootstrap.Backend
}

type batchLister interface {
	List(ctx context.Context, productCode string) ([]batch.Batch, error)
}

// Close releases the backend.
func (s *Session) Close() {
	if s.backend != nil {
		s.backend.Close()
	}
}

// NewMemorySession opens an in-memory ledger preloaded with demo data.
func NewMemorySession(ctx context.Context, cfg config.Config, now func() time.Time) (*Session, error) {
	if now == nil {
		now = time.Now
	}
	backend := bootstrap.OpenMemory()
	if err := bootstrap.LoadDemo(ctx, backend.Memory, now()); err != nil {
		return nil, err
	}
	return newSession(cfg, backend, now)
}

func newSession(cfg config.Config, backend *bootstrap.Backend, now func() time.Time) (*Session, error) {
	svcs, err := bootstrap.NewServices(cfg.Allocation, backend, now)
	if err != nil {
		backend.Close()
		return nil, err
	}
	s := &Session{Services: svcs, Config: cfg, backend: backend}
	if l, ok := backend.Ledger.(batchLister); ok {
		s.lister = l
	}
	return s, nil
}

type app struct {
	configPath string
	useMemory  bool
	jsonOut    bool
	verbose    bool
	operator   string
	inConsole  bool

	now     func() time.Time
	session *Session
	log     *logger.Logger
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stockctl",
		Short:         "Operate the batch ledger: receive, issue, undo and report",
		Long:          "stockctl drives the stock allocation engine. Batches are chosen for each issue by the configured strategy, and the last successful command can be undone.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context())
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "YAML config file")
	flags.BoolVar(&a.useMemory, "memory", false, "use an in-memory ledger with demo data")
	flags.BoolVar(&a.jsonOut, "json", false, "print JSON instead of tables")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log at the configured level instead of warnings only")
	flags.StringVar(&a.operator, "operator", "console", "operator recorded in the audit trail")

	cmd.AddCommand(newAddCmd(a))
	cmd.AddCommand(newRemoveCmd(a))
	cmd.AddCommand(newIssueCmd(a))
	cmd.AddCommand(newAnalyzeCmd(a))
	cmd.AddCommand(newUndoCmd(a))
	cmd.AddCommand(newListCmd(a))
	cmd.AddCommand(newShowCmd(a))
	cmd.AddCommand(newStrategyCmd(a))
	cmd.AddCommand(newLowStockCmd(a))
	cmd.AddCommand(newExpiringCmd(a))
	cmd.AddCommand(newTokenCmd(a))
	cmd.AddCommand(newConsoleCmd(a))
	return cmd
}

// NewRootCmdForTest returns the root command bound to an existing session.
func NewRootCmdForTest(sess *Session, now func() time.Time) *cobra.Command {
	if now == nil {
		now = time.Now
	}
	return newRootCmd(&app{session: sess, now: now, log: logger.Nop()})
}

// Execute runs stockctl with os.Args.
func Execute() error {
	a := &app{now: time.Now}
	defer func() {
		if a.session != nil {
			a.session.Close()
		}
	}()
	return newRootCmd(a).Execute()
}

// open loads configuration and the backend once per process.
func (a *app) open(ctx context.Context) error {
	if a.session != nil {
		return nil
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	level := "warn"
	if a.verbose {
		level = cfg.Log.Level
	}
	a.log, err = logger.New(logger.Config{Level: level, Development: true, OutputPaths: []string{"stderr"}})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if a.useMemory {
		a.session, err = NewMemorySession(ctx, cfg, a.now)
		return err
	}

	backend, err := bootstrap.OpenPostgres(ctx, cfg)
	if err != nil {
		return err
	}
	a.session, err = newSession(cfg, backend, a.now)
	return err
}

// context tags a command invocation with its own trace, the operator and the logger.
func (a *app) context(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = appctx.StartTrace(ctx, appctx.OriginConsole)
	ctx = appctx.WithOperator(ctx, &appctx.Operator{Subject: a.operator, Name: "stockctl"})
	if a.log != nil {
		ctx = logger.WithLogger(ctx, a.log)
	}
	return ctx
}
