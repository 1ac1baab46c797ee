package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"testrig/internal/config"
	"testrig/internal/transfer"
	"testrig/pkg/logging"
)

var (
	tftpConfigPath string
	tftpListen     string
	tftpRoot       string
	tftpDebug      bool
)

// newTftpCmd creates the command hosting the TFTP transfer service.
func newTftpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tftp",
		Short: "Serve firmware images and artifacts to UUTs over TFTP",
		Long: `Starts the TFTP transfer service on the test network. UUTs fetch
firmware images and other artifacts from the served root; the service logs
every transfer and watches the root for appearing and disappearing
artifacts. Runs until interrupted.`,
		RunE: runTftp,
	}
	cmd.Flags().StringVar(&tftpConfigPath, "config-path", "",
		"directory containing config.yaml (default: the user config directory)")
	cmd.Flags().StringVar(&tftpListen, "listen", "",
		"UDP address to listen on, overrides the configuration")
	cmd.Flags().StringVar(&tftpRoot, "root", "",
		"directory to serve, overrides the configuration")
	cmd.Flags().BoolVar(&tftpDebug, "debug", false, "enable debug logging")
	return cmd
}

func runTftp(cmd *cobra.Command, args []string) error {
	configPath := tftpConfigPath
	if configPath == "" {
		configPath = config.GetDefaultConfigPathOrPanic()
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	level := logging.ParseLevel(cfg.Logging.Level)
	if tftpDebug {
		level = logging.LevelDebug
	}
	logging.Init(level, os.Stderr)

	if tftpListen != "" {
		cfg.Transfer.Listen = tftpListen
	}
	if tftpRoot != "" {
		cfg.Transfer.Root = tftpRoot
	}

	srv, err := transfer.NewServer(transfer.Options{
		Listen:    cfg.Transfer.Listen,
		Root:      cfg.Transfer.Root,
		Timeout:   time.Duration(cfg.Transfer.TimeoutMs) * time.Millisecond,
		Retries:   cfg.Transfer.Retries,
		BlockSize: cfg.Transfer.BlockSize,
	})
	if err != nil {
		return err
	}
	watcher, err := transfer.NewWatcher(srv.Root())
	if err != nil {
		return err
	}

	srv.Notifier().Subscribe(transfer.Subscription{
		Ended: func(transferID string, err error) {
			if err != nil {
				logging.Warn("Transfer", "transfer %s ended: %v", transferID, err)
				return
			}
			logging.Info("Transfer", "transfer %s completed", transferID)
		},
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(ctx) })
	g.Go(func() error { return watcher.Run(ctx) })
	return g.Wait()
}
