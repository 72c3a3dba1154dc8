package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sage-x-project/rings/internal/logger"
	"github.com/sage-x-project/rings/signaling"
)

var startBootstrap string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a ring node, seeding a new ring or joining via --bootstrap",
	Long: `Start runs a node's signaling listener, metrics server (if
enabled), and Chord stabilization loop. With --bootstrap set to
did@ws://host:port/path it performs the out-of-band handshake into an
existing ring before joining; otherwise the node seeds a new ring.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
	startCmd.Flags().StringVar(&startBootstrap, "bootstrap", "", "did@ws://host:port/path of an existing ring member")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	priv, err := loadKey(cfg)
	if err != nil {
		return err
	}

	n := newNode(priv, cfg)
	log := logger.GetDefaultLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	defer n.Close(context.Background())

	sigServer := signaling.NewServer(n.signalingHandler())
	mux := http.NewServeMux()
	mux.Handle("/", sigServer)
	httpSrv := &http.Server{Addr: cfg.Signaling.ListenAddr, Handler: mux}
	go func() {
		log.Info("signaling listening", logger.String("addr", cfg.Signaling.ListenAddr), logger.String("did", n.Self.String()))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("signaling server stopped", logger.Error(err))
		}
	}()
	defer httpSrv.Shutdown(context.Background())

	if startBootstrap != "" {
		bootDid, bootURL, err := parseBootstrap(startBootstrap)
		if err != nil {
			return err
		}
		if err := n.Bootstrap(ctx, bootURL, bootDid); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		log.Info("joined ring", logger.String("via", bootDid.String()))
	} else {
		log.Info("seeding new ring", logger.String("did", n.Self.String()))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")
	return nil
}
