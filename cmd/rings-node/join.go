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

var joinTarget string

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join an existing ring via one bootstrap peer, then keep running",
	Long: `Join performs the out-of-band signaling handshake against
--target (did@ws://host:port/path), joins the Chord ring through it,
and then behaves like start: it serves its own signaling listener and
stabilizes in the ring until terminated.`,
	RunE: runJoin,
}

func init() {
	rootCmd.AddCommand(joinCmd)
	joinCmd.Flags().StringVar(&joinTarget, "target", "", "did@ws://host:port/path of the peer to join through")
	joinCmd.MarkFlagRequired("target")
}

func runJoin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	priv, err := loadKey(cfg)
	if err != nil {
		return err
	}
	bootDid, bootURL, err := parseBootstrap(joinTarget)
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
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("signaling server stopped", logger.Error(err))
		}
	}()
	defer httpSrv.Shutdown(context.Background())

	if err := n.Bootstrap(ctx, bootURL, bootDid); err != nil {
		return fmt.Errorf("join: %w", err)
	}
	log.Info("joined ring", logger.String("did", n.Self.String()), logger.String("via", bootDid.String()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")
	return nil
}
