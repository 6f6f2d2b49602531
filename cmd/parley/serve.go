package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	parley "parley"
	"parley/bridge/webbridge"
	"parley/config"
	"parley/core"
	"parley/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the web frontend over HTTP and WebSocket",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		eng, err := buildEngine(cfg)
		if err != nil {
			return err
		}
		return runServe(cmd.Context(), cfg, eng, logger)
	},
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// clientMessage is a frame received from the browser.
type clientMessage struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Model string `json:"model,omitempty"`
}

func runServe(ctx context.Context, cfg *config.Config, eng core.Engine, logger logging.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed: %v", err)
			return
		}
		handleConn(r.Context(), conn, cfg, eng, logger)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	server := &http.Server{Addr: cfg.WebAddr, Handler: mux}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("web frontend listening on %s", cfg.WebAddr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// handleConn runs one browser connection: its own conversation, its own
// sink. The read loop serializes turns, matching the one-turn-at-a-time
// session contract.
func handleConn(ctx context.Context, conn *websocket.Conn, cfg *config.Config, eng core.Engine, logger logging.Logger) {
	sink := webbridge.New(conn, func(o *webbridge.Options) { o.Logger = logger })
	defer sink.Close()

	client := parley.New(eng, func(o *parley.Options) {
		o.Sink = sink
		o.Logger = logger
		o.Interval = cfg.Throttle()
	})

	h, err := client.StartSession(ctx, "", cfg.WorkingDir, cfg.Model)
	if err != nil {
		logger.Error("start session failed: %v", err)
		return
	}
	defer client.EndSession(context.Background(), "")
	logger.Info("session %s attached", h.SessionID)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			logger.Debug("connection closed: %v", err)
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Debug("bad client frame: %v", err)
			continue
		}
		switch msg.Type {
		case "message":
			if msg.Text == "" {
				continue
			}
			if _, err := client.Send(ctx, msg.Text, ""); err != nil {
				logger.Warn("turn failed: %v", err)
			}
		case "switch_model":
			client.SwitchModel(msg.Model, "")
		}

		select {
		case <-sink.Done():
			return
		default:
		}
	}
}
