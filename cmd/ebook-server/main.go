// Command ebook-server hosts a book library for ebook readers.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kabili207/ebook-go/core/content"
	"github.com/kabili207/ebook-go/device/library"
	"github.com/kabili207/ebook-go/internal/cli"
	"github.com/kabili207/ebook-go/transport"
	"github.com/kabili207/ebook-go/transport/mqtt"
	"github.com/kabili207/ebook-go/transport/serial"
	"github.com/kabili207/ebook-go/transport/tcp"
	"github.com/kabili207/ebook-go/transport/ws"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ebook-server",
		Short:         "Serve books and forum posts to ebook readers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := cli.Load(cmd)
			if err != nil {
				return err
			}
			log, err := cli.NewLogger(v, os.Stderr)
			if err != nil {
				return err
			}
			slog.SetDefault(log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, v, log)
		},
	}
	cli.AddCommonFlags(cmd)

	f := cmd.Flags()
	f.String("books", "books", "directory holding the booklist and book pages")
	f.Int("cache-size", content.DefaultCacheSize, "pages kept in the page cache")
	f.String("listen", ":9000", "TCP address readers connect to")
	f.String("http", ":9100", "HTTP address for /metrics and the /ws reader endpoint (empty disables)")
	f.String("serial-port", "", "serial port to serve one reader on (empty disables)")
	f.Int("serial-baud", serial.DefaultBaudRate, "serial baud rate")
	f.Duration("stream-timeout", 30*time.Second, "wait for each reader acknowledgement in a stream")
	f.Duration("invite-timeout", library.DefaultInviteTimeout, "how long a chat invitation waits for an answer")
	f.Float64("upload-rate", 0, "uploads per second allowed per reader (0 disables)")
	f.Int("upload-burst", 1, "upload burst allowed per reader")
	f.Int("outbox-size", library.DefaultOutboxSize, "pushed messages queued per reader")
	f.String("mqtt-broker", "", "MQTT broker URL to mirror new posts to (empty disables)")
	f.String("mqtt-topic", mqtt.DefaultTopicPrefix, "MQTT topic prefix")
	f.String("mqtt-client-id", "", "MQTT client ID (random if empty)")
	f.String("mqtt-username", "", "MQTT username")
	f.String("mqtt-password", "", "MQTT password")
	return cmd
}

func run(ctx context.Context, v *viper.Viper, log *slog.Logger) error {
	books, err := content.OpenLibrary(content.LibraryConfig{
		Fs:        afero.NewOsFs(),
		Root:      v.GetString("books"),
		CacheSize: v.GetInt("cache-size"),
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("opening library: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	cfg := library.ServerConfig{
		Content:       books,
		StreamTimeout: v.GetDuration("stream-timeout"),
		InviteTimeout: v.GetDuration("invite-timeout"),
		UploadRate:    rate.Limit(v.GetFloat64("upload-rate")),
		UploadBurst:   v.GetInt("upload-burst"),
		OutboxSize:    v.GetInt("outbox-size"),
		Metrics:       library.NewMetrics(reg),
		Logger:        log,
	}

	var pub *mqtt.Publisher
	if broker := v.GetString("mqtt-broker"); broker != "" {
		pub = mqtt.New(mqtt.Config{
			Broker:      broker,
			ClientID:    v.GetString("mqtt-client-id"),
			Username:    v.GetString("mqtt-username"),
			Password:    v.GetString("mqtt-password"),
			TopicPrefix: v.GetString("mqtt-topic"),
			Logger:      log,
		})
		pub.SetStateHandler(func(ev transport.Event) {
			log.Info("mqtt state", "event", ev)
		})
		if err := pub.Start(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		defer pub.Stop()
		cfg.Publishers = append(cfg.Publishers, pub)
	}

	srv := library.NewServer(cfg)

	ln, err := tcp.Listen(v.GetString("listen"), tcp.Config{})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		srv.Start(ctx)
		return nil
	})
	g.Go(func() error { return srv.Serve(ctx, ln) })

	if addr := v.GetString("http"); addr != "" {
		hl, err := net.Listen("tcp", addr)
		if err != nil {
			ln.Close()
			return fmt.Errorf("http listen %s: %w", addr, err)
		}
		acceptor := ws.NewAcceptor(hl.Addr(), ws.Config{Logger: log})
		hs := &http.Server{Handler: newRouter(reg, acceptor), ReadHeaderTimeout: 10 * time.Second}

		g.Go(func() error { return srv.Serve(ctx, acceptor) })
		g.Go(func() error {
			log.Info("http listening", "addr", hl.Addr())
			if err := hs.Serve(hl); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hs.Shutdown(sctx)
		})
	}

	if port := v.GetString("serial-port"); port != "" {
		sl := serial.Listen(serial.Config{
			Port:     port,
			BaudRate: v.GetInt("serial-baud"),
			Logger:   log,
		})
		g.Go(func() error { return srv.Serve(ctx, sl) })
	}

	log.Info("library open", "books", len(books.Books()))
	return g.Wait()
}

func newRouter(reg *prometheus.Registry, acceptor *ws.Acceptor) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Handle("/ws", acceptor)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}
