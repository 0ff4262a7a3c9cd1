// Command ebook-reader is an interactive e-book reader client.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/kabili207/ebook-go/core/codec"
	"github.com/kabili207/ebook-go/device/reader"
	"github.com/kabili207/ebook-go/internal/cli"
	"github.com/kabili207/ebook-go/transport"
	"github.com/kabili207/ebook-go/transport/serial"
	"github.com/kabili207/ebook-go/transport/tcp"
	"github.com/kabili207/ebook-go/transport/udp"
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
		Use:           "ebook-reader",
		Short:         "Read books and discuss them with other readers",
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

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, v, cmd.InOrStdin(), cmd.OutOrStdout(), log)
		},
	}
	cli.AddCommonFlags(cmd)

	f := cmd.Flags()
	f.String("server", "localhost:9000", "server address: host:port, a ws:// URL, or a serial port")
	f.String("transport", "tcp", "transport to the server: tcp, ws or serial")
	f.Int("serial-baud", serial.DefaultBaudRate, "serial baud rate")
	f.String("user", "", "username announced to the server")
	f.String("mode", string(codec.ModePull), "synchronisation mode: pull or push")
	f.Duration("poll-interval", reader.DefaultPollInterval, "pull mode refresh interval")
	f.Duration("resync-interval", 0, "push mode full resync interval (0 disables)")
	f.Duration("response-timeout", reader.DefaultResponseTimeout, "wait for a server response")
	f.String("chat-listen", ":0", "UDP address for peer chat (empty disables chat)")
	f.String("chat-addr", "", "host peers send chat datagrams to (defaults to the address the server sees)")
	f.Bool("own-posts-unread", false, "store this reader's own posts as unread")
	return cmd
}

func run(ctx context.Context, v *viper.Viper, in io.Reader, out io.Writer, log *slog.Logger) error {
	user := v.GetString("user")
	if user == "" {
		return errors.New("--user is required")
	}
	mode := codec.SyncMode(v.GetString("mode"))
	if !mode.Valid() {
		return fmt.Errorf("unknown mode %q", mode)
	}

	conn, err := dial(ctx, v, log)
	if err != nil {
		return err
	}

	cfg := reader.Config{
		Username:        user,
		Mode:            mode,
		ChatAddr:        v.GetString("chat-addr"),
		PollInterval:    v.GetDuration("poll-interval"),
		ResyncInterval:  v.GetDuration("resync-interval"),
		ResponseTimeout: v.GetDuration("response-timeout"),
		Logger:          log,
	}
	if v.GetBool("own-posts-unread") {
		cfg.OwnPostStatus = reader.OwnPostsUnread
	}
	if addr := v.GetString("chat-listen"); addr != "" {
		chat, err := udp.Listen(addr)
		if err != nil {
			conn.Close()
			return err
		}
		cfg.Chat = chat
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sh := newShell(out)
	cfg.Events = sh.events(ctx)
	client := reader.NewClient(conn, cfg)
	sh.client = client

	lines := make(chan string)
	go scanLines(ctx, in, lines)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return client.Start(gctx) })
	g.Go(func() error {
		select {
		case <-client.Ready():
		case <-client.Done():
			return nil
		}
		sh.printf("Connected as %s (%s mode). Type help for commands.\n", user, mode)
		defer cancel()
		return sh.run(gctx, lines)
	})
	return g.Wait()
}

// dial opens the control connection selected by --transport.
func dial(ctx context.Context, v *viper.Viper, log *slog.Logger) (transport.Conn, error) {
	addr := v.GetString("server")
	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch kind := v.GetString("transport"); kind {
	case "tcp":
		return tcp.Dial(dctx, addr, tcp.Config{})
	case "ws":
		return ws.Dial(dctx, addr, ws.Config{Logger: log})
	case "serial":
		return serial.Open(serial.Config{Port: addr, BaudRate: v.GetInt("serial-baud"), Logger: log})
	default:
		return nil, fmt.Errorf("unknown transport %q", kind)
	}
}

// scanLines feeds input lines to lines and closes it at end of input.
func scanLines(ctx context.Context, in io.Reader, lines chan<- string) {
	defer close(lines)
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		select {
		case lines <- sc.Text():
		case <-ctx.Done():
			return
		}
	}
}
