// Command quill is a small demonstration peer: it runs a Quill
// connection in listen, dial, or self-contained loopback mode, with its
// one registered method echoing the request payload back to the caller.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime/debug"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli/v3"

	"github.com/quillrpc/quill/internal/qlog"
	"github.com/quillrpc/quill/pkg/classify"
	"github.com/quillrpc/quill/pkg/rpcconn"
	"github.com/quillrpc/quill/pkg/transport/loopback"
	"github.com/quillrpc/quill/pkg/transport/stream"
	"github.com/tzrikka/xdg"
)

const (
	configDirName  = "quill"
	configFileName = "config.toml"
)

func main() {
	bi, _ := debug.ReadBuildInfo()

	cmd := &cli.Command{
		Name:    "quill",
		Usage:   "run a Quill RPC peer in listen, dial, or loopback mode",
		Version: bi.Main.Version,
		Flags:   flags(configFile()),
		Action:  run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

// configFile returns the path to quill's configuration file, creating
// an empty one on first run.
func configFile() altsrc.StringSourcer {
	path, err := xdg.CreateFile(xdg.ConfigHome, configDirName, configFileName)
	if err != nil {
		qlog.FatalError(context.Background(), "failed to create config file", err)
	}
	return altsrc.StringSourcer(path)
}

func initLog(devMode bool) context.Context {
	var handler slog.Handler
	if devMode {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug, AddSource: true})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug, AddSource: true})
	}

	l := slog.New(handler)
	slog.SetDefault(l)
	return qlog.InContext(context.Background(), l)
}

func run(_ context.Context, cmd *cli.Command) error {
	ctx := initLog(cmd.Bool("dev"))
	logger := qlog.FromContext(ctx)

	mode, err := variantMode(cmd.String("variant"))
	if err != nil {
		return err
	}

	reg := rpcconn.NewRegistry()
	reg.Register("Echo", func(_ context.Context, payload, _ []byte) ([]byte, error) {
		return payload, nil
	})

	switch cmd.String("mode") {
	case "loopback":
		return runLoopback(ctx, mode, reg)
	case "listen":
		return runListen(ctx, mode, reg, cmd.String("addr"))
	case "dial":
		return runDial(ctx, mode, reg, cmd.String("addr"))
	default:
		logger.Error("unknown mode", slog.String("mode", cmd.String("mode")))
		return fmt.Errorf("unknown mode %q: must be listen, dial, or loopback", cmd.String("mode"))
	}
}

func variantMode(s string) (classify.Mode, error) {
	switch s {
	case "lean":
		return classify.ModeLean, nil
	case "rich", "":
		return classify.ModeRich, nil
	default:
		return 0, fmt.Errorf("unknown variant %q: must be lean or rich", s)
	}
}

// runLoopback wires a client and a server Conn together in-process and
// exercises one request/response round trip, for a dependency-free demo.
func runLoopback(ctx context.Context, mode classify.Mode, reg *rpcconn.Registry) error {
	logger := qlog.FromContext(ctx)

	a, b := loopback.NewPair()
	client := rpcconn.New(mode, rpcconn.SideClient, a, rpcconn.NewRegistry())
	server := rpcconn.New(mode, rpcconn.SideServer, b, reg)

	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("start client connection: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("start server connection: %w", err)
	}
	defer client.Stop()
	defer server.Stop()

	resp, err := client.RequestResponse(ctx, "Echo", []byte("hello, quill"), nil)
	if err != nil {
		return fmt.Errorf("loopback Echo call: %w", err)
	}

	logger.Info("loopback round trip complete", slog.String("response", string(resp)))
	return nil
}

// runListen accepts one TCP connection and serves it as a server-side Conn.
func runListen(ctx context.Context, mode classify.Mode, reg *rpcconn.Registry, addr string) error {
	logger := qlog.FromContext(ctx)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	defer ln.Close()

	logger.Info("listening", slog.String("addr", addr))

	nc, err := ln.Accept()
	if err != nil {
		return fmt.Errorf("accept connection: %w", err)
	}

	t := stream.New(nc)
	conn := rpcconn.New(mode, rpcconn.SideServer, t, reg)
	if err := conn.Start(ctx); err != nil {
		return fmt.Errorf("start connection: %w", err)
	}
	defer conn.Stop()

	<-ctx.Done()
	return nil
}

// runDial connects to a listening peer and issues one Echo call.
func runDial(ctx context.Context, mode classify.Mode, reg *rpcconn.Registry, addr string) error {
	logger := qlog.FromContext(ctx)

	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	t := stream.New(nc)
	conn := rpcconn.New(mode, rpcconn.SideClient, t, reg)
	if err := conn.Start(ctx); err != nil {
		return fmt.Errorf("start connection: %w", err)
	}
	defer conn.Stop()

	resp, err := conn.RequestResponse(ctx, "Echo", []byte("hello, quill"), nil)
	if err != nil {
		return fmt.Errorf("Echo call: %w", err)
	}

	logger.Info("received response", slog.String("response", string(resp)))
	return nil
}
