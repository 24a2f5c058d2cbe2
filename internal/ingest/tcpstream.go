package ingest

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"

	"farmwatch/internal/config"
	"farmwatch/internal/model"
)

// StartTCPStream listens for newline separated readings. It returns the
// listener so callers can learn the bound address.
func StartTCPStream(ctx context.Context, cfg *config.Manager, out chan<- model.SensorReading, logger *slog.Logger) (net.Listener, error) {
	current := cfg.Get().Ingest.TCPStream
	if !current.Enabled {
		if logger != nil {
			logger.Info("tcp stream ingest disabled")
		}
		return nil, nil
	}
	ln, err := net.Listen("tcp", current.Addr)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("tcp stream ingest enabled", "addr", ln.Addr().String())
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				if logger != nil {
					logger.Warn("tcp stream accept error", "err", err)
				}
				continue
			}
			go handleTCPStreamConn(ctx, conn, cfg, out, logger)
		}
	}()
	return ln, nil
}

func handleTCPStreamConn(ctx context.Context, conn net.Conn, cfg *config.Manager, out chan<- model.SensorReading, logger *slog.Logger) {
	defer conn.Close()
	parser := NewParser()
	var counts lineCounts
	defer func() {
		counts.log(logger, "tcp stream connection closed", "remote", conn.RemoteAddr().String())
	}()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 8192), 1024*1024)
	for scanner.Scan() {
		counts.emitLine(ctx, parser, scanner.Text(), "", cfg.Get(), "tcp_stream", out, logger)
		if ctx.Err() != nil {
			return
		}
	}
	if err := scanner.Err(); err != nil && logger != nil {
		logger.Warn("tcp stream scanner error", "err", err)
	}
}
