package ingest

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"farmwatch/internal/config"
	"farmwatch/internal/model"
)

func StartFileTail(ctx context.Context, cfg *config.Manager, out chan<- model.SensorReading, logger *slog.Logger) {
	current := cfg.Get().Ingest.FileTail
	if !current.Enabled {
		if logger != nil {
			logger.Info("file tail ingest disabled")
		}
		return
	}
	for _, path := range current.Files {
		if logger != nil {
			logger.Info("file tail ingest enabled", "path", path, "start_at_end", current.StartAtEnd)
		}
		go tailFile(ctx, path, current.StartAtEnd, cfg, out, logger)
	}
}

// tailFile follows path and reopens it when it shrinks, so truncation and
// rotation both restart from the top.
func tailFile(ctx context.Context, path string, startAtEnd bool, cfg *config.Manager, out chan<- model.SensorReading, logger *slog.Logger) {
	parser := NewParser()
	var file *os.File
	var offset int64
	// counts covers one open of the file and is logged when it closes.
	var counts lineCounts
	closeFile := func(reason string) {
		_ = file.Close()
		file = nil
		counts.log(logger, "tail file closed", "path", path, "reason", reason)
		counts = lineCounts{}
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if file == nil {
			f, err := os.Open(path)
			if err != nil {
				if logger != nil {
					logger.Warn("tail open failed", "path", path, "err", err)
				}
				if !BackoffSleep(ctx, 500*time.Millisecond) {
					return
				}
				continue
			}
			file = f
			offset = 0
			if startAtEnd {
				if pos, err := file.Seek(0, io.SeekEnd); err == nil {
					offset = pos
				}
				startAtEnd = false
			}
		}

		reader := bufio.NewReader(file)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					if !BackoffSleep(ctx, 200*time.Millisecond) {
						closeFile("shutdown")
						return
					}
					info, statErr := os.Stat(path)
					if statErr == nil && info.Size() < offset {
						closeFile("truncated")
						break
					}
					continue
				}
				if logger != nil {
					logger.Warn("tail read error", "path", path, "err", err)
				}
				closeFile("read error")
				break
			}
			offset += int64(len(line))
			counts.emitLine(ctx, parser, line, "", cfg.Get(), "file_tail", out, logger)
		}
	}
}
