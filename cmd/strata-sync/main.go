// Command strata-sync loads signal data from a Strata workspace and prints it
// as CSV, optionally triggering a workflow first. Connection settings come
// from the STRATA_* environment variables (a .env file is honored).
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	strata "github.com/strata-io/strata-go"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var (
		signals   = flag.String("signals", "", "comma-separated signal names (required)")
		entities  = flag.String("entities", "", "comma-separated entity names (required)")
		start     = flag.String("start", "", "window start, e.g. 2022-08-01T00:00:00.000 (default: stored extent)")
		end       = flag.String("end", "", "window end (default: stored extent)")
		increment = flag.String("increment", "Daily", "time increment (Daily, Hourly, ...)")
		workflow  = flag.String("workflow", "", "workflow to run and await before loading")
		timeout   = flag.Duration("workflow-timeout", 10*time.Minute, "workflow await budget")
	)
	flag.Parse()

	if *signals == "" || *entities == "" {
		flag.Usage()
		return fmt.Errorf("both -signals and -entities are required")
	}

	client, err := strata.NewClientFromEnv()
	if err != nil {
		return err
	}

	if *workflow != "" {
		slog.Info("running workflow", "workflow", *workflow, "workspace", client.Workspace())
		exec, err := client.RunWorkflow(ctx, *workflow, strata.StartWorkflowOptions{}, 5*time.Second, *timeout)
		if err != nil {
			return fmt.Errorf("workflow %q: %w", *workflow, err)
		}
		slog.Info("workflow finished", "id", exec.ID, "status", exec.Status)
		if !exec.Succeeded() {
			return fmt.Errorf("workflow %q ended %s: %s", *workflow, exec.Status, exec.Message)
		}
	}

	req := strata.LoadRequest{
		Signals:   splitList(*signals),
		Entities:  splitList(*entities),
		Increment: *increment,
	}
	if req.Start, err = parseBound(*start); err != nil {
		return err
	}
	if req.End, err = parseBound(*end); err != nil {
		return err
	}

	frame, err := client.LoadFrame(ctx, req)
	if err != nil {
		return err
	}
	slog.Info("frame loaded", "rows", len(frame.Rows), "columns", len(frame.Columns))

	return writeCSV(os.Stdout, frame)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBound(s string) (strata.Index, error) {
	if s == "" {
		return strata.Index{}, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05.000", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return strata.TimeIndex(t), nil
		}
	}
	return strata.Index{}, fmt.Errorf("unrecognized bound %q", s)
}

func writeCSV(out *os.File, frame *strata.Frame) error {
	w := csv.NewWriter(out)
	header := append([]string{"Entity", "Index"}, frame.Columns...)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range frame.Rows {
		cells := make([]string, 0, len(row.Cells)+2)
		cells = append(cells, row.Entity, row.Index.String())
		for _, v := range row.Cells {
			cells = append(cells, v.String())
		}
		if err := w.Write(cells); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
