package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"billocr/pkg/bill"
	"billocr/pkg/logger"
	"billocr/pkg/service"
)

const processedDirName = "processed"

// watch debounce: a file is handed to the workers once no event has touched it for settleAfter.
const (
	watchTick   = 250 * time.Millisecond
	settleAfter = 300 * time.Millisecond
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Ingest every bill image in a directory",
	Long: `Batch processes all supported images in dir with a pool of workers and stores
each result. Successfully stored images are moved to dir/processed so they are
handled once. With --watch the command keeps running and ingests new files as
they appear. --dry-run prints records as JSON lines without touching the
database or moving files.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.Flags().StringP("type", "t", string(bill.Electric), "bill type of every image in dir")
	batchCmd.Flags().IntP("workers", "w", 0, "worker pool size (default BATCH_WORKERS)")
	batchCmd.Flags().Bool("watch", false, "watch dir for new files after the initial scan")
	batchCmd.Flags().Bool("dry-run", false, "run OCR only; no database writes, files stay in place")
}

func runBatch(cmd *cobra.Command, args []string) error {
	typeFlag, _ := cmd.Flags().GetString("type")
	workers, _ := cmd.Flags().GetInt("workers")
	watch, _ := cmd.Flags().GetBool("watch")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	t, err := bill.ParseType(typeFlag)
	if err != nil {
		return err
	}
	if workers <= 0 {
		workers = cfg.BatchWorkers
	}
	b := &batchRunner{dir: args[0], workers: workers, log: logger.WithComponent("batch")}

	if dryRun {
		b.keep = true
		pipe := newPipeline()
		var mu sync.Mutex
		out := cmd.OutOrStdout()
		b.ingest = func(ctx context.Context, name string, data []byte) error {
			rec, err := pipe.Process(ctx, data, t)
			if err != nil {
				return err
			}
			return writeJSONLine(out, &mu, map[string]any{"file": name, "record": rec})
		}
	} else {
		svc, err := newBillService()
		if err != nil {
			return err
		}
		b.ingest = func(ctx context.Context, name string, data []byte) error {
			bl, err := svc.Ingest(ctx, service.Upload{FileName: name, Data: data, Type: t})
			if err != nil {
				return err
			}
			b.log.Info().Str("file", name).Uint("bill_id", bl.ID).Float64("confidence", bl.ConfidenceScore).Msg("stored")
			return nil
		}
	}

	ctx := cmd.Context()
	files, err := listImageFiles(b.dir)
	if err != nil {
		return err
	}
	b.log.Info().Int("files", len(files)).Int("workers", workers).Str("dir", b.dir).Msg("scanning")
	ok, failed := b.run(ctx, files)
	b.log.Info().Int64("ok", ok).Int64("failed", failed).Msg("scan finished")

	if !watch {
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(files))
		}
		return nil
	}
	return b.watch(ctx)
}

func writeJSONLine(w io.Writer, mu *sync.Mutex, v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	_, err = fmt.Fprintf(w, "%s\n", line)
	return err
}

// batchRunner feeds image files from dir to ingest with bounded concurrency.
type batchRunner struct {
	dir     string
	workers int
	keep    bool // leave files in place after ingest
	ingest  func(ctx context.Context, name string, data []byte) error
	log     zerolog.Logger
}

// run processes names and reports how many succeeded and failed.
func (b *batchRunner) run(ctx context.Context, names []string) (ok, failed int64) {
	var nOK, nFailed atomic.Int64
	var g errgroup.Group
	g.SetLimit(max(b.workers, 1))
	for _, name := range names {
		name := name
		g.Go(func() error {
			if err := b.processFile(ctx, name); err != nil {
				nFailed.Add(1)
			} else {
				nOK.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return nOK.Load(), nFailed.Load()
}

func (b *batchRunner) processFile(ctx context.Context, name string) error {
	src := filepath.Join(b.dir, name)
	data, err := os.ReadFile(src)
	if err != nil {
		b.log.Warn().Err(err).Str("file", name).Msg("read failed")
		return err
	}
	if err := b.ingest(ctx, name, data); err != nil {
		b.log.Warn().Err(err).Str("file", name).Msg("ingest failed")
		return err
	}
	if b.keep {
		return nil
	}
	if err := moveToProcessed(src, filepath.Join(b.dir, processedDirName, name)); err != nil {
		b.log.Warn().Err(err).Str("file", name).Msg("move to processed failed")
	}
	return nil
}

// watch ingests files created in dir until ctx is cancelled.
func (b *batchRunner) watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(b.dir); err != nil {
		return err
	}
	b.log.Info().Str("dir", b.dir).Msg("watching (debounced)")

	names := make(chan string, 256)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(names)
		return b.debounce(ctx, w, names)
	})
	for i := 0; i < max(b.workers, 1); i++ {
		g.Go(func() error {
			for name := range names {
				_ = b.processFile(ctx, name)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (b *batchRunner) debounce(ctx context.Context, w *fsnotify.Watcher, out chan<- string) error {
	pending := map[string]time.Time{}
	ticker := time.NewTicker(watchTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			name := filepath.Base(ev.Name)
			if isSupportedExt(name) {
				pending[name] = time.Now()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			b.log.Warn().Err(err).Msg("watch error")
		case now := <-ticker.C:
			for name, t := range pending {
				if now.Sub(t) < settleAfter {
					continue
				}
				delete(pending, name)
				if fi, err := os.Stat(filepath.Join(b.dir, name)); err != nil || !fi.Mode().IsRegular() {
					continue
				}
				select {
				case out <- name:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

func isSupportedExt(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	return service.SupportedFile(name)
}

func listImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !isSupportedExt(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

// moveToProcessed renames src to dst, falling back to copy and remove across devices.
func moveToProcessed(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	return copyRemove(src, dst)
}

func copyRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
