// Command seekfs indexes the configured roots and answers interactive
// queries from stdin. It is a thin shell over the engine package.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"

	internal "github.com/ZanzyTHEbar/seekfs/seekfs"
	"github.com/ZanzyTHEbar/seekfs/seekfs/config"
	"github.com/ZanzyTHEbar/seekfs/seekfs/engine"
	"github.com/ZanzyTHEbar/seekfs/seekfs/index"
	"github.com/ZanzyTHEbar/seekfs/seekfs/search"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	showHidden := flag.Bool("hidden", false, "include hidden files in results")
	flag.Parse()

	zl := internal.GetLogger()
	log := slog.Default()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		zl.Fatal().Err(err).Msg("failed to load configuration")
	}

	var matcher *ignore.GitIgnore
	if cfg.Index.IgnoreFile != "" {
		matcher, err = ignore.CompileIgnoreFile(cfg.Index.IgnoreFile)
		if err != nil {
			zl.Warn().Err(err).Str("file", cfg.Index.IgnoreFile).Msg("ignore file unusable, continuing without it")
		}
	}

	eng := engine.New(
		engine.WithLogger(log),
		engine.WithCachePath(cfg.Index.CachePath),
		engine.WithIgnore(matcher),
	)

	if n, err := eng.LoadCache(); err == nil {
		fmt.Printf("loaded %d entries from cache, rebuilding in background\n", n)
	}

	roots := flag.Args()
	if len(roots) == 0 {
		roots = cfg.Index.Roots
	}
	eng.Rebuild(roots)
	waitForIndex(eng)

	opts := search.Options{
		CaseSensitive: cfg.Search.CaseSensitive,
		PathSearch:    cfg.Search.PathSearch,
		Fuzzy:         cfg.Search.Fuzzy,
		MaxResults:    cfg.Search.MaxResults,
	}

	fmt.Printf("indexed %d entries; type a query, or :q to exit\n", eng.EntryCount())
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if query == ":q" || query == ":quit" {
			break
		}

		started := time.Now()
		results := eng.Search(query, opts)
		results = search.Filter(results, search.KindAll, "", *showHidden)
		elapsed := time.Since(started)

		for _, r := range results {
			fmt.Printf("%9s  %s\n", formatSize(r.Entry.Size), r.Entry.Path)
		}
		fmt.Printf("%d results in %s\n", len(results), elapsed)
	}

	if err := eng.SaveCache(); err != nil {
		zl.Warn().Err(err).Msg("failed to save index cache")
	}
}

// waitForIndex blocks until the background build finishes, printing
// progress along the way.
func waitForIndex(eng *engine.Engine) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for eng.IsIndexing() {
		<-ticker.C
		done, total := eng.Progress()
		if total > 0 {
			fmt.Printf("\rindexing... %d/%d", done, total)
		} else {
			fmt.Printf("\rindexing... %d", done)
		}
	}
	fmt.Print("\r")
}

// formatSize renders a byte count the way the result list shows it.
// Directories and journal entries without a known size render as a dash.
func formatSize(size uint64) string {
	if size == index.SizeUnknown {
		return "—"
	}
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := uint64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}
