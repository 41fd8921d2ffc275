// docsync admin CLI
// Inspects and maintains a coordinated document store on a filesystem root
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"

	"github.com/nainya/docsync/internal/logger"
	"github.com/nainya/docsync/internal/metrics"
	"github.com/nainya/docsync/pkg/backend"
	"github.com/nainya/docsync/pkg/config"
	"github.com/nainya/docsync/pkg/store"
)

var (
	root        = flag.String("root", "docsync-data", "Filesystem root for the store")
	indexKey    = flag.String("index-key", "", "Master index key (default built in)")
	logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (optional)")
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: docsync [flags] <command> [args]

Commands:
  status               Dump the master index document
  collections          List collections with counts and lock state
  sweep                Evict expired virtual locks
  count <collection>   Count documents in a collection
  drop <collection>    Remove a collection and its backing file

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	logger.InitGlobalLogger(logger.Config{Level: *logLevel, Pretty: true})

	var m *metrics.Metrics
	if *metricsAddr != "" {
		m = metrics.NewMetrics()
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
				log.Fatalf("metrics listener: %v", err)
			}
		}()
	}

	cfg := config.DefaultConfig()
	cfg.LogLevel = *logLevel
	if *indexKey != "" {
		cfg.MasterIndexKey = *indexKey
	}

	fs := afero.NewOsFs()
	fb, err := backend.NewFileBackend(fs, *root)
	if err != nil {
		log.Fatalf("open backend: %v", err)
	}
	mutex := backend.NewFileMutex(fs, *root+"/.docsync.lock", 2*cfg.LockTimeout)

	db, err := store.Open(cfg, store.Backends{KV: fb, Blobs: fb, Mutex: mutex}, store.Options{
		Logger:  logger.GetGlobalLogger(),
		Metrics: m,
	})
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	if err := run(db, flag.Args()); err != nil {
		log.Fatalf("%s: %v", flag.Arg(0), err)
	}
}

func run(db *store.Database, args []string) error {
	switch args[0] {
	case "status":
		doc, err := db.Index().Load()
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil

	case "collections":
		all, err := db.Index().GetCollections()
		if err != nil {
			return err
		}
		names, err := db.ListCollections()
		if err != nil {
			return err
		}
		for _, name := range names {
			meta := all[name]
			lock := "unlocked"
			if meta.LockStatus != nil && meta.LockStatus.IsLocked {
				lock = fmt.Sprintf("locked by %s since %s",
					meta.LockStatus.LockedBy,
					meta.LockStatus.LockedAt.Format(time.RFC3339))
			}
			fmt.Printf("%-30s %6d docs  %s\n", name, meta.DocumentCount, lock)
		}
		return nil

	case "sweep":
		evicted, err := db.Index().CleanupExpiredLocks()
		if err != nil {
			return err
		}
		if evicted {
			fmt.Println("expired locks evicted")
		} else {
			fmt.Println("no expired locks")
		}
		return nil

	case "count":
		if len(args) < 2 {
			return fmt.Errorf("count requires a collection name")
		}
		c, err := db.Collection(args[1])
		if err != nil {
			return err
		}
		n, err := c.CountDocuments(nil)
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil

	case "drop":
		if len(args) < 2 {
			return fmt.Errorf("drop requires a collection name")
		}
		return db.DropCollection(args[1])

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}
