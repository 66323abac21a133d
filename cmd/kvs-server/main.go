// Command kvs-server runs the line-protocol key-value server.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/dreamsxin/kvs/pool"
	"github.com/dreamsxin/kvs/server"
	"github.com/dreamsxin/kvs/storage"
)

const (
	defaultAddr   = "127.0.0.1:4000"
	sentinelFile  = "engine"
	engineKvs     = "kvs"
	engineSled    = "sled"
	boltFileName  = "kvs.sled"
)

func main() {
	addr := flag.String("addr", defaultAddr, "listening address, IP:PORT")
	engine := flag.String("engine", "", "storage engine: kvs or sled")
	flag.Parse()

	logger := log.NewLogfmtLogger(os.Stderr)
	logger = level.NewFilter(logger, level.AllowInfo())
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)

	if err := run(logger, *addr, *engine); err != nil {
		level.Error(logger).Log("msg", "fatal", "err", err)
		os.Exit(1)
	}
}

func run(logger log.Logger, addr, requestedEngine string) error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}

	current, err := readSentinel(dir)
	if err != nil {
		return err
	}

	engineName := requestedEngine
	if engineName == "" {
		engineName = current
	}
	if engineName == "" {
		engineName = engineKvs
	}
	if current != "" && engineName != current {
		return fmt.Errorf("wrong engine: sentinel says %q, requested %q", current, engineName)
	}

	if err := writeSentinel(dir, engineName); err != nil {
		return err
	}

	level.Info(logger).Log("msg", "kvs-server starting", "engine", engineName, "addr", addr)

	var eng storage.Engine
	switch engineName {
	case engineKvs:
		eng, err = storage.Open(dir, storage.WithLogger(logger))
	case engineSled:
		eng, err = storage.NewBoltEngine(filepath.Join(dir, boltFileName))
	default:
		return fmt.Errorf("unknown engine: %q", engineName)
	}
	if err != nil {
		return err
	}

	p, err := pool.NewSharedQueuePool(runtime.NumCPU(), logger)
	if err != nil {
		return err
	}

	srv := server.New(eng, p, logger)
	return srv.Run(addr)
}

func sentinelPath(dir string) string {
	return filepath.Join(dir, sentinelFile)
}

func readSentinel(dir string) (string, error) {
	b, err := os.ReadFile(sentinelPath(dir))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeSentinel(dir, engine string) error {
	return os.WriteFile(sentinelPath(dir), []byte(engine), 0o644)
}
