package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"DistMR/internal/apps"
	"DistMR/internal/config"
	"DistMR/internal/coordinator"
	"DistMR/internal/logger"
	"DistMR/internal/mapreduce"
	"DistMR/internal/worker"
)

func main() {
	mode := flag.String("mode", "", "Mode: 'coordinator', 'worker' or 'sequential'")
	flag.Parse()

	var err error
	switch *mode {
	case "coordinator":
		err = runCoordinator(flag.Args())
	case "worker":
		err = runWorker(flag.Args())
	case "sequential":
		err = runSequential(flag.Args())
	default:
		fmt.Fprintf(os.Stderr, "Unknown mode: %q\n", *mode)
		fmt.Fprintf(os.Stderr, "Usage: %s -mode coordinator|worker|sequential [flags] args...\n", os.Args[0])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", *mode, err)
		os.Exit(1)
	}
}

// runCoordinator: [flags] inputfiles...
func runCoordinator(args []string) error {
	cfg := config.DefaultCoordinator()
	fs := flag.NewFlagSet("coordinator", flag.ExitOnError)
	cfg.RegisterFlags(fs)
	fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("usage: -mode coordinator [flags] inputfiles...")
	}

	files, err := mapreduce.CollectFiles(fs.Args())
	if err != nil {
		return err
	}

	c, err := coordinator.New(cfg, files)
	if err != nil {
		return err
	}
	return c.Run()
}

// runWorker: [flags] app
func runWorker(args []string) error {
	cfg := config.DefaultWorker()
	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	cfg.RegisterFlags(fs)
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("usage: -mode worker [flags] app (one of %s)", strings.Join(apps.Names(), ", "))
	}
	cfg.App = fs.Arg(0)
	if err := cfg.Validate(); err != nil {
		return err
	}

	app, err := apps.Lookup(cfg.App)
	if err != nil {
		return err
	}

	id := worker.NewID()
	sess, err := worker.Connect(cfg, id, coordinator.RPCName)
	if err != nil {
		return err
	}
	defer sess.Close()

	w := worker.New(id, app, sess, cfg.Dir, logger.NewComponent(cfg.LogLevel, id))
	return w.Run()
}

// runSequential: [flags] app inputfiles...
func runSequential(args []string) error {
	cfg := config.DefaultSequential()
	fs := flag.NewFlagSet("sequential", flag.ExitOnError)
	cfg.RegisterFlags(fs)
	fs.Parse(args)

	if fs.NArg() < 2 {
		return fmt.Errorf("usage: -mode sequential [flags] app inputfiles...")
	}
	cfg.App = fs.Arg(0)
	if err := cfg.Validate(); err != nil {
		return err
	}

	app, err := apps.Lookup(cfg.App)
	if err != nil {
		return err
	}

	files, err := mapreduce.CollectFiles(fs.Args()[1:])
	if err != nil {
		return err
	}

	path, err := mapreduce.NewEngine(cfg.OutputDir, logger.NewComponent(cfg.LogLevel, "sequential")).Run(files, app)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}
