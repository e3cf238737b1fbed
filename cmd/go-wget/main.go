// Command go-wget is a recursive, multi-threaded web downloader: parse
// the CLI, build the coordinator, run it to completion, and exit with
// the status the error taxonomy computed.
package main

import (
	"context"
	"os"

	"go-wget/internal/cliopts"
	"go-wget/internal/controller"
	"go-wget/internal/logx"
)

func main() {
	os.Exit(run())
}

func run() int {
	opts, err := cliopts.Parse()
	if err != nil {
		logx.Default.Error("flag parsing failed: %v", err)
		return 2
	}

	if opts.Debug {
		logx.Default.EnableDebug()
		logx.Default.EnableVerbose()
	} else if opts.Verbose {
		logx.Default.EnableVerbose()
	}

	cfg := opts.Resolve()
	if len(cfg.Seeds) == 0 && cfg.InputFile == "" {
		logx.Default.Error("no seed URLs given: pass -u/--url or -i/--input-file")
		return 2
	}

	c := controller.New(cfg, logx.Default)
	return c.Run(context.Background())
}
