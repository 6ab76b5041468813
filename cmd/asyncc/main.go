package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/moikas-code/script-sub002/asyncify"
	"github.com/moikas-code/script-sub002/config"
	"github.com/moikas-code/script-sub002/executor"
	"github.com/moikas-code/script-sub002/ir"
	"github.com/moikas-code/script-sub002/irfile"
	"go.uber.org/zap"
)

type options struct {
	file        string
	configPath  string
	funcName    string
	emit        string
	runName     string
	args        string
	timeout     time.Duration
	dump        bool
	layout      bool
	interactive bool
}

func main() {
	var o options
	flag.StringVar(&o.file, "file", "", "Path to a YAML program file")
	flag.StringVar(&o.configPath, "config", "", "Path to asyncc.yaml (default: search upward from the program)")
	flag.StringVar(&o.funcName, "func", "", "Lower only this async function (default: all)")
	flag.BoolVar(&o.dump, "dump", false, "Print the lowered IR")
	flag.BoolVar(&o.layout, "layout", false, "Print the state record layout of each lowered function")
	flag.StringVar(&o.emit, "emit", "", "Write the lowered module as a program file (- for stdout)")
	flag.StringVar(&o.runName, "run", "", "Function to execute after lowering")
	flag.StringVar(&o.args, "args", "", "Arguments for -run (comma-separated)")
	flag.DurationVar(&o.timeout, "timeout", 10*time.Second, "Execution timeout for -run (ignored with -i)")
	flag.BoolVar(&o.interactive, "i", false, "Step through -run one poll at a time")
	flag.Parse()

	if o.file == "" {
		fmt.Fprintln(os.Stderr, "Usage: asyncc -file <prog.yaml> [-func name] [-dump] [-layout] [-emit out.yaml]")
		fmt.Fprintln(os.Stderr, "       asyncc -file <prog.yaml> -run name [-args 1,2]")
		fmt.Fprintln(os.Stderr, "       asyncc -file <prog.yaml> -run name [-args 1,2] -i  (interactive stepper)")
		os.Exit(1)
	}

	if err := run(o); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(o options) (*config.Config, error) {
	path := o.configPath
	if path == "" {
		found, err := config.Find(filepath.Dir(o.file))
		if err != nil {
			return nil, err
		}
		if found == "" {
			return config.Default(), nil
		}
		path = found
	}
	return config.Load(path)
}

func run(o options) error {
	cfg, err := loadConfig(o)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, err := cfg.Logger()
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	m, err := irfile.Load(o.file)
	if err != nil {
		return err
	}
	log.Debug("program loaded", zap.String("file", o.file), zap.Int("functions", m.Len()))

	infos, err := lower(m, o.funcName, cfg.Asyncify(log))
	if err != nil {
		return err
	}

	out := newPrinter(os.Stdout)
	if o.dump {
		out.module(m)
	}
	if o.layout {
		for _, info := range infos {
			out.layout(m, info)
		}
	}
	if o.emit != "" {
		if err := emit(m, o.emit); err != nil {
			return err
		}
	}
	if o.runName == "" {
		if !o.dump && !o.layout && o.emit == "" {
			out.summary(m, infos)
		}
		return nil
	}

	fn := m.FunctionByName(o.runName)
	if fn == nil {
		return fmt.Errorf("no function %q", o.runName)
	}
	args, err := parseArgs(o.args, fn.Params)
	if err != nil {
		return err
	}
	ex := executor.New(m, executor.Options{Logger: log, MaxSteps: cfg.Runtime.MaxSteps})

	if o.interactive {
		return runInteractive(context.Background(), ex, fn, args, infoFor(infos, fn.ID))
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()
	v, err := ex.BlockOn(ctx, o.runName, args...)
	if err != nil {
		return fmt.Errorf("run %s: %w", o.runName, err)
	}
	out.result(o.runName, v)
	return nil
}

// lower runs the lowering over one named function or every async function.
func lower(m *ir.Module, name string, cfg asyncify.Config) ([]*asyncify.Info, error) {
	if name == "" {
		return asyncify.TransformAll(m, cfg)
	}
	fn := m.FunctionByName(name)
	if fn == nil {
		return nil, fmt.Errorf("no function %q", name)
	}
	info, err := asyncify.Transform(m, fn.ID, cfg)
	if err != nil {
		return nil, err
	}
	return []*asyncify.Info{info}, nil
}

func infoFor(infos []*asyncify.Info, id ir.FunctionID) *asyncify.Info {
	for _, info := range infos {
		if info.OriginalFn == id {
			return info
		}
	}
	return nil
}

func emit(m *ir.Module, path string) error {
	data, err := irfile.Encode(m)
	if err != nil {
		return err
	}
	if path == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
