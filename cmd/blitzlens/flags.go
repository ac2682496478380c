package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"blitzlens/internal/bbcfmt"
	"blitzlens/internal/pex"
)

// commonFlags are shared by every subcommand.
type commonFlags struct {
	exe      string
	raw      string
	out      string
	strict   bool
	maxSteps int
	verbose  int
}

func (c *commonFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&c.exe, "exe", "", "path to a BlitzBasic executable")
	fs.StringVar(&c.raw, "raw", "", "path to a raw BBC resource dump")
	fs.StringVar(&c.out, "out", "", "output directory")
	fs.BoolVar(&c.strict, "strict", false, "fail when any diagnostic was recorded")
	fs.IntVar(&c.maxSteps, "max-steps", 0, "decoder instruction cap")
	fs.CountVarP(&c.verbose, "verbose", "v", "raise log verbosity")
}

// validate checks the input selection, and the output directory when needOut.
func (c *commonFlags) validate(needOut bool) error {
	switch {
	case c.exe == "" && c.raw == "":
		return fmt.Errorf("--exe or --raw is required")
	case c.exe != "" && c.raw != "":
		return fmt.Errorf("--exe and --raw are mutually exclusive")
	case needOut && c.out == "":
		return fmt.Errorf("--out is required")
	}
	return nil
}

func (c *commonFlags) options() bbcfmt.Options {
	opts := bbcfmt.Options{Mode: bbcfmt.ModeBestEffort, MaxSteps: c.maxSteps}
	if c.strict {
		opts.Mode = bbcfmt.ModeStrict
	}
	return opts
}

func (c *commonFlags) input() string {
	if c.raw != "" {
		return c.raw
	}
	return c.exe
}

// read returns the BBC resource bytes.
func (c *commonFlags) read() ([]byte, error) {
	if c.raw != "" {
		data, err := os.ReadFile(c.raw)
		if err != nil {
			return nil, fmt.Errorf("read raw resource: %w", err)
		}
		return data, nil
	}
	data, err := pex.ReadBBC(c.exe)
	if err != nil {
		return nil, fmt.Errorf("extract resource: %w", err)
	}
	return data, nil
}

func mkdirOut(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	return nil
}
