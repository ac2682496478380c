package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"blitzlens/internal/pex"
	"blitzlens/internal/resource"
	"blitzlens/internal/variable"
)

type scanSummary struct {
	Input       string      `json:"input"`
	FileSize    int64       `json:"file_size,omitempty"`
	CodeSize    uint32      `json:"code_size"`
	Symbols     int         `json:"symbols"`
	Aliases     int         `json:"aliases"`
	Relative    int         `json:"relative_relocs"`
	Absolute    int         `json:"absolute_relocs"`
	Imports     int         `json:"imports"`
	Variables   int         `json:"variables"`
	Libraries   int         `json:"libraries"`
	Resources   []pex.Entry `json:"resources,omitempty"`
	Diagnostics int         `json:"diagnostics"`
}

func cmdScan(args []string) error {
	var cf commonFlags
	fs := pflag.NewFlagSet("scan", pflag.ExitOnError)
	cf.register(fs)
	jsonOut := fs.Bool("json", false, "output as JSON")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cf.validate(false); err != nil {
		return err
	}
	log, sync := newLogger(cf.verbose)
	defer sync()

	sum := scanSummary{Input: cf.input()}
	if cf.exe != "" {
		pf, err := pex.Open(cf.exe)
		if err != nil {
			return fmt.Errorf("open: %w", err)
		}
		sum.FileSize = pf.FileSize()
		sum.Resources, err = pf.Resources()
		pf.Close()
		if err != nil {
			return fmt.Errorf("resources: %w", err)
		}
	}

	data, err := cf.read()
	if err != nil {
		return err
	}
	res, err := resource.Parse(data, log)
	if err != nil {
		return fmt.Errorf("parse resource: %w", err)
	}
	r := variable.NewRenderer(log)
	set := r.RenderAll(res)

	sum.CodeSize = res.CodeSize()
	sum.Symbols = len(res.Symbols())
	sum.Aliases = len(res.Aliases())
	sum.Relative = len(res.RelativeRelocs())
	sum.Absolute = len(res.AbsoluteRelocs())
	sum.Imports = len(res.Imports())
	sum.Variables = len(set.Vars)
	sum.Libraries = set.Libs.Len()
	sum.Diagnostics = r.Diags().Len()

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}

	fmt.Printf("Input: %s\n", sum.Input)
	if sum.FileSize > 0 {
		fmt.Printf("File size:        %d bytes\n", sum.FileSize)
	}
	for _, e := range sum.Resources {
		fmt.Printf("  resource %-8s %-8s lang=%-6s RVA=0x%08x size=0x%x\n", e.Type, e.Name, e.Lang, e.RVA, e.Size)
	}
	fmt.Printf("Code size:        0x%x (%d bytes)\n", sum.CodeSize, sum.CodeSize)
	fmt.Printf("Symbols:          %d (%d aliases)\n", sum.Symbols, sum.Aliases)
	fmt.Printf("Relocations:      %d relative, %d absolute\n", sum.Relative, sum.Absolute)
	fmt.Printf("Imports:          %d\n", sum.Imports)
	fmt.Printf("Variables:        %d\n", sum.Variables)
	fmt.Printf("DLL libraries:    %d\n", sum.Libraries)
	if sum.Diagnostics > 0 {
		fmt.Printf("Diagnostics:      %d\n", sum.Diagnostics)
	}
	return cf.options().Check(r.Diags())
}
