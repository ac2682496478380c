package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"blitzlens/internal/disasm"
	"blitzlens/internal/output"
)

func cmdDump(args []string) error {
	var cf commonFlags
	fs := pflag.NewFlagSet("dump", pflag.ExitOnError)
	cf.register(fs)
	annotate := fs.Bool("annotate", false, "append string literal and import comments to the listing")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cf.validate(true); err != nil {
		return err
	}
	log, sync := newLogger(cf.verbose)
	defer sync()

	data, err := cf.read()
	if err != nil {
		return err
	}
	a, err := analyze(data, cf.maxSteps, log)
	if err != nil {
		return err
	}
	if err := mkdirOut(cf.out); err != nil {
		return err
	}
	if err := writeDump(cf.out, a, *annotate); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "dump: %d instructions, %d functions, %d variables, %d diagnostics -> %s\n",
		a.dis.Len(), len(a.funcs), len(a.vars.Vars), a.diags.Len(), cf.out)
	return cf.options().Check(&a.diags)
}

// writeDump writes the listing and every side table of a.
func writeDump(dir string, a *analysis, annotate bool) error {
	var ann disasm.Annotator
	if annotate {
		ann = disasm.Chain(disasm.StringAnnotator(a.vars), disasm.ImportAnnotator(a.res.HasImportAddr))
	}
	if err := output.WriteListing(dir, disasm.FormatAnnotated(a.dis, a.res, a.vars.Vars, ann)); err != nil {
		return err
	}
	if err := output.WriteSymbolsJSON(dir, a.res); err != nil {
		return err
	}
	if err := output.WriteImportsJSON(dir, a.res); err != nil {
		return err
	}
	if err := output.WriteVariablesJSON(dir, a.vars); err != nil {
		return err
	}
	if err := output.WriteLibsJSON(dir, a.vars); err != nil {
		return err
	}
	return output.WriteDiagnosticsJSON(dir, &a.diags)
}
