package main

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"

	"blitzlens/internal/decompile"
	"blitzlens/internal/output"
)

func cmdDecompile(args []string) error {
	var cf commonFlags
	fs := pflag.NewFlagSet("decompile", pflag.ExitOnError)
	cf.register(fs)
	intrPath := fs.String("intrinsics", "", "YAML or JSON intrinsic table merged over the defaults")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cf.validate(true); err != nil {
		return err
	}
	log, sync := newLogger(cf.verbose)
	defer sync()

	intr, err := loadIntrinsics(*intrPath)
	if err != nil {
		return err
	}
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
	dec, paths, err := writeDecompiled(cf.out, a, intr, log)
	if err != nil {
		return err
	}
	if err := output.WriteDiagnosticsJSON(cf.out, &a.diags); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "decompile: %d functions in %d files, %d diagnostics -> %s\n",
		len(dec.Order), len(paths), a.diags.Len(), cf.out)
	return cf.options().Check(&a.diags)
}

func loadIntrinsics(path string) (decompile.Intrinsics, error) {
	if path == "" {
		return decompile.DefaultIntrinsics(), nil
	}
	intr, err := decompile.LoadIntrinsics(path)
	if err != nil {
		return nil, fmt.Errorf("intrinsics: %w", err)
	}
	return intr, nil
}

// writeDecompiled decompiles a and writes decompiled/*.bb plus
// functions.jsonl.
func writeDecompiled(dir string, a *analysis, intr decompile.Intrinsics, log logr.Logger) (*decompile.Result, []string, error) {
	dec := a.decompile(intr, log)
	paths, err := output.WriteDecompiled(dir, dec)
	if err != nil {
		return nil, nil, err
	}
	edges := a.callEdges()
	if err := output.WriteFunctionsJSONL(dir, a.funcRecords(a.reachable(edges), dec)); err != nil {
		return nil, nil, err
	}
	return dec, paths, nil
}
