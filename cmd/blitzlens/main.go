package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "scan":
		err = cmdScan(os.Args[2:])
	case "dump":
		err = cmdDump(os.Args[2:])
	case "decompile":
		err = cmdDecompile(os.Args[2:])
	case "graph":
		err = cmdGraph(os.Args[2:])
	case "batch":
		err = cmdBatch(os.Args[2:])
	case "help", "-h", "--help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `blitzlens: BlitzBasic executable analyzer

Usage:
  blitzlens scan      --exe <path> | --raw <path>          Print code resource summary
  blitzlens dump      --exe <path> --out <dir> [--annotate] Disassemble and dump tables
  blitzlens decompile --exe <path> --out <dir>              Decompile to per-file .bb sources
  blitzlens graph     --exe <path> --out <dir> [--cfg]      Call graph, reachability, signal graph, CFGs
  blitzlens batch     --dir <dir> --out <dir> [--jobs <n>]  Run the full pipeline on every .exe

Flags:
  --exe <path>          BlitzBasic executable (reads resource #1111 of type #10)
  --raw <path>          Raw BBC resource dump instead of an executable
  --out <dir>           Output directory
  --intrinsics <file>   YAML or JSON intrinsic table merged over the defaults
  --strict              Fail when any diagnostic was recorded
  --max-steps <n>       Decoder instruction cap
  -v, --verbose         Raise log verbosity (repeatable)
`)
}
