// Command polyfsck validates, and optionally extracts, a polyfs image.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	polyfsck "github.com/polyfs/polyfsck"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// verboseCount implements flag.Value so each -v occurrence raises the
// trace level (0: silent, 1: per-inode lines, 2+: per-block decompression
// and hole traces).
type verboseCount int

func (v *verboseCount) String() string { return fmt.Sprintf("%d", int(*v)) }

func (v *verboseCount) IsBoolFlag() bool { return true }

func (v *verboseCount) Set(string) error {
	*v++
	return nil
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, "usage: %s [-hv] [-x dir] file\n", progname())
	old := fs.Output()
	fs.SetOutput(w)
	fs.PrintDefaults()
	fs.SetOutput(old)
}

func progname() string {
	return "polyfsck"
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(progname(), flag.ContinueOnError)
	fs.SetOutput(stderr)

	var verbose verboseCount
	fs.Var(&verbose, "v", "increase verbosity (repeatable: -v per-inode lines, -v -v also per-block traces)")
	extract := fs.String("x", "", "extract the image into `dir`")
	help := fs.Bool("h", false, "show this help text")
	fs.Usage = func() { usage(stderr, fs) }

	if err := fs.Parse(args); err != nil {
		return int(polyfsck.ExitUsage)
	}
	if *help {
		usage(stdout, fs)
		return int(polyfsck.ExitOK)
	}

	if fs.NArg() != 1 {
		usage(stderr, fs)
		return int(polyfsck.ExitUsage)
	}
	file := fs.Arg(0)

	var opts []polyfsck.Option
	if verbose > 0 {
		opts = append(opts, polyfsck.WithVerbosity(int(verbose)))
		opts = append(opts, polyfsck.WithOutput(stdout))
	}
	if *extract != "" {
		opts = append(opts, polyfsck.WithExtractDir(*extract))
	}

	report, err := polyfsck.Check(file, opts...)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %s\n", progname(), err)
		return int(polyfsck.CodeFor(err))
	}

	if report.Warning != nil {
		fmt.Fprintf(stderr, "%s: %s\n", progname(), report.Warning)
	}
	if verbose > 0 {
		fmt.Fprintf(stdout, "%s: OK\n", file)
	}
	return int(polyfsck.ExitOK)
}
