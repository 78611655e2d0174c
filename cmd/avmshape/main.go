// avmshape boots an engine and prints the layout of its classes.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/avmcore/config"
	"github.com/chazu/avmcore/vm"
	"github.com/chazu/avmcore/vm/shape"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("avmshape", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configDir := fs.String("config", ".", "Directory to search upward for avmcore.toml")
	format := fs.String("format", "text", "Output format: text or cbor")
	className := fs.String("class", "", "Only describe this class")
	output := fs.String("o", "", "Write output to file instead of stdout")
	verbosity := fs.Int("v", -1, "Log verbosity (overrides avmcore.toml)")
	accounting := fs.Bool("memory", false, "Enable per-class memory accounting")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: avmshape [options]\n\n")
		fmt.Fprintf(stderr, "Boots an engine with the builtin classes and prints their shapes.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  avmshape                      # Describe every builtin class\n")
		fmt.Fprintf(stderr, "  avmshape -class Function      # Describe one class\n")
		fmt.Fprintf(stderr, "  avmshape -format cbor -o s.cbor  # Canonical CBOR snapshot\n")
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.FindAndLoad(*configDir)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if *verbosity >= 0 {
		cfg.Log.Verbosity = *verbosity
	}
	if *accounting {
		cfg.Memory.Accounting = true
	}
	commonlog.Configure(cfg.Log.Verbosity, cfg.LogFile())

	engine := vm.NewEngine(cfg.Options(), vm.Collaborators{})
	defer func() {
		if err := engine.Shutdown(); err != nil {
			fmt.Fprintf(stderr, "Shutdown: %v\n", err)
		}
	}()

	snapshot := shape.DescribeEngine(engine)
	if *className != "" {
		c := snapshot.Class(*className)
		if c == nil {
			fmt.Fprintf(stderr, "Unknown class: %s\n", *className)
			return 1
		}
		snapshot.Classes = []shape.ClassShape{*c}
	}

	var data []byte
	switch *format {
	case "text":
		var buf bytes.Buffer
		writeText(&buf, snapshot)
		data = buf.Bytes()
	case "cbor":
		data, err = shape.MarshalEngine(snapshot)
		if err != nil {
			fmt.Fprintf(stderr, "Error encoding shapes: %v\n", err)
			return 1
		}
	default:
		fmt.Fprintf(stderr, "Unknown format: %s\n", *format)
		return 2
	}

	if err := writeOutput(*output, stdout, data); err != nil {
		fmt.Fprintf(stderr, "Error writing shapes: %v\n", err)
		return 1
	}
	return 0
}

// writeOutput writes data to path, or to stdout when path is empty. The
// file is closed before returning so a failed flush is reported.
func writeOutput(path string, stdout io.Writer, data []byte) error {
	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}

func writeText(w io.Writer, s *shape.EngineShape) {
	for i, c := range s.Classes {
		if i > 0 {
			fmt.Fprintln(w)
		}
		header := c.Name
		if c.Super != "" {
			header += " extends " + c.Super
		}
		fmt.Fprintf(w, "%s [%s]\n", header, c.Flags)
		if len(c.Interfaces) > 0 {
			fmt.Fprintf(w, "  implements %s\n", strings.Join(c.Interfaces, ", "))
		}
		if len(c.TypeParams) > 0 {
			fmt.Fprintf(w, "  type params <%s>\n", strings.Join(c.TypeParams, ","))
		}
		for _, sl := range c.Slots {
			kind := "var"
			if sl.Const {
				kind = "const"
			}
			fmt.Fprintf(w, "  slot %2d  %-5s %s: %s%s\n", sl.Index, kind, sl.Name, sl.Type, inherited(sl.Owner))
		}
		for _, m := range c.Methods {
			sig := ""
			if f := m.Callable; f != nil {
				sig = fmt.Sprintf(" (%s/%d) -> %s", f.Kind, f.Arity, f.ReturnType)
			}
			final := ""
			if m.Final {
				final = " final"
			}
			fmt.Fprintf(w, "  disp %2d  %-8s %s%s%s%s\n", m.DispID, m.Kind, m.Name, sig, final, inherited(m.Owner))
		}
		if len(c.Statics) > 0 {
			fmt.Fprintf(w, "  statics  %s\n", strings.Join(c.Statics, ", "))
		}
		if c.LiveObjects > 0 {
			fmt.Fprintf(w, "  live     %d objects, %d bytes\n", c.LiveObjects, c.LiveBytes)
		}
	}
}

func inherited(owner string) string {
	if owner == "" {
		return ""
	}
	return "  (from " + owner + ")"
}
