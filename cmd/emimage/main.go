// Command emimage inspects and converts electron microscopy images and
// prints STAR metadata tables.
//
//	emimage info particles.mrcs
//	emimage convert -type "<f4" movie.tif movie.mrc
//	emimage star -sort "rlnDefocusU DESC" run_data.star particles
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gopkg.in/yaml.v3"

	"github.com/TuSKan/emcore"
	"github.com/TuSKan/emcore/imagefile"
	"github.com/TuSKan/emcore/storage"
	"github.com/TuSKan/emcore/table"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "emimage: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: emimage [flags] info|convert|star ...\n\n")
	flag.PrintDefaults()
}

func mainImpl() error {
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	bucket := flag.String("bucket", "", "Blob bucket URL holding the files (e.g. file:///data, mem://)")
	flag.Usage = usage
	flag.Parse()

	ll := &slog.LevelVar{}
	if err := ll.UnmarshalText([]byte(*logLevel)); err != nil {
		return fmt.Errorf("invalid -log-level: %w", err)
	}
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	var st storage.Storage = storage.Default
	if *bucket != "" {
		b, err := storage.OpenBucket(ctx, *bucket)
		if err != nil {
			return err
		}
		defer b.Close()
		st = b
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		return errors.New("missing command")
	}
	c := &cli{st: st, log: logger, out: os.Stdout}
	switch args[0] {
	case "info":
		return c.info(ctx, args[1:])
	case "convert":
		return c.convert(ctx, args[1:])
	case "star":
		return c.star(ctx, args[1:])
	}
	return fmt.Errorf("unknown command %q", args[0])
}

type cli struct {
	st  storage.Storage
	log *slog.Logger
	out io.Writer
}

type imageInfo struct {
	Path      string   `yaml:"path"`
	Format    string   `yaml:"format"`
	Dim       [4]int   `yaml:"dim,flow"`
	Type      string   `yaml:"type"`
	ByteOrder string   `yaml:"byte_order"`
	Offset    int64    `yaml:"data_offset"`
	Stack     bool     `yaml:"stack"`
	Writable  []string `yaml:"writable_types,flow,omitempty"`
}

type tableInfo struct {
	Name    string   `yaml:"name"`
	Rows    int      `yaml:"rows"`
	Columns []string `yaml:"columns"`
}

func (c *cli) info(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	var docs []any
	for _, path := range fs.Args() {
		doc, err := c.describe(ctx, path)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return errors.New("info: no file given")
	}
	enc := yaml.NewEncoder(c.out)
	enc.SetIndent(2)
	for _, d := range docs {
		if err := enc.Encode(d); err != nil {
			return err
		}
	}
	return enc.Close()
}

func (c *cli) describe(ctx context.Context, path string) (any, error) {
	if table.HasImpl(storage.Ext(path)) {
		f, err := table.Open(ctx, path, storage.ReadOnly, table.WithStorage(c.st), table.WithLogger(c.log))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		var out []tableInfo
		for _, name := range f.Names() {
			var t table.Table
			if err := f.Read(name, &t); err != nil {
				return nil, err
			}
			ti := tableInfo{Name: name, Rows: t.Len()}
			for _, col := range t.Columns() {
				ti.Columns = append(ti.Columns, fmt.Sprintf("%s (%s)", col.Name, col.Type))
			}
			out = append(out, ti)
		}
		return map[string]any{"path": path, "tables": out}, nil
	}

	f, err := imagefile.Open(ctx, path, storage.ReadOnly, imagefile.WithStorage(c.st), imagefile.WithLogger(c.log))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h := f.Header()
	d := f.Dim()
	info := imageInfo{
		Path:      path,
		Format:    f.Format(),
		Dim:       [4]int{d.X, d.Y, d.Z, d.N},
		Type:      f.Type().Name(),
		ByteOrder: h.Order.String(),
		Offset:    h.Offset,
		Stack:     h.Stack,
	}
	if fi, ok := imagefile.Lookup(f.Format()); ok && !fi.ReadOnly {
		for _, t := range fi.Types {
			info.Writable = append(info.Writable, t.Name())
		}
	}
	return info, nil
}

func (c *cli) convert(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	dtype := fs.String("type", "", `Output element type, a name or numpy dtype such as "<f4" (default: input type)`)
	stack := fs.Bool("stack", false, "Create the output as a stack")
	format := fs.String("format", "", "Output format name (default: from the extension)")
	batchSize := fs.Int("batch", 64, "Number of items copied at once")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("convert: need an input and an output path")
	}
	in, err := imagefile.Open(ctx, fs.Arg(0), storage.ReadOnly, imagefile.WithStorage(c.st), imagefile.WithLogger(c.log))
	if err != nil {
		return err
	}
	defer in.Close()

	t := in.Type()
	order := emcore.NativeOrder()
	if *dtype != "" {
		if t, order, err = emcore.ParseDType(*dtype); err != nil {
			return err
		}
	}
	out, err := imagefile.Open(ctx, fs.Arg(1), storage.Truncate,
		imagefile.WithStorage(c.st), imagefile.WithLogger(c.log), imagefile.WithFormat(*format),
		imagefile.WithStack(*stack), imagefile.WithByteOrder(order))
	if err != nil {
		return err
	}
	if err := out.CreateEmpty(in.Dim(), t); err != nil {
		out.Close()
		return err
	}
	b := imagefile.NewBatcher(in)
	var batch emcore.Array
	for {
		first := b.Next
		err := b.NextBatch(ctx, *batchSize, &batch)
		if err == io.EOF {
			break
		}
		if err == nil {
			err = out.Write(first, &batch)
		}
		if err != nil {
			out.Close()
			return err
		}
	}
	c.log.Info("converted", "from", fs.Arg(0), "to", fs.Arg(1), "dim", in.Dim(), "type", t)
	return out.Close()
}

func (c *cli) star(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("star", flag.ContinueOnError)
	sortBy := fs.String("sort", "", `Comma separated sort keys, each "column [ASC|DESC]"`)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		return errors.New("star: need a path and an optional block name")
	}
	f, err := table.Open(ctx, fs.Arg(0), storage.ReadOnly, table.WithStorage(c.st), table.WithLogger(c.log))
	if err != nil {
		return err
	}
	defer f.Close()
	names := f.Names()
	if fs.NArg() == 2 {
		names = fs.Args()[1:]
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	for _, name := range names {
		var t table.Table
		if err := f.Read(name, &t); err != nil {
			return err
		}
		if *sortBy != "" {
			if err := t.Sort(strings.Split(*sortBy, ",")...); err != nil {
				return err
			}
		}
		fmt.Fprintf(tw, "data_%s\n", name)
		for i, col := range t.Columns() {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, col.Name)
		}
		fmt.Fprintln(tw)
		for _, r := range t.All() {
			fmt.Fprintln(tw, r.String())
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
