package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"golang.org/x/term"
	"golang.org/x/text/width"

	"github.com/sitano/redolog-forensics/internal/config"
	"github.com/sitano/redolog-forensics/internal/diag"
	"github.com/sitano/redolog-forensics/internal/fileio"
	"github.com/sitano/redolog-forensics/internal/interp"
	"github.com/sitano/redolog-forensics/internal/pagedump"
	"github.com/sitano/redolog-forensics/internal/redolog/container"
	"github.com/sitano/redolog-forensics/internal/redolog/mtr"
	"github.com/sitano/redolog-forensics/internal/redolog/page"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "read-redo":
		err = cmdReadRedo(os.Args[2:])
	case "write-redo":
		err = cmdWriteRedo(os.Args[2:])
	case "read-tablespace":
		err = cmdReadTablespace(os.Args[2:])
	case "read-page":
		err = cmdReadPage(os.Args[2:])
	case "write-page":
		err = cmdWritePage(os.Args[2:])
	case "-h", "-help", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "redolog-tool: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: redolog-tool <subcommand> [args]

subcommands (flags go before <file>):
  read-redo [-export json|csv] [-output <file>] [-v] <file>
  write-redo -lsn <n> -size <n> [-creator <str>] <file>
  read-tablespace [-flags <hex>] <file>
  read-page -offset <n> [-flags <hex>] <file>
  write-page -offset <n> -space <n> -page <n> -lsn <n> [-flags <hex>] <file>
`)
}

func loadConfig() config.Config {
	home, err := os.UserHomeDir()
	if err != nil {
		return config.Default()
	}
	cfg, err := config.Load(filepath.Join(home, ".redolog-tool.yaml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "redolog-tool: config: %v\n", err)
		return config.Default()
	}
	return cfg
}

// ---- read-redo ----

func cmdReadRedo(args []string) error {
	fs := flag.NewFlagSet("read-redo", flag.ExitOnError)
	exportFormat := fs.String("export", "", "export format: json, csv (skips the interactive browser)")
	outputFile := fs.String("output", "", "export output file (default: stdout)")
	verbose := fs.Bool("v", false, "emit diag.Observer warnings to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("read-redo: missing <file>")
	}
	path := fs.Arg(0)
	cfg := loadConfig()

	var obs diag.Observer
	if *verbose || cfg.Verbose {
		obs = diag.NewStdObserver(os.Stderr, "redolog-tool: ")
	}

	region, closeFn, err := fileio.OpenRedoLog(path)
	if err != nil {
		return err
	}
	defer closeFn()

	siblings := fileio.NewSiblingProber(filepath.Dir(path))
	redo, err := container.Open(region, siblings, obs)
	if err != nil {
		return err
	}

	chains, walkErr := walkAll(redo, obs)

	format := *exportFormat
	if format == "" {
		format = cfg.ExportFormat
	}
	if format != "" {
		return exportChains(chains, format, *outputFile)
	}
	if walkErr != nil && walkErr != mtr.ErrEndOfStream {
		fmt.Fprintf(os.Stderr, "redolog-tool: stream ended early: %v\n", walkErr)
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		for _, c := range chains {
			fmt.Println(c.Chain.String())
			fmt.Println(interp.DescribeChain(c.Chain))
		}
		return nil
	}

	return runBrowser(redo, chains)
}

// chainAt pairs a decoded chain with the LSN it started at, for display.
type chainAt struct {
	LSN   uint64
	Chain *mtr.Chain
}

func walkAll(redo *container.Redo, obs diag.Observer) ([]chainAt, error) {
	cur := redo.Cursor(obs)
	var out []chainAt
	for {
		lsn := cur.Pos()
		chain, err := cur.Next()
		if err != nil {
			return out, err
		}
		out = append(out, chainAt{LSN: lsn, Chain: chain})
	}
}

func exportChains(chains []chainAt, format, outputFile string) error {
	w := io.Writer(os.Stdout)
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("redolog-tool: create %s: %w", outputFile, err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "json":
		return exportJSON(w, chains)
	case "csv":
		return exportCSV(w, chains)
	default:
		return fmt.Errorf("redolog-tool: unknown export format %q", format)
	}
}

type jsonRecord struct {
	LSN      uint64 `json:"lsn"`
	SpaceID  uint32 `json:"space_id"`
	PageNo   uint32 `json:"page_no"`
	Op       string `json:"op"`
	IsFileOp bool   `json:"is_file_op"`
	Describe string `json:"describe"`
}

func exportJSON(w io.Writer, chains []chainAt) error {
	var out []jsonRecord
	for _, c := range chains {
		for _, rec := range c.Chain.Records {
			out = append(out, jsonRecord{
				LSN:      c.LSN,
				SpaceID:  rec.SpaceID,
				PageNo:   rec.PageNo,
				Op:       rec.Op.String(),
				IsFileOp: rec.IsFileOp,
				Describe: interp.Describe(rec),
			})
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func exportCSV(w io.Writer, chains []chainAt) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()
	if err := cw.Write([]string{"lsn", "space_id", "page_no", "op", "is_file_op", "describe"}); err != nil {
		return err
	}
	for _, c := range chains {
		for _, rec := range c.Chain.Records {
			row := []string{
				strconv.FormatUint(c.LSN, 10),
				strconv.FormatUint(uint64(rec.SpaceID), 10),
				strconv.FormatUint(uint64(rec.PageNo), 10),
				rec.Op.String(),
				strconv.FormatBool(rec.IsFileOp),
				interp.Describe(rec),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	return nil
}

// ---- interactive browser ----

func runBrowser(redo *container.Redo, chains []chainAt) error {
	app := tview.NewApplication()

	list := tview.NewList().ShowSecondaryText(false)
	details := tview.NewTextView().SetDynamicColors(false).SetWrap(true)
	details.SetBorder(true).SetTitle(" records ")
	list.SetBorder(true).SetTitle(" chains ")

	for i, c := range chains {
		label := fmt.Sprintf("lsn=%-10d records=%d", c.LSN, len(c.Chain.Records))
		idx := i
		list.AddItem(label, "", 0, func() {
			details.SetText(interp.DescribeChain(chains[idx].Chain))
		})
	}

	header := tview.NewTextView().SetDynamicColors(false)
	header.SetText(describeHeader(redo))
	header.SetBorder(true).SetTitle(" redo log ")

	if len(chains) > 0 {
		details.SetText(interp.DescribeChain(chains[0].Chain))
	}

	body := tview.NewFlex().
		AddItem(list, 0, 1, true).
		AddItem(details, 0, 2, false)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(header, 3, 0, false).
		AddItem(body, 0, 1, true)

	list.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyEscape || ev.Rune() == 'q' {
			app.Stop()
			return nil
		}
		return ev
	})

	return app.SetRoot(root, true).SetFocus(list).Run()
}

func describeHeader(redo *container.Redo) string {
	return fmt.Sprintf(
		"format=%#x first_lsn=%d creator=%s live_checkpoint_lsn=%d restored=%v",
		redo.Header.Format, redo.Header.FirstLSN, padCreator(redo.Header.Creator, 24),
		redo.Live.CheckpointLSN, redo.Header.StartAfterRestore,
	)
}

// padCreator right-pads s to at least w display columns, accounting for
// wide (e.g. CJK) runes via golang.org/x/text/width so the TUI header stays
// aligned even when the creator string embeds non-ASCII bytes.
func padCreator(s string, w int) string {
	cols := 0
	for _, r := range s {
		p := width.LookupRune(r)
		switch p.Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			cols += 2
		default:
			cols++
		}
	}
	for cols < w {
		s += " "
		cols++
	}
	return s
}

// ---- write-redo ----

func cmdWriteRedo(args []string) error {
	fs := flag.NewFlagSet("write-redo", flag.ExitOnError)
	lsn := fs.Uint64("lsn", 0, "target LSN for the synthetic FILE_CHECKPOINT chain")
	size := fs.Int64("size", 0, "total file size in bytes")
	creator := fs.String("creator", "redolog-tool", "creator string stored in the header")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("write-redo: missing <file>")
	}
	if *lsn == 0 || *size == 0 {
		return fmt.Errorf("write-redo: -lsn and -size are required")
	}

	region, closeFn, err := fileio.CreateRedoLog(fs.Arg(0), *size)
	if err != nil {
		return err
	}
	if err := container.CreateNew(region, *creator, *lsn); err != nil {
		closeFn()
		return err
	}
	return closeFn()
}

// ---- read-tablespace ----

func cmdReadTablespace(args []string) error {
	fs := flag.NewFlagSet("read-tablespace", flag.ExitOnError)
	flagsWord := fs.Uint("flags", 0x15, "tablespace flags word")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("read-tablespace: missing <file>")
	}

	region, err := fileio.ReadFileByteRegion(fs.Arg(0))
	if err != nil {
		return err
	}
	buf := region.Bytes()

	size := page.LogicalSize(uint32(*flagsWord))
	if size == 0 {
		return fmt.Errorf("read-tablespace: flags %#x do not determine a page size", *flagsWord)
	}

	var ts page.Tablespace
	for off := 0; off+size <= len(buf); off += size {
		p, err := page.Decode(uint32(*flagsWord), buf[off:off+size])
		if err != nil {
			fmt.Printf("page@%d: decode error: %v\n", off, err)
			continue
		}
		status := "ok"
		if err := p.ValidateIntegrity(&ts); err != nil {
			status = err.Error()
		}
		fmt.Printf("page@%d: %s checksum=%s\n", off, pagedump.Describe(p), status)
	}
	return nil
}

// ---- read-page ----

func cmdReadPage(args []string) error {
	fs := flag.NewFlagSet("read-page", flag.ExitOnError)
	offset := fs.Int64("offset", -1, "byte offset of the page within the file")
	flagsWord := fs.Uint("flags", 0x15, "tablespace flags word")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 || *offset < 0 {
		return fmt.Errorf("read-page: <file> and -offset are required")
	}

	region, err := fileio.ReadFileByteRegion(fs.Arg(0))
	if err != nil {
		return err
	}
	buf := region.Bytes()

	size := page.LogicalSize(uint32(*flagsWord))
	if size == 0 {
		return fmt.Errorf("read-page: flags %#x do not determine a page size", *flagsWord)
	}
	if int(*offset)+size > len(buf) {
		return fmt.Errorf("read-page: offset %d + page size %d exceeds file length %d", *offset, size, len(buf))
	}

	p, err := page.Decode(uint32(*flagsWord), buf[*offset:int(*offset)+size])
	if err != nil {
		return err
	}
	fmt.Println(pagedump.Describe(p))
	if err := p.Corrupted(); err != nil {
		fmt.Println(err)
	}
	return nil
}

// ---- write-page ----

func cmdWritePage(args []string) error {
	fs := flag.NewFlagSet("write-page", flag.ExitOnError)
	offset := fs.Int64("offset", -1, "byte offset to write the page at")
	spaceID := fs.Uint("space", 0, "tablespace id")
	pageNo := fs.Uint("page", 0, "page number")
	lsn := fs.Uint64("lsn", 0, "page LSN")
	flagsWord := fs.Uint("flags", 0x15, "tablespace flags word")
	pageType := fs.Uint("type", uint(page.TypeUndoLog), "page type")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 || *offset < 0 {
		return fmt.Errorf("write-page: <file> and -offset are required")
	}

	size := page.LogicalSize(uint32(*flagsWord))
	if size == 0 {
		return fmt.Errorf("write-page: flags %#x do not determine a page size", *flagsWord)
	}

	path := fs.Arg(0)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("write-page: open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, size)
	if err := pagedump.BuildPage(buf, uint32(*spaceID), uint32(*pageNo), uint16(*pageType), *lsn, uint32(*flagsWord)); err != nil {
		return err
	}
	if _, err := f.WriteAt(buf, *offset); err != nil {
		return fmt.Errorf("write-page: write %s at %d: %w", path, *offset, err)
	}
	return nil
}
