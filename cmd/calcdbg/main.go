// cmd/calcdbg/main.go
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/calcfold/calcscript/debug"
)

const (
	appName     = "calcdbg"
	historyFile = ".calcdbg_history"
	prompt      = "dbg> "
	banner      = "calcdbg — stepwise script debugger. Ctrl+D or 'quit' to exit. Type 'help' for commands."
	helpText    = `
Commands:
  step [n]            Execute/replay n forward steps (default 1)
  back [n]            Move the cursor n snapshots back (default 1)
  cp                  Run to the next checkpoint
  occ <var> <index>   Run checkpoint to checkpoint until the linked
                      value for <var> equals <index>
  vars                Show the current snapshot's variables
  stack               Show the current snapshot's call stack
  store               Show the external variable store
  list                Print the source with the current range marked
  reset               Re-run the script from the top
  help                Show this help
  quit                Exit
`
)

// ---- main ------------------------------------------------------------------

func main() {
	var varsPath string
	var verbose bool

	root := &cobra.Command{
		Use:   "calcdbg <script>",
		Short: "Interactive stepwise debugger for evaluation scripts",
		Long: "calcdbg runs a CalcScript evaluation script one instruction at a time,\n" +
			"pausing at '// @checkpoint' sentinel lines and mirroring linked\n" +
			"variables into an external variable store.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(args[0], varsPath, verbose)
		},
	}
	root.Flags().StringVar(&varsPath, "vars", "", "YAML file of external store variables (name: number)")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(scriptPath, varsPath string, verbose bool) error {
	src, err := os.ReadFile(scriptPath)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", scriptPath, err)
	}

	vars := map[string]float64{}
	if varsPath != "" {
		data, err := os.ReadFile(varsPath)
		if err != nil {
			return fmt.Errorf("cannot read %s: %w", varsPath, err)
		}
		if err := yaml.Unmarshal(data, &vars); err != nil {
			return fmt.Errorf("cannot parse %s: %w", varsPath, err)
		}
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	store := debug.NewMemoryStore(vars)
	session := debug.NewSession(store, debug.WithLogger(logger))
	if err := session.Refresh(string(src)); err != nil {
		return err
	}

	return repl(session, store)
}

// ---- REPL ------------------------------------------------------------------

func repl(session *debug.Session, store *debug.MemoryStore) error {
	fmt.Println(banner)
	printPosition(session)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	for {
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			fmt.Println()
			break
		}
		if err != nil {
			// Ctrl+C aborts the current input; let the user start again.
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ln.AppendHistory(line)
		if done := handleCommand(session, store, line); done {
			break
		}
	}

	if f, err := os.Create(histPath); err == nil {
		_, _ = ln.WriteHistory(f)
		_ = f.Close()
	}
	return nil
}

func handleCommand(session *debug.Session, store *debug.MemoryStore, line string) (exit bool) {
	fields := strings.Fields(line)
	cmd := strings.ToLower(fields[0])

	switch cmd {
	case "help":
		fmt.Print(helpText)

	case "quit", "exit":
		return true

	case "step", "s":
		for i, n := 0, max(1, argInt(fields, 1)); i < n; i++ {
			if err := session.StepForward(); err != nil {
				fmt.Println(red(err.Error()))
				break
			}
			if session.IsComplete() && session.Cursor() == len(session.History())-1 {
				break
			}
		}
		printPosition(session)

	case "back", "b":
		for i, n := 0, max(1, argInt(fields, 1)); i < n; i++ {
			if err := session.StepBackward(); err != nil {
				fmt.Println(red(err.Error()))
				break
			}
		}
		printPosition(session)

	case "cp", "checkpoint":
		if err := session.StepToCheckpoint(); err != nil {
			fmt.Println(red(err.Error()))
		}
		printPosition(session)

	case "occ", "occurrence":
		if len(fields) < 3 {
			fmt.Println("usage: occ <var> <index>")
			return false
		}
		n, err := strconv.Atoi(fields[2])
		if err != nil {
			fmt.Println("usage: occ <var> <index>")
			return false
		}
		if err := session.StepToOccurrence(fields[1], n); err != nil {
			fmt.Println(red(err.Error()))
		}
		printPosition(session)

	case "vars", "v":
		snap, ok := session.Current()
		if !ok {
			fmt.Println("no snapshot")
			return false
		}
		printValueMap(snap.Variables)
		if snap.AtCheckpoint() && len(snap.CheckpointVariables) > 0 {
			fmt.Println(green("checkpoint:"))
			printValueMap(snap.CheckpointVariables)
		}

	case "stack":
		snap, ok := session.Current()
		if !ok {
			fmt.Println("no snapshot")
			return false
		}
		for _, fr := range snap.StackTrace {
			fmt.Println("  " + fr)
		}

	case "store":
		for _, name := range store.Names() {
			fmt.Printf("  %s = %v\n", name, store.GetAllVariables()[name])
		}

	case "list", "l":
		printListing(session)

	case "reset":
		if err := session.Refresh(session.Source()); err != nil {
			fmt.Println(red(err.Error()))
		}
		printPosition(session)

	default:
		fmt.Println("unknown command. Type 'help' for help.")
	}
	return false
}

// ---- display ---------------------------------------------------------------

func printPosition(session *debug.Session) {
	snap, ok := session.Current()
	if !ok {
		fmt.Println("session not started")
		return
	}
	state := session.State().String()
	if snap.AtCheckpoint() {
		state += ", at checkpoint"
	}
	fmt.Printf("[%d/%d] %s\n", session.Cursor(), len(session.History())-1, state)
	src := session.Source()
	if snap.HighlightEnd > snap.HighlightStart && snap.HighlightEnd <= len(src) {
		frag := src[snap.HighlightStart:snap.HighlightEnd]
		if i := strings.IndexByte(frag, '\n'); i >= 0 {
			frag = frag[:i] + " ..."
		}
		fmt.Println("  " + green(frag))
	}
	if session.LastError() != nil && session.State() == debug.StateErrored {
		fmt.Println(red(session.LastError().Error()))
	}
}

// printListing prints the full source with the current snapshot's range
// wrapped in ANSI reverse video.
func printListing(session *debug.Session) {
	snap, ok := session.Current()
	src := session.Source()
	if !ok || snap.HighlightEnd <= snap.HighlightStart || snap.HighlightEnd > len(src) {
		fmt.Println(src)
		return
	}
	marked := src[:snap.HighlightStart] +
		"\x1b[7m" + src[snap.HighlightStart:snap.HighlightEnd] + "\x1b[0m" +
		src[snap.HighlightEnd:]
	fmt.Println(marked)
}

func printValueMap(m map[string]any) {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Printf("  %s = %v\n", k, m[k])
	}
}

func argInt(fields []string, i int) int {
	if i >= len(fields) {
		return 1
	}
	n, err := strconv.Atoi(fields[i])
	if err != nil {
		return 1
	}
	return n
}

func red(s string) string   { return "\x1b[31m" + s + "\x1b[0m" }
func green(s string) string { return "\x1b[32m" + s + "\x1b[0m" }
