package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dezso-dfield/ai-agent-representation/internal/config"
	"github.com/dezso-dfield/ai-agent-representation/internal/journal"
)

type eventsOptions struct {
	dbPath    string
	eventID   int64
	runID     string
	maxDepth  int
	jsonOut   bool
	noPayload bool
}

// defaultDBPath is read when neither --db nor db_path/AGENT_DB_PATH is set.
const defaultDBPath = "agent.db"

func eventsCmd(flags *globalFlags) *cobra.Command {
	opts := &eventsOptions{}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print the run journal as a tree",
		Long: `events renders the journal written when AGENT_DB_PATH is set. By
default it shows the latest invocation with all its runs and stages.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("db") {
				cfg, err := config.Resolve(flags.configPath, flags.envFile)
				if err != nil {
					return err
				}
				opts.dbPath = cfg.DBPath
				if opts.dbPath == "" {
					opts.dbPath = defaultDBPath
				}
			}
			return showEvents(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.dbPath, "db", "", "SQLite journal path (default from config, else agent.db)")
	cmd.Flags().Int64Var(&opts.eventID, "id", 0, "show subtree of a specific event ID")
	cmd.Flags().StringVar(&opts.runID, "run", "", "show a single run by run ID")
	cmd.Flags().IntVarP(&opts.maxDepth, "level", "L", 0, "limit display depth (0 = unlimited)")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "output JSON format")
	cmd.Flags().BoolVar(&opts.noPayload, "no-payload", false, "hide payload details")
	return cmd
}

func showEvents(w io.Writer, opts *eventsOptions) error {
	db, err := journal.OpenReadOnly(opts.dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	rootID, err := resolveRoot(db, opts)
	if err != nil {
		return err
	}
	root, err := journal.Subtree(db, rootID)
	if err != nil {
		return err
	}

	if opts.jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(toJSONEvent(root, 1, opts))
	}
	fmt.Fprintln(w, formatEvent(root, opts.noPayload))
	printChildren(w, root, "", 2, opts)
	return nil
}

func resolveRoot(db *sql.DB, opts *eventsOptions) (int64, error) {
	switch {
	case opts.eventID != 0:
		return opts.eventID, nil
	case opts.runID != "":
		return journal.FindRun(db, opts.runID)
	default:
		return journal.LatestProcessRoot(db)
	}
}

// printChildren draws ev's children at depth with box-drawing connectors.
// Levels past -L are omitted.
func printChildren(w io.Writer, ev *journal.Event, prefix string, depth int, opts *eventsOptions) {
	if opts.maxDepth > 0 && depth > opts.maxDepth {
		return
	}
	for i, child := range ev.Children {
		connector, indent := "├── ", "│   "
		if i == len(ev.Children)-1 {
			connector, indent = "└── ", "    "
		}
		fmt.Fprintln(w, prefix+connector+formatEvent(child, opts.noPayload))
		printChildren(w, child, prefix+indent, depth+1, opts)
	}
}

// formatEvent formats a single event line: [id] timestamp  event_type  key=value ...
func formatEvent(ev *journal.Event, noPayload bool) string {
	ts := time.Unix(ev.Timestamp, 0).UTC().Format("2006-01-02 15:04:05")
	line := fmt.Sprintf("[%d] %s  %s", ev.ID, ts, ev.EventType)
	if noPayload {
		return line
	}
	keys := make([]string, 0, len(ev.Fields))
	for k := range ev.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		line += fmt.Sprintf("  %s=%s", k, formatValue(ev.Fields[k]))
	}
	return line
}

// formatValue renders a payload value; long strings are cut to 80 runes and quoted.
func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		if runes := []rune(val); len(runes) > 80 {
			return strconv.Quote(string(runes[:80]) + "...")
		}
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

type jsonEvent struct {
	ID        int64          `json:"id"`
	Timestamp int64          `json:"timestamp"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Children  []jsonEvent    `json:"children,omitempty"`
}

func toJSONEvent(ev *journal.Event, depth int, opts *eventsOptions) jsonEvent {
	je := jsonEvent{ID: ev.ID, Timestamp: ev.Timestamp, EventType: ev.EventType}
	if !opts.noPayload {
		je.Payload = ev.Fields
	}
	if opts.maxDepth > 0 && depth >= opts.maxDepth {
		return je
	}
	for _, child := range ev.Children {
		je.Children = append(je.Children, toJSONEvent(child, depth+1, opts))
	}
	return je
}
