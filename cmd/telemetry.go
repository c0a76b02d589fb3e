package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/papapumpkin/gantry/internal/config"
	"github.com/papapumpkin/gantry/internal/telemetry"
)

var telemetryCmd = &cobra.Command{
	Use:   "telemetry",
	Short: "View JSONL telemetry events",
	Long: `Reads and formats the JSONL telemetry file written by --telemetry or the
telemetry_path setting.

With --follow (-f), watches the file for new events (like tail -f).`,
	Args: cobra.NoArgs,
	RunE: runTelemetry,
}

func init() {
	telemetryCmd.Flags().String("project", "", "only show events for this project")
	telemetryCmd.Flags().StringSlice("kind", nil, "only show events of these kinds")
	telemetryCmd.Flags().BoolP("follow", "f", false, "follow the file for new events")
	rootCmd.AddCommand(telemetryCmd)
}

func runTelemetry(cmd *cobra.Command, _ []string) error {
	project, _ := cmd.Flags().GetString("project")
	kinds, _ := cmd.Flags().GetStringSlice("kind")
	follow, _ := cmd.Flags().GetBool("follow")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	path := cfg.TelemetryPath
	if path == "" {
		return fmt.Errorf("telemetry: no file configured; pass --telemetry or set telemetry_path")
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("telemetry: open %s: %w", path, err)
	}
	defer f.Close()

	evts, err := telemetry.ReadEvents(f)
	if err != nil {
		return fmt.Errorf("telemetry: read %s: %w", path, err)
	}
	out := cmd.OutOrStdout()
	for _, evt := range telemetry.Filter(evts, project, kinds...) {
		printEvent(out, evt)
	}

	if !follow {
		return nil
	}
	return tailFollow(out, f, path, project, kinds)
}

// tailFollow watches the file for new data using fsnotify and prints new events.
func tailFollow(w io.Writer, f *os.File, path, project string, kinds []string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("telemetry: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("telemetry: watch %s: %w", path, err)
	}

	reader := bufio.NewReader(f)
	for event := range watcher.Events {
		if event.Op&fsnotify.Write == 0 {
			continue
		}
		// Read all new lines available.
		for {
			line, err := reader.ReadString('\n')
			line = strings.TrimSpace(line)
			if line != "" {
				var evt telemetry.Event
				if jerr := json.Unmarshal([]byte(line), &evt); jerr != nil {
					fmt.Fprintf(w, "??? %s\n", line)
				} else if len(telemetry.Filter([]telemetry.Event{evt}, project, kinds...)) == 1 {
					printEvent(w, evt)
				}
			}
			if err != nil {
				break
			}
		}
	}
	return nil
}

// printEvent prints a human-readable representation of evt.
func printEvent(w io.Writer, evt telemetry.Event) {
	ts := evt.Timestamp.Local().Format(time.DateTime)
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", ts))
	parts = append(parts, evt.Kind)

	if evt.ProjectID != "" {
		parts = append(parts, fmt.Sprintf("project=%s", evt.ProjectID))
	}
	if evt.TaskID != "" {
		parts = append(parts, fmt.Sprintf("task=%s", evt.TaskID))
	}
	if evt.Data != nil {
		if m, ok := evt.Data.(map[string]any); ok {
			parts = append(parts, formatDataMap(m))
		} else {
			data, _ := json.Marshal(evt.Data)
			parts = append(parts, string(data))
		}
	}

	fmt.Fprintln(w, strings.Join(parts, " "))
}

// formatDataMap formats a data map as key=value pairs sorted by key.
func formatDataMap(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%v", k, m[k])
	}
	return b.String()
}
