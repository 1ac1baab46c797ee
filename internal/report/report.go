// Package report renders finished sequence outcomes: a JSON document for
// archiving and machine consumption, and a table for operators watching the
// rig.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"testrig/internal/result"
	"testrig/pkg/logging"
)

const timestampLayout = "2006-01-02T15:04:05.000"

// safeValue returns v if it is JSON-serializable, otherwise a rendered
// fallback. Return values of steps are arbitrary integrator types and must
// never break report generation.
func safeValue(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	if _, err := json.Marshal(v); err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return v
}

// EntryDict converts one captured log entry into its JSON form.
func EntryDict(e logging.LogEntry) map[string]interface{} {
	var errMsg interface{}
	if e.Err != nil {
		errMsg = e.Err.Error()
	}
	attrs := make(map[string]interface{}, len(e.Attributes))
	for _, a := range e.Attributes {
		attrs[a.Key] = safeValue(a.Value.Any())
	}
	return map[string]interface{}{
		"timestamp":     float64(e.Timestamp.UnixNano()) / float64(time.Second),
		"timestamp_iso": e.Timestamp.Format(timestampLayout),
		"level":         int(e.Level),
		"level_name":    e.Level.String(),
		"subsystem":     e.Subsystem,
		"message":       e.Message,
		"error":         errMsg,
		"attributes":    attrs,
	}
}

// StepDict converts one step of the result tree into its JSON form,
// children included.
func StepDict(s result.StepResultInfo) map[string]interface{} {
	var errMsg interface{}
	if s.Err != nil {
		errMsg = s.Err.Error()
	}
	log := make([]map[string]interface{}, 0, len(s.Log))
	for _, e := range s.Log {
		log = append(log, EntryDict(e))
	}
	children := make([]map[string]interface{}, 0, len(s.Children))
	for _, c := range s.Children {
		children = append(children, StepDict(c))
	}
	return map[string]interface{}{
		"name":         s.Name,
		"ancestry":     s.Ancestry,
		"call_id":      s.CallID,
		"test_result":  s.Result.String(),
		"start_time":   s.Start.Format(timestampLayout),
		"end_time":     s.End.Format(timestampLayout),
		"return_value": safeValue(s.Returned),
		"error":        errMsg,
		"log_messages": log,
		"children":     children,
	}
}

// InfoDict converts a whole sequence outcome into its JSON form.
func InfoDict(info result.Info) map[string]interface{} {
	steps := make([]map[string]interface{}, 0, len(info.Steps))
	for _, s := range info.Steps {
		steps = append(steps, StepDict(s))
	}
	return map[string]interface{}{
		"test_result": info.Result.String(),
		"steps":       steps,
	}
}

// WriteJSON writes the outcome as an indented JSON document.
func WriteJSON(w io.Writer, info result.Info) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(InfoDict(info))
}

// RenderTable renders the step tree as a table, one row per step with
// nesting shown by indentation.
func RenderTable(info result.Info) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Step", "Result", "Duration"})
	for _, s := range info.Steps {
		appendStepRows(t, s, 0)
	}
	t.AppendFooter(table.Row{"Sequence", info.Result.String(), ""})
	return t.Render()
}

func appendStepRows(t table.Writer, s result.StepResultInfo, depth int) {
	indent := strings.Repeat("  ", depth)
	t.AppendRow(table.Row{
		indent + s.Name,
		s.Result.String(),
		s.Duration().Round(time.Millisecond).String(),
	})
	for _, c := range s.Children {
		appendStepRows(t, c, depth+1)
	}
}
