// Package actions executes the record-creating actions a completed flow
// requests: HR cases, service requests, incidents, manager tasks, and
// security requests.
//
// Record creation degrades to simulation rather than failing: when no sink
// is configured or the sink errors, a simulated record with a realistic
// number is returned and the action still succeeds. An action item only
// fails when its handler panics past that fallback, and a failing item
// never affects its siblings.
package actions

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ecsf-gov/sage/internal/models"
)

// RecordResult is what a sink returns for one created record.
type RecordResult struct {
	Number    string
	SysID     string
	Simulated bool
}

// RecordSink creates records in a backend system. Implementations may fail;
// the executor absorbs failures by simulating the record instead.
type RecordSink interface {
	Create(ctx context.Context, table models.RecordTable, fields map[string]string) (RecordResult, error)
}

// ExecutionResult reports the outcome of one executed action.
type ExecutionResult struct {
	ActionID string
	Title    string
	Record   *models.RecordRef
	Success  bool
	Error    string
}

// Executor dispatches action specs to record builders keyed by action type.
type Executor struct {
	sink RecordSink
}

// NewExecutor creates an executor. A nil sink means every record is simulated.
func NewExecutor(sink RecordSink) *Executor {
	return &Executor{sink: sink}
}

// Execute runs every action in order. Each action is isolated: a panic in
// one handler marks that item failed and the loop continues.
func (e *Executor) Execute(ctx context.Context, specs []models.ActionSpec, collected map[string]string) []ExecutionResult {
	results := make([]ExecutionResult, 0, len(specs))
	for _, spec := range specs {
		results = append(results, e.executeOne(ctx, spec, collected))
	}
	return results
}

func (e *Executor) executeOne(ctx context.Context, spec models.ActionSpec, collected map[string]string) (result ExecutionResult) {
	result = ExecutionResult{ActionID: spec.ID, Title: spec.Title}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Executor.executeOne: action handler panicked", "actionID", spec.ID, "panic", r)
			result.Success = false
			result.Error = fmt.Sprintf("action %s failed: %v", spec.ID, r)
			result.Record = nil
		}
	}()

	table, fields := buildRecord(spec, collected)
	record := e.createRecord(ctx, table, fields)
	result.Record = &record
	result.Success = true
	slog.Debug("Executor.executeOne: action completed", "actionID", spec.ID, "table", table, "number", record.Number, "simulated", record.Simulated)
	return result
}

// createRecord tries the sink first and falls back to a simulated record.
func (e *Executor) createRecord(ctx context.Context, table models.RecordTable, fields map[string]string) models.RecordRef {
	if e.sink != nil {
		res, err := e.sink.Create(ctx, table, fields)
		if err == nil {
			return models.RecordRef{Table: table, Number: res.Number, SysID: res.SysID, Simulated: res.Simulated}
		}
		slog.Warn("Executor.createRecord: sink failed, simulating record", "table", table, "error", err)
	}
	return models.RecordRef{
		Table:     table,
		Number:    SimulatedNumber(table, time.Now()),
		SysID:     uuid.NewString(),
		Simulated: true,
	}
}

// recordPrefixes maps tables to the number prefixes of the target system.
var recordPrefixes = map[models.RecordTable]string{
	models.TableHRCase:   "HR",
	models.TableRequest:  "REQ",
	models.TableReqItem:  "RITM",
	models.TableIncident: "INC",
	models.TableTask:     "TASK",
	models.TableSecurity: "SEC",
	models.TableGeneric:  "SAGE",
}

// SimulatedNumber builds a record number from the table prefix and the last
// six digits of the timestamp in milliseconds.
func SimulatedNumber(table models.RecordTable, now time.Time) string {
	prefix, ok := recordPrefixes[table]
	if !ok {
		prefix = "SAGE"
	}
	millis := fmt.Sprintf("%d", now.UnixMilli())
	if len(millis) > 6 {
		millis = millis[len(millis)-6:]
	}
	return prefix + millis
}

// buildRecord maps an action spec onto a target table and field map.
func buildRecord(spec models.ActionSpec, collected map[string]string) (models.RecordTable, map[string]string) {
	table := spec.Table
	if table == "" {
		table = defaultTable(spec.Type)
	}
	switch spec.Type {
	case models.ActionHR:
		return table, buildHRFields(spec, collected)
	case models.ActionIT:
		if table == models.TableIncident {
			return table, buildIncidentFields(spec, collected)
		}
		return table, buildRequestFields(spec, collected)
	case models.ActionManager:
		return table, buildTaskFields(spec, collected)
	case models.ActionSecurity:
		return table, buildSecurityFields(spec, collected)
	default:
		return table, buildGenericFields(spec, collected)
	}
}

func defaultTable(t models.ActionType) models.RecordTable {
	switch t {
	case models.ActionHR:
		return models.TableHRCase
	case models.ActionIT:
		return models.TableRequest
	case models.ActionManager:
		return models.TableTask
	case models.ActionSecurity:
		return models.TableSecurity
	default:
		return models.TableGeneric
	}
}

func buildHRFields(spec models.ActionSpec, collected map[string]string) map[string]string {
	fields := map[string]string{
		"short_description": spec.Title,
		"subject_person":    collected["employee_name"],
		"description":       summarize(collected),
	}
	if v, ok := collected["start_date"]; ok {
		fields["due_date"] = v
	}
	if v, ok := collected["last_day"]; ok {
		fields["due_date"] = v
	}
	return fields
}

func buildIncidentFields(spec models.ActionSpec, collected map[string]string) map[string]string {
	fields := map[string]string{
		"short_description": spec.Title,
		"description":       collected["issue_description"],
		"category":          collected["category"],
	}
	if v, ok := collected["urgency"]; ok {
		fields["urgency"] = v
	}
	return fields
}

func buildRequestFields(spec models.ActionSpec, collected map[string]string) map[string]string {
	return map[string]string{
		"short_description": spec.Title,
		"requested_for":     collected["employee_name"],
		"description":       summarize(collected),
	}
}

func buildTaskFields(spec models.ActionSpec, collected map[string]string) map[string]string {
	return map[string]string{
		"short_description": spec.Title,
		"description":       summarize(collected),
		"assigned_to":       collected["requesting_manager"],
	}
}

func buildSecurityFields(spec models.ActionSpec, collected map[string]string) map[string]string {
	return map[string]string{
		"short_description": spec.Title,
		"subject_person":    collected["employee_name"],
		"description":       summarize(collected),
	}
}

func buildGenericFields(spec models.ActionSpec, collected map[string]string) map[string]string {
	return map[string]string{
		"short_description": spec.Title,
		"description":       summarize(collected),
	}
}

// summarize renders collected data as "key: value" lines for descriptions.
func summarize(collected map[string]string) string {
	if len(collected) == 0 {
		return ""
	}
	keys := make([]string, 0, len(collected))
	for k := range collected {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, collected[k])
	}
	return strings.TrimRight(b.String(), "\n")
}
