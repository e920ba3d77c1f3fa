package output

import (
	"time"

	"github.com/jamesainslie/memsweep/pkg/memsweep/types"
)

// document is the structure shared by the JSON and YAML formatters.
type document struct {
	Run    *runView     `json:"run,omitempty" yaml:"run,omitempty"`
	Memory memoryView   `json:"memory" yaml:"memory"`
	Areas  []AreaInfo   `json:"areas,omitempty" yaml:"areas,omitempty"`
	Meta   metadataView `json:"meta" yaml:"meta"`
}

type runView struct {
	ID        string        `json:"id" yaml:"id"`
	Reason    string        `json:"reason" yaml:"reason"`
	Areas     string        `json:"areas" yaml:"areas"`
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Duration  string        `json:"duration" yaml:"duration"`
	Total     string        `json:"total" yaml:"total"`
	Succeeded int           `json:"succeeded" yaml:"succeeded"`
	Failed    int           `json:"failed" yaml:"failed"`
	Outcomes  []outcomeView `json:"outcomes" yaml:"outcomes"`
	InfoLog   string        `json:"info_log,omitempty" yaml:"info_log,omitempty"`
	ErrorLog  string        `json:"error_log,omitempty" yaml:"error_log,omitempty"`
}

type outcomeView struct {
	Area    string  `json:"area" yaml:"area"`
	Label   string  `json:"label" yaml:"label"`
	Status  string  `json:"status" yaml:"status"`
	Seconds float64 `json:"seconds" yaml:"seconds"`
	Cause   string  `json:"cause,omitempty" yaml:"cause,omitempty"`
}

type snapshotView struct {
	TotalPhysical     uint64    `json:"total_physical" yaml:"total_physical"`
	AvailablePhysical uint64    `json:"available_physical" yaml:"available_physical"`
	UsedPercent       float64   `json:"used_percent" yaml:"used_percent"`
	TotalPageFile     uint64    `json:"total_page_file" yaml:"total_page_file"`
	AvailablePageFile uint64    `json:"available_page_file" yaml:"available_page_file"`
	CapturedAt        time.Time `json:"captured_at" yaml:"captured_at"`
}

type memoryView struct {
	Before     *snapshotView `json:"before,omitempty" yaml:"before,omitempty"`
	After      *snapshotView `json:"after,omitempty" yaml:"after,omitempty"`
	Freed      int64         `json:"freed" yaml:"freed"`
	FreedHuman string        `json:"freed_human" yaml:"freed_human"`
}

type metadataView struct {
	OSVersion string   `json:"os_version" yaml:"os_version"`
	DaemonUp  bool     `json:"daemon_up" yaml:"daemon_up"`
	Warnings  []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

func newOutcomeView(o types.OperationOutcome) outcomeView {
	return outcomeView{
		Area:    o.Area.Name(),
		Label:   o.Area.Label(),
		Status:  outcomeStatus(o),
		Seconds: o.Elapsed.Seconds(),
		Cause:   o.Cause,
	}
}

func newSnapshotView(s types.MemorySnapshot) *snapshotView {
	if s.IsZero() {
		return nil
	}
	return &snapshotView{
		TotalPhysical:     s.TotalPhysical,
		AvailablePhysical: s.AvailablePhysical,
		UsedPercent:       s.UsedPercent(),
		TotalPageFile:     s.TotalPageFile,
		AvailablePageFile: s.AvailablePageFile,
		CapturedAt:        s.CapturedAt,
	}
}

// buildDocument converts a Report to the structured output form.
func buildDocument(r *Report) document {
	doc := document{
		Memory: memoryView{
			Before:     newSnapshotView(r.Before),
			After:      newSnapshotView(r.After),
			Freed:      r.Freed(),
			FreedHuman: formatSigned(r.Freed()),
		},
		Areas: r.Areas,
		Meta: metadataView{
			OSVersion: r.OSVersion,
			DaemonUp:  r.DaemonUp,
			Warnings:  r.Warnings,
		},
	}

	if run := r.Run; run != nil {
		view := &runView{
			ID:        run.ID,
			Reason:    run.Reason.String(),
			Areas:     run.Areas.String(),
			StartedAt: run.StartedAt,
			Duration:  formatDurationString(run.FinishedAt.Sub(run.StartedAt)),
			Total:     formatDurationString(run.Total),
			Succeeded: run.Succeeded(),
			Failed:    run.Failed(),
			Outcomes:  make([]outcomeView, 0, len(run.Outcomes)),
			InfoLog:   run.InfoLog,
			ErrorLog:  run.ErrorLog,
		}
		for _, o := range run.Outcomes {
			view.Outcomes = append(view.Outcomes, newOutcomeView(o))
		}
		doc.Run = view
	}

	return doc
}

// formatDurationString formats a duration as a string for structured output.
func formatDurationString(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	return d.String()
}

// formatSigned renders a byte delta with an explicit sign.
func formatSigned(delta int64) string {
	if delta < 0 {
		return "-" + types.FormatSize(uint64(-delta))
	}
	return types.FormatSize(uint64(delta))
}
