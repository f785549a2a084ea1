package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tyemirov/dagwatch/internal/airflow"
	auditerrors "github.com/tyemirov/dagwatch/internal/errors"
)

// ReportFormat selects how audit results are rendered.
type ReportFormat string

// Supported report formats.
const (
	ReportFormatCSV  ReportFormat = "csv"
	ReportFormatJSON ReportFormat = "json"
	ReportFormatYAML ReportFormat = "yaml"
)

const (
	csvHeaderDAGID                    = "dag_id"
	csvHeaderRunCount                 = "run_count"
	csvHeaderFailCount                = "fail_count"
	csvHeaderFailureRatio             = "failure_ratio"
	ratioPrecisionConstant            = 4
	jsonIndentConstant                = "  "
	yamlIndentConstant                = 2
	formatSubjectConstant             = "format"
	unsupportedFormatTemplateConstant = "unsupported report format %q (one of: csv|json|yaml)"
)

// ParseReportFormat validates a report format name.
func ParseReportFormat(value string) (ReportFormat, error) {
	switch ReportFormat(strings.ToLower(strings.TrimSpace(value))) {
	case ReportFormatCSV, "":
		return ReportFormatCSV, nil
	case ReportFormatJSON:
		return ReportFormatJSON, nil
	case ReportFormatYAML:
		return ReportFormatYAML, nil
	default:
		return "", auditerrors.WrapMessage(auditerrors.OperationConfigurationValidate, formatSubjectConstant, auditerrors.ErrConfiguration, fmt.Sprintf(unsupportedFormatTemplateConstant, value))
	}
}

type reportDocument struct {
	PassID       string      `json:"pass_id" yaml:"pass_id"`
	WindowStart  string      `json:"window_start" yaml:"window_start"`
	WindowEnd    string      `json:"window_end" yaml:"window_end"`
	Prefix       string      `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Suffix       string      `json:"suffix,omitempty" yaml:"suffix,omitempty"`
	ActiveDAGs   int         `json:"active_dags" yaml:"active_dags"`
	TotalRuns    int         `json:"total_runs" yaml:"total_runs"`
	TotalFails   int         `json:"total_fails" yaml:"total_fails"`
	FailureRatio float64     `json:"failure_ratio" yaml:"failure_ratio"`
	DAGs         []reportRow `json:"dags" yaml:"dags"`
}

type reportRow struct {
	DAGID        string   `json:"dag_id" yaml:"dag_id"`
	RunCount     int      `json:"run_count" yaml:"run_count"`
	FailCount    int      `json:"fail_count" yaml:"fail_count"`
	FailureRatio *float64 `json:"failure_ratio" yaml:"failure_ratio"`
}

// WriteReport renders the per-DAG tallies of result in the requested format.
func WriteReport(writer io.Writer, format ReportFormat, result Result) error {
	switch format {
	case ReportFormatCSV:
		return writeCSVReport(writer, result)
	case ReportFormatJSON:
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", jsonIndentConstant)
		return encoder.Encode(buildReportDocument(result))
	case ReportFormatYAML:
		encoder := yaml.NewEncoder(writer)
		encoder.SetIndent(yamlIndentConstant)
		if encodeError := encoder.Encode(buildReportDocument(result)); encodeError != nil {
			return encodeError
		}
		return encoder.Close()
	default:
		_, formatError := ParseReportFormat(string(format))
		return formatError
	}
}

func writeCSVReport(writer io.Writer, result Result) error {
	csvWriter := csv.NewWriter(writer)
	header := []string{
		csvHeaderDAGID,
		csvHeaderRunCount,
		csvHeaderFailCount,
		csvHeaderFailureRatio,
	}
	if writeError := csvWriter.Write(header); writeError != nil {
		return writeError
	}

	for _, tally := range result.Tallies {
		ratioText := ""
		if ratio, defined := tally.FailureRatio(); defined {
			ratioText = formatRatio(ratio)
		}
		record := []string{
			tally.DAGID,
			strconv.Itoa(tally.RunCount),
			strconv.Itoa(tally.FailCount),
			ratioText,
		}
		if writeError := csvWriter.Write(record); writeError != nil {
			return writeError
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

func buildReportDocument(result Result) reportDocument {
	rows := make([]reportRow, 0, len(result.Tallies))
	for _, tally := range result.Tallies {
		row := reportRow{DAGID: tally.DAGID, RunCount: tally.RunCount, FailCount: tally.FailCount}
		if ratio, defined := tally.FailureRatio(); defined {
			row.FailureRatio = &ratio
		}
		rows = append(rows, row)
	}

	return reportDocument{
		PassID:       result.PassID,
		WindowStart:  airflow.FormatTimestamp(result.Window.Start),
		WindowEnd:    airflow.FormatTimestamp(result.Window.End),
		Prefix:       result.Prefix,
		Suffix:       result.Suffix,
		ActiveDAGs:   result.ActiveDAGCount,
		TotalRuns:    result.Consolidation.TotalRuns,
		TotalFails:   result.Consolidation.TotalFails,
		FailureRatio: result.Consolidation.FailureRatio,
		DAGs:         rows,
	}
}

func formatRatio(ratio float64) string {
	return strconv.FormatFloat(ratio, 'f', ratioPrecisionConstant, 64)
}
