package jobs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const jobColumns = "id, source_kind, source_path, source_url, source_name, source_managed, model, language, include_timestamps, reformat, state, progress, message, result_json, error_kind, error_message, work_dir, created_at, updated_at"

const summaryColumns = "id, source_kind, source_path, source_url, source_name, state, progress, message, duration_seconds, error_kind, created_at, updated_at"

// timestampLayout pads fractional seconds so stored values sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		job          Job
		sourceKind   string
		sourcePath   sql.NullString
		sourceURL    sql.NullString
		sourceName   sql.NullString
		managed      int
		timestamps   int
		reformat     int
		state        string
		message      sql.NullString
		resultJSON   sql.NullString
		errorKind    sql.NullString
		errorMessage sql.NullString
		workDir      sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(
		&job.ID,
		&sourceKind,
		&sourcePath,
		&sourceURL,
		&sourceName,
		&managed,
		&job.Options.Model,
		&job.Options.Language,
		&timestamps,
		&reformat,
		&state,
		&job.Progress,
		&message,
		&resultJSON,
		&errorKind,
		&errorMessage,
		&workDir,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job.Source = Source{
		Kind:    SourceKind(sourceKind),
		Path:    sourcePath.String,
		URL:     sourceURL.String,
		Name:    sourceName.String,
		Managed: managed != 0,
	}
	job.Options.IncludeTimestamps = timestamps != 0
	job.Options.Reformat = reformat != 0
	job.State = State(state)
	job.Message = message.String
	job.WorkDir = workDir.String

	if resultJSON.Valid && resultJSON.String != "" {
		var result Result
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("decode result for %s: %w", job.ID, err)
		}
		job.Result = &result
	}
	if errorKind.Valid && errorKind.String != "" {
		job.Error = &Failure{Kind: ErrorKind(errorKind.String), Message: errorMessage.String}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return &job, nil
}

func scanSummary(scanner rowScanner) (Summary, error) {
	var (
		summary    Summary
		sourceKind string
		sourcePath sql.NullString
		sourceURL  sql.NullString
		sourceName sql.NullString
		state      string
		message    sql.NullString
		errorKind  sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&summary.ID,
		&sourceKind,
		&sourcePath,
		&sourceURL,
		&sourceName,
		&state,
		&summary.Progress,
		&message,
		&summary.DurationSeconds,
		&errorKind,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return Summary{}, err
	}
	source := Source{Kind: SourceKind(sourceKind), Path: sourcePath.String, URL: sourceURL.String, Name: sourceName.String}
	summary.SourceKind = source.Kind
	summary.SourceName = source.DisplayName()
	summary.State = State(state)
	summary.Message = message.String
	summary.ErrorKind = ErrorKind(errorKind.String)
	if created, err := parseTimeString(createdRaw); err == nil {
		summary.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		summary.UpdatedAt = updated
	}
	return summary, nil
}

// jobArgs returns the column values for jobColumns in order.
func jobArgs(job *Job) ([]any, error) {
	var resultJSON any
	duration := 0.0
	if job.Result != nil {
		data, err := json.Marshal(job.Result)
		if err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		resultJSON = string(data)
		duration = job.Result.DurationSeconds
	}
	var errorKind, errorMessage any
	if job.Error != nil {
		errorKind = string(job.Error.Kind)
		errorMessage = nullableString(job.Error.Message)
	}
	return []any{
		job.ID,
		string(job.Source.Kind),
		nullableString(job.Source.Path),
		nullableString(job.Source.URL),
		nullableString(job.Source.Name),
		boolToInt(job.Source.Managed),
		job.Options.Model,
		job.Options.Language,
		boolToInt(job.Options.IncludeTimestamps),
		boolToInt(job.Options.Reformat),
		string(job.State),
		job.Progress,
		nullableString(job.Message),
		resultJSON,
		errorKind,
		errorMessage,
		nullableString(job.WorkDir),
		formatTime(job.CreatedAt),
		formatTime(job.UpdatedAt),
		duration,
	}, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timestampLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
