// Package tasklist reads task files and normalizes their records into
// model.Task values.
//
// Supported formats, chosen by file extension:
//   - .jsonl, .ndjson, .txt: one JSON object per line; blank lines and lines
//     starting with "#" are skipped
//   - .json: an array of objects, or an object with a "tasks" array
//   - .csv: a header row followed by one task per row
package tasklist

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wintopic/iDanmu-Speed/internal/model"
)

// Record is one raw task as read from a file.
type Record map[string]any

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Load reads path and returns every task, disabled ones included, indexed
// by position in the file.
func Load(path string) ([]model.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}

	records, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	return NormalizeAll(records)
}

// Parse decodes data in the format implied by ext (".json", ".csv", ...).
func Parse(data []byte, ext string) ([]Record, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	switch strings.ToLower(ext) {
	case ".jsonl", ".ndjson", ".txt":
		return parseLines(data)
	case ".json":
		return parseJSON(data)
	case ".csv":
		return parseCSV(data)
	}
	return nil, fmt.Errorf("unsupported input extension: %s", ext)
}

func decodeObject(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func parseLines(data []byte) ([]Record, error) {
	var records []Record

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		rec, err := decodeObject([]byte(text))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func parseJSON(data []byte) ([]Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}

	var items []any
	switch v := payload.(type) {
	case []any:
		items = v
	case map[string]any:
		list, ok := v["tasks"].([]any)
		if !ok {
			return nil, fmt.Errorf("JSON file must be a list or an object with a 'tasks' list")
		}
		items = list
	default:
		return nil, fmt.Errorf("JSON file must be a list or an object with a 'tasks' list")
	}

	records := make([]Record, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("task %d is not an object", i+1)
		}
		records = append(records, Record(obj))
	}
	return records, nil
}

func parseCSV(data []byte) ([]Record, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	var (
		headers []string
		records []Record
	)
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if blankRow(row) {
			continue
		}
		if headers == nil {
			headers = row
			continue
		}

		rec := make(Record, len(headers))
		for i, h := range headers {
			if i < len(row) {
				rec[h] = row[i]
			} else {
				rec[h] = ""
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// NormalizeAll normalizes records in order. The first invalid record fails
// the whole list.
func NormalizeAll(records []Record) ([]model.Task, error) {
	tasks := make([]model.Task, 0, len(records))
	for i, rec := range records {
		t, err := Normalize(rec, i+1)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Normalize converts a raw record into a Task with the given 1-based index.
//
// Text fields are trimmed. fileName and commentId also accept all-lowercase
// keys. A commentId that is not an integer is ignored. disabled is true for
// "1", "true" and "yes".
func Normalize(rec Record, index int) (model.Task, error) {
	fileName := str(rec["fileName"])
	if fileName == "" {
		fileName = str(rec["filename"])
	}

	rawID, ok := rec["commentId"]
	if !ok {
		rawID = rec["commentid"]
	}

	task := model.Task{
		Index:     index,
		Name:      str(rec["name"]),
		URL:       str(rec["url"]),
		FileName:  fileName,
		Anime:     str(rec["anime"]),
		Episode:   str(rec["episode"]),
		CommentID: parseID(rawID),
		Disabled:  parseBool(rec["disabled"]),
	}

	format, err := model.ParseFormat(strings.ToLower(str(rec["format"])))
	if err != nil {
		return model.Task{}, fmt.Errorf("task %d has invalid format: %s", index, strings.ToLower(str(rec["format"])))
	}
	task.Format = format
	return task, nil
}

func str(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func parseID(v any) int64 {
	s := str(v)
	if s == "" {
		return 0
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func parseBool(v any) bool {
	switch strings.ToLower(str(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
