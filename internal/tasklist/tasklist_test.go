package tasklist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wintopic/iDanmu-Speed/internal/model"
)

func TestParse_JSONLines(t *testing.T) {
	data := []byte("\xEF\xBB\xBF{\"commentId\": 12}\n\n# comment\n{\"url\": \"https://v.example/1\", \"format\": \"JSON\"}\n")

	records, err := Parse(data, ".jsonl")
	require.NoError(t, err)
	tasks, err := NormalizeAll(records)
	require.NoError(t, err)

	require.Len(t, tasks, 2)
	assert.Equal(t, model.Task{Index: 1, CommentID: 12}, tasks[0])
	assert.Equal(t, model.Task{Index: 2, URL: "https://v.example/1", Format: model.FormatJSON}, tasks[1])
}

func TestParse_JSONLinesBadLine(t *testing.T) {
	_, err := Parse([]byte("{\"url\":\"a\"}\n{oops\n"), ".ndjson")
	assert.ErrorContains(t, err, "line 2:")
}

func TestParse_JSON(t *testing.T) {
	list, err := Parse([]byte(`[{"fileName": "a.mkv"}, {"anime": "B", "episode": 3}]`), ".json")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	wrapped, err := Parse([]byte(`{"tasks": [{"fileName": "a.mkv"}]}`), ".JSON")
	require.NoError(t, err)
	assert.Len(t, wrapped, 1)

	_, err = Parse([]byte(`{"items": []}`), ".json")
	assert.EqualError(t, err, "JSON file must be a list or an object with a 'tasks' list")

	_, err = Parse([]byte(`[1]`), ".json")
	assert.EqualError(t, err, "task 1 is not an object")
}

func TestParse_CSV(t *testing.T) {
	data := []byte("name,fileName,commentId,disabled\n" +
		"first,a.mkv,,\n" +
		",,\n" +
		"second,,42,yes\n" +
		"short\n")

	records, err := Parse(data, ".csv")
	require.NoError(t, err)
	tasks, err := NormalizeAll(records)
	require.NoError(t, err)

	require.Len(t, tasks, 3)
	assert.Equal(t, model.Task{Index: 1, Name: "first", FileName: "a.mkv"}, tasks[0])
	assert.Equal(t, model.Task{Index: 2, Name: "second", CommentID: 42, Disabled: true}, tasks[1])
	assert.Equal(t, model.Task{Index: 3, Name: "short"}, tasks[2])
}

func TestParse_UnsupportedExtension(t *testing.T) {
	_, err := Parse([]byte("x"), ".yaml")
	assert.EqualError(t, err, "unsupported input extension: .yaml")
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want model.Task
	}{
		{
			name: "lowercase aliases",
			rec:  Record{"filename": " a.mkv ", "commentid": "77"},
			want: model.Task{Index: 5, FileName: "a.mkv", CommentID: 77},
		},
		{
			name: "camel case wins",
			rec:  Record{"fileName": "b.mkv", "filename": "a.mkv"},
			want: model.Task{Index: 5, FileName: "b.mkv"},
		},
		{
			name: "invalid comment id ignored",
			rec:  Record{"commentId": "abc", "anime": "A"},
			want: model.Task{Index: 5, Anime: "A"},
		},
		{
			name: "disabled flags",
			rec:  Record{"anime": "A", "disabled": "TRUE"},
			want: model.Task{Index: 5, Anime: "A", Disabled: true},
		},
		{
			name: "boolean disabled",
			rec:  Record{"anime": "A", "disabled": true},
			want: model.Task{Index: 5, Anime: "A", Disabled: true},
		},
		{
			name: "not disabled",
			rec:  Record{"anime": "A", "disabled": "no"},
			want: model.Task{Index: 5, Anime: "A"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.rec, 5)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_InvalidFormat(t *testing.T) {
	_, err := Normalize(Record{"url": "u", "format": "YAML"}, 3)
	assert.EqualError(t, err, "task 3 has invalid format: yaml")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"commentId": 1}, {"commentId": 2, "disabled": 1}]`), 0o644))

	tasks, err := Load(path)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.True(t, tasks[1].Disabled)
	assert.Len(t, model.Enabled(tasks), 1)

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.ErrorContains(t, err, "read task file")
}
