package k6

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilesFor(t *testing.T) {
	files := FilesFor("/tmp/results", "abc")

	assert.Equal(t, filepath.Join("/tmp/results", "test_abc.js"), files.Script)
	assert.Equal(t, filepath.Join("/tmp/results", "test_abc_metrics.json"), files.Stream)
	assert.Equal(t, filepath.Join("/tmp/results", "test_abc_summary.json"), files.Summary)
}

func TestCommand(t *testing.T) {
	files := RunFiles{Script: "s.js", Stream: "m.json", Summary: "sum.json"}

	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{
			name: "no options",
			want: []string{"k6", "run", "--out", "json=m.json", "--summary-export", "sum.json", "s.js"},
		},
		{
			name: "all options",
			opts: Options{VUs: 10, Duration: "30s", Iterations: 100},
			want: []string{"k6", "run", "--out", "json=m.json", "--summary-export", "sum.json",
				"--vus", "10", "--duration", "30s", "--iterations", "100", "s.js"},
		},
		{
			name: "duration only",
			opts: Options{Duration: "1m"},
			want: []string{"k6", "run", "--out", "json=m.json", "--summary-export", "sum.json",
				"--duration", "1m", "s.js"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Command("k6", files, tt.opts))
		})
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"empty", Options{}, false},
		{"valid", Options{VUs: 50, Duration: "2m", Iterations: 10}, false},
		{"too many vus", Options{VUs: 1001}, true},
		{"negative vus", Options{VUs: -1}, true},
		{"negative iterations", Options{Iterations: -5}, true},
		{"bad duration", Options{Duration: "soon"}, true},
		{"zero duration", Options{Duration: "0s"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
