package memory

import (
	"testing"
)

type fakeRuntime struct {
	current int64
	set     []int64
}

func (f *fakeRuntime) setLimit(v int64) int64 {
	prev := f.current
	if v >= 0 {
		f.set = append(f.set, v)
		f.current = v
	}
	return prev
}

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestConfigure(t *testing.T) {
	tests := []struct {
		name      string
		env       map[string]string
		source    string
		goLimit   int64
		ratio     float64
		wantCalls int
	}{
		{
			name:   "nothing set",
			env:    map[string]string{},
			source: "none",
		},
		{
			name:    "GOMEMLIMIT wins",
			env:     map[string]string{"GOMEMLIMIT": "500MiB", "MEMORY_LIMIT": "1073741824"},
			source:  "GOMEMLIMIT",
			goLimit: 500 << 20,
		},
		{
			name:      "default ratio",
			env:       map[string]string{"MEMORY_LIMIT": "1073741824"},
			source:    "MEMORY_LIMIT",
			goLimit:   805306368,
			ratio:     DefaultRatio,
			wantCalls: 1,
		},
		{
			name:      "custom ratio",
			env:       map[string]string{"MEMORY_LIMIT": "1000", "MEMORY_RATIO": "0.5"},
			source:    "MEMORY_LIMIT",
			goLimit:   500,
			ratio:     0.5,
			wantCalls: 1,
		},
		{
			name:      "ratio out of range",
			env:       map[string]string{"MEMORY_LIMIT": "1000", "MEMORY_RATIO": "1.5"},
			source:    "MEMORY_LIMIT",
			goLimit:   750,
			ratio:     DefaultRatio,
			wantCalls: 1,
		},
		{
			name:      "ratio unparsable",
			env:       map[string]string{"MEMORY_LIMIT": "1000", "MEMORY_RATIO": "most"},
			source:    "MEMORY_LIMIT",
			goLimit:   750,
			ratio:     DefaultRatio,
			wantCalls: 1,
		},
		{
			name:   "limit unparsable",
			env:    map[string]string{"MEMORY_LIMIT": "512Mi"},
			source: "none",
		},
		{
			name:   "limit negative",
			env:    map[string]string{"MEMORY_LIMIT": "-1"},
			source: "none",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := &fakeRuntime{}
			if tt.env["GOMEMLIMIT"] != "" {
				rt.current = tt.goLimit
			}

			got := configure(envMap(tt.env), rt.setLimit)

			if got.Source != tt.source {
				t.Errorf("Source = %q, want %q", got.Source, tt.source)
			}
			if got.GoLimit != tt.goLimit {
				t.Errorf("GoLimit = %d, want %d", got.GoLimit, tt.goLimit)
			}
			if got.Ratio != tt.ratio {
				t.Errorf("Ratio = %v, want %v", got.Ratio, tt.ratio)
			}
			if len(rt.set) != tt.wantCalls {
				t.Errorf("SetMemoryLimit called %d times, want %d", len(rt.set), tt.wantCalls)
			}
			if got.Configured() != (tt.goLimit > 0) {
				t.Errorf("Configured() = %v", got.Configured())
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1 << 20, "1.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}

	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
