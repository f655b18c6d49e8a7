package memory

import "testing"

func TestConfigure(t *testing.T) {
	tests := []struct {
		name       string
		env        map[string]string
		current    int64
		wantSource string
		wantLimit  int64
		wantSet    int64
	}{
		{
			name:       "nothing set",
			env:        map[string]string{},
			wantSource: SourceNone,
		},
		{
			name:       "GOMEMLIMIT wins",
			env:        map[string]string{"GOMEMLIMIT": "512MiB", "MEMORY_LIMIT": "1073741824"},
			current:    512 << 20,
			wantSource: SourceGoMemLimit,
			wantLimit:  512 << 20,
		},
		{
			name:       "default ratio",
			env:        map[string]string{"MEMORY_LIMIT": "1000"},
			wantSource: SourceMemoryLimit,
			wantLimit:  750,
			wantSet:    750,
		},
		{
			name:       "custom ratio",
			env:        map[string]string{"MEMORY_LIMIT": "1000", "MEMORY_RATIO": "0.5"},
			wantSource: SourceMemoryLimit,
			wantLimit:  500,
			wantSet:    500,
		},
		{
			name:       "ratio out of range",
			env:        map[string]string{"MEMORY_LIMIT": "1000", "MEMORY_RATIO": "1.5"},
			wantSource: SourceMemoryLimit,
			wantLimit:  750,
			wantSet:    750,
		},
		{
			name:       "invalid limit",
			env:        map[string]string{"MEMORY_LIMIT": "lots"},
			wantSource: SourceNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var set int64
			setLimit := func(v int64) int64 {
				if v < 0 {
					return tt.current
				}
				set = v
				return tt.current
			}
			getenv := func(k string) string { return tt.env[k] }

			res := Configure(getenv, setLimit)
			if res.Source != tt.wantSource {
				t.Errorf("Source = %q, want %q", res.Source, tt.wantSource)
			}
			if res.GoMemLimit != tt.wantLimit {
				t.Errorf("GoMemLimit = %d, want %d", res.GoMemLimit, tt.wantLimit)
			}
			if set != tt.wantSet {
				t.Errorf("applied limit = %d, want %d", set, tt.wantSet)
			}
			if res.Configured != (tt.wantLimit > 0) {
				t.Errorf("Configured = %v", res.Configured)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1 << 30, "1.0 GiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
