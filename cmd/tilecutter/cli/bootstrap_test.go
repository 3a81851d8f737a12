package cli

import "testing"

func TestParseSourceURLs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{name: "empty string yields nil", input: "", want: 0},
		{name: "single url", input: "https://example.com/a.tif", want: 1},
		{name: "comma separated", input: "https://example.com/a.tif,https://example.com/b.tif", want: 2},
		{name: "trims whitespace and drops empties", input: " https://example.com/a.tif , , https://example.com/b.tif ", want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseSourceURLs(tt.input)
			if len(got) != tt.want {
				t.Errorf("parseSourceURLs(%q) = %d sources, want %d", tt.input, len(got), tt.want)
			}
			for _, s := range got {
				if s.Name != s.URL || !s.Enabled {
					t.Errorf("parseSourceURLs(%q): source %+v expected Name==URL and Enabled", tt.input, s)
				}
			}
		})
	}
}
