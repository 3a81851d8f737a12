package cli

import (
	"testing"

	"github.com/marblecutter-go/tilecutter/format"
)

func TestSelectTransformation(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantNil bool
		wantErr bool
	}{
		{name: "empty means no transform", input: "", wantNil: true},
		{name: "hillshade", input: "hillshade"},
		{name: "normal", input: "normal"},
		{name: "terrarium", input: "terrarium"},
		{name: "image", input: "image"},
		{name: "greyscale", input: "greyscale"},
		{name: "colormap", input: "colormap"},
		{name: "unknown", input: "bogus", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := selectTransformation(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("selectTransformation(%q) expected error, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Errorf("selectTransformation(%q) unexpected error: %v", tt.input, err)
				return
			}
			if tt.wantNil && got != nil {
				t.Errorf("selectTransformation(%q) = %v, want nil", tt.input, got)
			}
			if !tt.wantNil && got == nil {
				t.Errorf("selectTransformation(%q) = nil, want non-nil", tt.input)
			}
		})
	}
}

func TestSelectFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    format.Encoder
		wantErr bool
	}{
		{name: "empty defaults to png", input: "", want: format.PNG{}},
		{name: "png", input: "png", want: format.PNG{}},
		{name: "jpeg", input: "jpeg", want: format.JPEG{}},
		{name: "optimal", input: "optimal", want: format.Optimal{}},
		{name: "unknown", input: "bogus", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := selectFormat(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("selectFormat(%q) expected error, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Errorf("selectFormat(%q) unexpected error: %v", tt.input, err)
				return
			}
			if got == nil {
				t.Errorf("selectFormat(%q) = nil, want non-nil", tt.input)
				return
			}
			if tt.want != nil && got != tt.want {
				t.Errorf("selectFormat(%q) = %#v, want %#v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSelectFormatGeoTIFFAndSkadiResolve(t *testing.T) {
	if _, err := selectFormat("geotiff"); err != nil {
		t.Errorf("selectFormat(geotiff) unexpected error: %v", err)
	}
	if _, err := selectFormat("skadi"); err != nil {
		t.Errorf("selectFormat(skadi) unexpected error: %v", err)
	}
	if _, err := selectFormat("colorramp"); err != nil {
		t.Errorf("selectFormat(colorramp) unexpected error: %v", err)
	}
}

func TestDefaultBands(t *testing.T) {
	tests := []struct {
		transform string
		want      int
	}{
		{"hillshade", 1},
		{"normal", 1},
		{"terrarium", 1},
		{"greyscale", 1},
		{"colormap", 1},
		{"image", 3},
		{"", 3},
	}
	for _, tt := range tests {
		if got := defaultBands(tt.transform); got != tt.want {
			t.Errorf("defaultBands(%q) = %d, want %d", tt.transform, got, tt.want)
		}
	}
}
