package media

import (
	"math"
	"strings"
	"testing"
)

func TestParseRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"30/1", 30},
		{"30000/1001", 29.97002997},
		{"25", 25},
		{"0/0", 0},
		{"", 0},
		{"abc/1", 0},
	}

	for _, tt := range tests {
		if got := parseRate(tt.in); math.Abs(got-tt.want) > 1e-6 {
			t.Errorf("parseRate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseProbe(t *testing.T) {
	tests := []struct {
		name string
		json string
		want VideoInfo
	}{
		{
			name: "frame count from nb_frames",
			json: `{"streams":[{"width":1920,"height":1080,"avg_frame_rate":"30/1","r_frame_rate":"30/1","nb_frames":"900"}],"format":{"duration":"30.0"}}`,
			want: VideoInfo{FPS: 30, TotalFrames: 900, Width: 1920, Height: 1080},
		},
		{
			name: "frame count from duration",
			json: `{"streams":[{"width":640,"height":360,"avg_frame_rate":"0/0","r_frame_rate":"25/1"}],"format":{"duration":"10.0"}}`,
			want: VideoInfo{FPS: 25, TotalFrames: 250, Width: 640, Height: 360},
		},
		{
			name: "rotated phone video",
			json: `{"streams":[{"width":1920,"height":1080,"avg_frame_rate":"30/1","nb_frames":"60","side_data_list":[{"rotation":-90}]}],"format":{}}`,
			want: VideoInfo{FPS: 30, TotalFrames: 60, Width: 1080, Height: 1920},
		},
		{
			name: "legacy rotate tag",
			json: `{"streams":[{"width":1280,"height":720,"avg_frame_rate":"24/1","nb_frames":"48","tags":{"rotate":"270"}}],"format":{}}`,
			want: VideoInfo{FPS: 24, TotalFrames: 48, Width: 720, Height: 1280},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseProbe([]byte(tt.json))
			if err != nil {
				t.Fatalf("parseProbe() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("parseProbe() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseProbeErrors(t *testing.T) {
	for _, in := range []string{`not json`, `{"streams":[]}`} {
		if _, err := parseProbe([]byte(in)); err == nil {
			t.Errorf("parseProbe(%q) error = nil, want error", in)
		}
	}
}

func TestFrameArgs(t *testing.T) {
	args := strings.Join(frameArgs("/lib/v.mp4", 60, 640, 360), " ")

	for _, want := range []string{
		`-i /lib/v.mp4`,
		`select=not(mod(n\,60)),scale=640:360`,
		`-f rawvideo`,
		`-pix_fmt rgb24`,
	} {
		if !strings.Contains(args, want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}
	if !strings.HasSuffix(args, " -") {
		t.Errorf("args %q should write to stdout", args)
	}
}

func TestRGB24ToImage(t *testing.T) {
	buf := []byte{
		255, 0, 0, 0, 255, 0,
		0, 0, 255, 10, 20, 30,
	}
	img := rgb24ToImage(buf, 2, 2)

	tests := []struct {
		x, y    int
		r, g, b uint8
	}{
		{0, 0, 255, 0, 0},
		{1, 0, 0, 255, 0},
		{0, 1, 0, 0, 255},
		{1, 1, 10, 20, 30},
	}
	for _, tt := range tests {
		c := img.RGBAAt(tt.x, tt.y)
		if c.R != tt.r || c.G != tt.g || c.B != tt.b || c.A != 255 {
			t.Errorf("pixel (%d,%d) = %v, want {%d %d %d 255}", tt.x, tt.y, c, tt.r, tt.g, tt.b)
		}
	}
}
