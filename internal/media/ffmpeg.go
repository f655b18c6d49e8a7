package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"material-search/internal/logging"
)

// DefaultMaxFrameDimension bounds decoded frames. The embedder crops to a
// few hundred pixels, so full-resolution 4K frames only cost memory.
const DefaultMaxFrameDimension = 640

// FFmpeg probes videos with ffprobe and decodes sampled frames with ffmpeg.
type FFmpeg struct {
	FFmpegPath   string
	FFprobePath  string
	MaxDimension int
}

// NewFFmpeg returns an FFmpeg using the binaries on PATH.
func NewFFmpeg() *FFmpeg {
	return &FFmpeg{
		FFmpegPath:   "ffmpeg",
		FFprobePath:  "ffprobe",
		MaxDimension: DefaultMaxFrameDimension,
	}
}

// Available reports whether both binaries can be found.
func (f *FFmpeg) Available() bool {
	if _, err := exec.LookPath(f.FFmpegPath); err != nil {
		return false
	}
	_, err := exec.LookPath(f.FFprobePath)
	return err == nil
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

type probeStream struct {
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	NbFrames     string `json:"nb_frames"`
	Duration     string `json:"duration"`
	Tags         struct {
		Rotate string `json:"rotate"`
	} `json:"tags"`
	SideDataList []struct {
		Rotation float64 `json:"rotation"`
	} `json:"side_data_list"`
}

// Probe reads frame rate, frame count and display size of the first video
// stream.
func (f *FFmpeg) Probe(ctx context.Context, path string) (VideoInfo, error) {
	cmd := exec.CommandContext(ctx, f.FFprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe error: %w - %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseProbe(stdout.Bytes())
}

func parseProbe(data []byte) (VideoInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return VideoInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return VideoInfo{}, errors.New("no video stream")
	}
	s := out.Streams[0]

	info := VideoInfo{
		FPS:    parseRate(s.AvgFrameRate),
		Width:  s.Width,
		Height: s.Height,
	}
	if info.FPS <= 0 {
		info.FPS = parseRate(s.RFrameRate)
	}

	if n, err := strconv.ParseInt(s.NbFrames, 10, 64); err == nil && n > 0 {
		info.TotalFrames = n
	} else {
		duration := s.Duration
		if duration == "" {
			duration = out.Format.Duration
		}
		if d, err := strconv.ParseFloat(duration, 64); err == nil && d > 0 && info.FPS > 0 {
			info.TotalFrames = int64(math.Round(d * info.FPS))
		}
	}

	// ffmpeg auto-rotates on decode, so the output frames use display size.
	if quarterTurn(s) {
		info.Width, info.Height = info.Height, info.Width
	}
	return info, nil
}

func quarterTurn(s probeStream) bool {
	rotation := 0.0
	if r, err := strconv.ParseFloat(s.Tags.Rotate, 64); err == nil {
		rotation = r
	}
	for _, sd := range s.SideDataList {
		if sd.Rotation != 0 {
			rotation = sd.Rotation
		}
	}
	deg := int(math.Abs(rotation)) % 180
	return deg == 90
}

// parseRate parses ffprobe rationals such as "30000/1001".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// Open starts ffmpeg decoding every frame of path and emitting one raw RGB
// frame for every step decoded frames, beginning with frame 0.
func (f *FFmpeg) Open(ctx context.Context, path string, info VideoInfo, step int64) (VideoSource, error) {
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("video %s reports no frame size", path)
	}

	width, height := info.Width, info.Height
	if f.MaxDimension > 0 && (width > f.MaxDimension || height > f.MaxDimension) {
		width, height = fitWithin(width, height, f.MaxDimension)
	}

	cmd := exec.CommandContext(ctx, f.FFmpegPath, frameArgs(path, step, width, height)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	src := &ffmpegSource{
		cmd:    cmd,
		stdout: stdout,
		info:   info,
		width:  width,
		height: height,
		buf:    make([]byte, width*height*3),
	}
	cmd.Stderr = &src.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	logging.Debug("Sampling %s every %d frames at %dx%d", path, step, width, height)
	return src, nil
}

func frameArgs(path string, step int64, width, height int) []string {
	filter := fmt.Sprintf(`select=not(mod(n\,%d)),scale=%d:%d`, step, width, height)
	return []string{
		"-v", "error",
		"-nostdin",
		"-i", path,
		"-map", "0:v:0",
		"-vf", filter,
		"-vsync", "vfr",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-",
	}
}

type ffmpegSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr bytes.Buffer
	info   VideoInfo
	width  int
	height int
	buf    []byte
	frames int
	waited bool
}

func (s *ffmpegSource) Info() VideoInfo {
	return s.info
}

func (s *ffmpegSource) Next() (image.Image, error) {
	_, err := io.ReadFull(s.stdout, s.buf)
	switch {
	case err == nil:
		s.frames++
		return rgb24ToImage(s.buf, s.width, s.height), nil
	case errors.Is(err, io.EOF):
		if waitErr := s.wait(); waitErr != nil && s.frames == 0 {
			return nil, fmt.Errorf("ffmpeg error: %w - %s", waitErr, strings.TrimSpace(s.stderr.String()))
		}
		return nil, io.EOF
	default:
		_ = s.wait()
		return nil, fmt.Errorf("truncated frame: %w - %s", err, strings.TrimSpace(s.stderr.String()))
	}
}

func (s *ffmpegSource) wait() error {
	if s.waited {
		return nil
	}
	s.waited = true
	return s.cmd.Wait()
}

func (s *ffmpegSource) Close() error {
	if s.waited {
		return nil
	}
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.wait()
	return nil
}

// rgb24ToImage copies packed RGB bytes into a new RGBA image.
func rgb24ToImage(buf []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i, j := 0, 0; i+2 < len(buf) && j+3 < len(img.Pix); i, j = i+3, j+4 {
		img.Pix[j] = buf[i]
		img.Pix[j+1] = buf[i+1]
		img.Pix[j+2] = buf[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}
