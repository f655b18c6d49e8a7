package clip

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"material-search/internal/assets"
	"material-search/internal/embedding"
	"material-search/internal/logging"
)

// Config locates the exported CLIP model and describes its tensors.
type Config struct {
	// ModelDir holds visual.onnx, textual.onnx and tokenizer.json.
	ModelDir string
	// LibraryPath is the onnxruntime shared library. Empty uses the
	// platform default search path.
	LibraryPath string
	Dimension   int
	ImageSize   int
	MaxTokens   int
	PadTokenID  int64
	Threads     int

	ImageInput  string
	ImageOutput string
	TextInputs  [2]string // input ids, attention mask
	TextOutput  string
}

// DefaultConfig matches a ViT-B/32 export from HuggingFace optimum.
func DefaultConfig(modelDir string) Config {
	return Config{
		ModelDir:    modelDir,
		Dimension:   512,
		ImageSize:   224,
		MaxTokens:   77,
		PadTokenID:  49407,
		ImageInput:  "pixel_values",
		ImageOutput: "image_embeds",
		TextInputs:  [2]string{"input_ids", "attention_mask"},
		TextOutput:  "text_embeds",
	}
}

// Model runs a CLIP image and text encoder through onnxruntime. It is not
// safe for concurrent use; wrap it in embedding.Serialized.
type Model struct {
	cfg       Config
	visual    *ort.DynamicAdvancedSession
	textual   *ort.DynamicAdvancedSession
	tokenizer *Tokenizer
	once      sync.Once
}

// New initializes onnxruntime and loads both encoders and the tokenizer.
func New(cfg Config) (*Model, error) {
	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("init onnxruntime: %w", err)
		}
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer func() { _ = opts.Destroy() }()
	if cfg.Threads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.Threads); err != nil {
			return nil, fmt.Errorf("set intra-op threads: %w", err)
		}
	}

	c := &Model{cfg: cfg}

	c.visual, err = ort.NewDynamicAdvancedSession(
		filepath.Join(cfg.ModelDir, "visual.onnx"),
		[]string{cfg.ImageInput},
		[]string{cfg.ImageOutput},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("load visual encoder: %w", err)
	}

	c.textual, err = ort.NewDynamicAdvancedSession(
		filepath.Join(cfg.ModelDir, "textual.onnx"),
		cfg.TextInputs[:],
		[]string{cfg.TextOutput},
		opts,
	)
	if err != nil {
		_ = c.visual.Destroy()
		return nil, fmt.Errorf("load text encoder: %w", err)
	}

	c.tokenizer, err = NewTokenizer(filepath.Join(cfg.ModelDir, "tokenizer.json"), cfg.MaxTokens, cfg.PadTokenID)
	if err != nil {
		_ = c.visual.Destroy()
		_ = c.textual.Destroy()
		return nil, err
	}

	logging.Info("  [OK] CLIP model loaded from %s (dim=%d, input=%dpx)", cfg.ModelDir, cfg.Dimension, cfg.ImageSize)
	return c, nil
}

// EmbedImages runs the visual encoder on the whole batch in one call.
func (c *Model) EmbedImages(ctx context.Context, images []image.Image) ([]assets.Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := int64(len(images))
	size := int64(c.cfg.ImageSize)

	input, err := ort.NewTensor(ort.NewShape(n, 3, size, size), embedding.PreprocessBatch(images, c.cfg.ImageSize))
	if err != nil {
		return nil, fmt.Errorf("create image tensor: %w", err)
	}
	defer func() { _ = input.Destroy() }()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(n, int64(c.cfg.Dimension)))
	if err != nil {
		return nil, fmt.Errorf("create image output tensor: %w", err)
	}
	defer func() { _ = output.Destroy() }()

	if err := c.visual.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return nil, fmt.Errorf("visual inference: %w", err)
	}

	return embedding.RowsToVectors(output.GetData(), len(images), c.cfg.Dimension), nil
}

// EmbedText runs the text encoder on one query.
func (c *Model) EmbedText(ctx context.Context, text string) (assets.Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids, mask := c.tokenizer.Encode(text)
	shape := ort.NewShape(1, int64(c.cfg.MaxTokens))

	idsTensor, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, fmt.Errorf("create ids tensor: %w", err)
	}
	defer func() { _ = idsTensor.Destroy() }()

	maskTensor, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, fmt.Errorf("create mask tensor: %w", err)
	}
	defer func() { _ = maskTensor.Destroy() }()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(c.cfg.Dimension)))
	if err != nil {
		return nil, fmt.Errorf("create text output tensor: %w", err)
	}
	defer func() { _ = output.Destroy() }()

	if err := c.textual.Run([]ort.Value{idsTensor, maskTensor}, []ort.Value{output}); err != nil {
		return nil, fmt.Errorf("text inference: %w", err)
	}

	return embedding.RowsToVectors(output.GetData(), 1, c.cfg.Dimension)[0], nil
}

// Dimension returns the embedding size.
func (c *Model) Dimension() int {
	return c.cfg.Dimension
}

// Close releases the sessions, the tokenizer and the onnxruntime environment.
func (c *Model) Close() error {
	var firstErr error
	c.once.Do(func() {
		for _, destroy := range []func() error{
			c.visual.Destroy,
			c.textual.Destroy,
			c.tokenizer.Close,
			ort.DestroyEnvironment,
		} {
			if err := destroy(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	})
	return firstErr
}
