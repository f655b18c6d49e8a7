package embedding

import (
	"image"

	"github.com/disintegration/imaging"

	"material-search/internal/assets"
)

// CLIP normalization constants (RGB order).
var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// Preprocess resizes img so its short side is size, center-crops it to a
// size x size square and writes normalized CHW float32 pixels into dst,
// which must hold 3*size*size values.
func Preprocess(img image.Image, size int, dst []float32) {
	square := imaging.Fill(img, size, size, imaging.Center, imaging.CatmullRom)

	plane := size * size
	for y := 0; y < size; y++ {
		row := square.Pix[y*square.Stride:]
		for x := 0; x < size; x++ {
			px := row[x*4:]
			i := y*size + x
			for c := 0; c < 3; c++ {
				v := float32(px[c]) / 255
				dst[c*plane+i] = (v - clipMean[c]) / clipStd[c]
			}
		}
	}
}

// PreprocessBatch lays out every image back to back in NCHW order.
func PreprocessBatch(images []image.Image, size int) []float32 {
	per := 3 * size * size
	out := make([]float32, per*len(images))
	for i, img := range images {
		Preprocess(img, size, out[i*per:(i+1)*per])
	}
	return out
}

// PadTokens truncates or pads token ids to maxLen and returns them with the
// matching attention mask. When truncating, the last position keeps the
// original final token (the end-of-text marker).
func PadTokens(ids []uint32, maxLen int, padID int64) ([]int64, []int64) {
	inputIDs := make([]int64, maxLen)
	mask := make([]int64, maxLen)

	n := len(ids)
	if n > maxLen {
		n = maxLen
	}
	for i := 0; i < n; i++ {
		inputIDs[i] = int64(ids[i])
		mask[i] = 1
	}
	if len(ids) > maxLen && maxLen > 0 {
		inputIDs[maxLen-1] = int64(ids[len(ids)-1])
	}
	for i := n; i < maxLen; i++ {
		inputIDs[i] = padID
	}
	return inputIDs, mask
}

// RowsToVectors copies a row-major n x dim matrix into n unit vectors.
func RowsToVectors(data []float32, n, dim int) []assets.Vector {
	out := make([]assets.Vector, n)
	for i := range out {
		v := make(assets.Vector, dim)
		copy(v, data[i*dim:(i+1)*dim])
		out[i] = v.Normalize()
	}
	return out
}
