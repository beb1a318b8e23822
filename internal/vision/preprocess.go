package vision

import (
	"image"

	"golang.org/x/image/draw"
)

func preprocessForDetection(img image.Image, w, h int) []float32 {
	return toCHW(img, w, h, [3]float32{127.5, 127.5, 127.5}, [3]float32{128, 128, 128})
}

func preprocessForEmbedding(img image.Image, w, h int) []float32 {
	return toCHW(img, w, h, [3]float32{127.5, 127.5, 127.5}, [3]float32{127.5, 127.5, 127.5})
}

// toCHW resizes img to w x h and lays it out as planar RGB floats,
// normalised as (pixel - mean) / std.
func toCHW(img image.Image, w, h int, mean, std [3]float32) []float32 {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	plane := w * h
	data := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := dst.PixOffset(x, y)
			idx := y*w + x
			data[idx] = (float32(dst.Pix[off]) - mean[0]) / std[0]
			data[plane+idx] = (float32(dst.Pix[off+1]) - mean[1]) / std[1]
			data[2*plane+idx] = (float32(dst.Pix[off+2]) - mean[2]) / std[2]
		}
	}
	return data
}
