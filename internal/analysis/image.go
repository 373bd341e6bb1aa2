package analysis

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"math/rand"
)

// maxSampledPixels caps how many pixels the clustering and segmentation steps
// look at. Larger uploads are walked with a uniform stride so runtime stays
// bounded regardless of camera resolution.
const maxSampledPixels = 32768

type labPixel struct {
	l, a, b float64
}

// sampledImage holds a strided view of the decoded image: Lab pixels for
// clustering, gray levels for segmentation, plus the grid geometry needed to
// scale measurements back to source coordinates.
type sampledImage struct {
	lab    []labPixel
	gray   []uint8
	width  int
	height int
	stride int
}

func decodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

func sampleImage(img image.Image) sampledImage {
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	stride := 1
	for (srcW/stride)*(srcH/stride) > maxSampledPixels {
		stride++
	}

	width := srcW / stride
	height := srcH / stride
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}

	sampled := sampledImage{
		lab:    make([]labPixel, 0, width*height),
		gray:   make([]uint8, 0, width*height),
		width:  width,
		height: height,
		stride: stride,
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x*stride, bounds.Min.Y+y*stride).RGBA()
			r8 := float64(r >> 8)
			g8 := float64(g >> 8)
			b8 := float64(b >> 8)
			sampled.lab = append(sampled.lab, rgbToLab(r8, g8, b8))
			sampled.gray = append(sampled.gray, uint8(0.299*r8+0.587*g8+0.114*b8))
		}
	}
	return sampled
}

func rgbToLab(r, g, b float64) labPixel {
	rl := srgbToLinear(r / 255)
	gl := srgbToLinear(g / 255)
	bl := srgbToLinear(b / 255)

	x := 0.4124564*rl + 0.3575761*gl + 0.1804375*bl
	y := 0.2126729*rl + 0.7151522*gl + 0.0721750*bl
	z := 0.0193339*rl + 0.1191920*gl + 0.9503041*bl

	// D65 reference white
	fx := labF(x / 0.95047)
	fy := labF(y)
	fz := labF(z / 1.08883)

	return labPixel{
		l: 116*fy - 16,
		a: 500 * (fx - fy),
		b: 200 * (fy - fz),
	}
}

func srgbToLinear(c float64) float64 {
	if c <= 0.04045 {
		return c / 12.92
	}
	return math.Pow((c+0.055)/1.055, 2.4)
}

func labF(t float64) float64 {
	const delta = 6.0 / 29.0
	if t > delta*delta*delta {
		return math.Cbrt(t)
	}
	return t/(3*delta*delta) + 4.0/29.0
}

// kmeansLab clusters Lab pixels with k-means++ seeding. Runs a handful of
// restarts and keeps the assignment with the lowest total distortion.
func kmeansLab(pixels []labPixel, k int, rng *rand.Rand) (labels []int, centers []labPixel) {
	const (
		attempts      = 5
		maxIterations = 20
		epsilon       = 1.0
	)

	if len(pixels) == 0 || k <= 0 {
		return nil, nil
	}
	if len(pixels) <= k {
		labels = make([]int, len(pixels))
		centers = make([]labPixel, len(pixels))
		for i, p := range pixels {
			labels[i] = i
			centers[i] = p
		}
		return labels, centers
	}

	bestCost := math.Inf(1)
	for attempt := 0; attempt < attempts; attempt++ {
		cand := seedCenters(pixels, k, rng)
		candLabels := make([]int, len(pixels))

		for iter := 0; iter < maxIterations; iter++ {
			for i, p := range pixels {
				candLabels[i] = nearestCenter(p, cand)
			}
			moved := recomputeCenters(pixels, candLabels, cand)
			if moved < epsilon {
				break
			}
		}

		cost := 0.0
		for i, p := range pixels {
			cost += labDistSq(p, cand[candLabels[i]])
		}
		if cost < bestCost {
			bestCost = cost
			labels = append(labels[:0], candLabels...)
			centers = append(centers[:0], cand...)
		}
	}
	return labels, centers
}

func seedCenters(pixels []labPixel, k int, rng *rand.Rand) []labPixel {
	centers := make([]labPixel, 0, k)
	centers = append(centers, pixels[rng.Intn(len(pixels))])

	dist := make([]float64, len(pixels))
	for len(centers) < k {
		total := 0.0
		for i, p := range pixels {
			d := math.Inf(1)
			for _, c := range centers {
				if v := labDistSq(p, c); v < d {
					d = v
				}
			}
			dist[i] = d
			total += d
		}
		if total == 0 {
			// remaining pixels coincide with existing centers
			centers = append(centers, pixels[rng.Intn(len(pixels))])
			continue
		}
		target := rng.Float64() * total
		chosen := len(pixels) - 1
		acc := 0.0
		for i, d := range dist {
			acc += d
			if acc >= target {
				chosen = i
				break
			}
		}
		centers = append(centers, pixels[chosen])
	}
	return centers
}

func nearestCenter(p labPixel, centers []labPixel) int {
	best := 0
	bestDist := math.Inf(1)
	for i, c := range centers {
		if d := labDistSq(p, c); d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

func recomputeCenters(pixels []labPixel, labels []int, centers []labPixel) float64 {
	sums := make([]labPixel, len(centers))
	counts := make([]int, len(centers))
	for i, p := range pixels {
		idx := labels[i]
		sums[idx].l += p.l
		sums[idx].a += p.a
		sums[idx].b += p.b
		counts[idx]++
	}

	maxMove := 0.0
	for i := range centers {
		if counts[i] == 0 {
			continue
		}
		next := labPixel{
			l: sums[i].l / float64(counts[i]),
			a: sums[i].a / float64(counts[i]),
			b: sums[i].b / float64(counts[i]),
		}
		if move := math.Sqrt(labDistSq(centers[i], next)); move > maxMove {
			maxMove = move
		}
		centers[i] = next
	}
	return maxMove
}

func labDistSq(a, b labPixel) float64 {
	dl := a.l - b.l
	da := a.a - b.a
	db := a.b - b.b
	return dl*dl + da*da + db*db
}

// otsuThreshold picks the gray level that maximizes between-class variance.
func otsuThreshold(gray []uint8) uint8 {
	var hist [256]int
	for _, g := range gray {
		hist[g]++
	}
	total := len(gray)
	if total == 0 {
		return 0
	}

	sum := 0.0
	for i, count := range hist {
		sum += float64(i) * float64(count)
	}

	sumB := 0.0
	wB := 0
	best := 0.0
	threshold := uint8(0)
	for i := 0; i < 256; i++ {
		wB += hist[i]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(i) * float64(hist[i])
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = uint8(i)
		}
	}
	return threshold
}

// largestForegroundRadius segments the sampled grid with an Otsu threshold
// (foreground = darker side, matching an inverted binary threshold), finds the
// largest 4-connected component, and returns its enclosing radius in source
// pixel coordinates. Returns ok=false when nothing segments as foreground.
func largestForegroundRadius(s sampledImage) (float64, bool) {
	threshold := otsuThreshold(s.gray)
	foreground := make([]bool, len(s.gray))
	any := false
	for i, g := range s.gray {
		if g <= threshold {
			foreground[i] = true
			any = true
		}
	}
	if !any {
		return 0, false
	}

	visited := make([]bool, len(s.gray))
	var bestComponent []int
	queue := make([]int, 0, 256)

	for start := range foreground {
		if !foreground[start] || visited[start] {
			continue
		}
		component := []int{}
		queue = append(queue[:0], start)
		visited[start] = true
		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			component = append(component, idx)

			x := idx % s.width
			y := idx / s.width
			neighbors := [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}}
			for _, n := range neighbors {
				nx, ny := n[0], n[1]
				if nx < 0 || ny < 0 || nx >= s.width || ny >= s.height {
					continue
				}
				nidx := ny*s.width + nx
				if foreground[nidx] && !visited[nidx] {
					visited[nidx] = true
					queue = append(queue, nidx)
				}
			}
		}
		if len(component) > len(bestComponent) {
			bestComponent = component
		}
	}

	if len(bestComponent) == 0 {
		return 0, false
	}

	cx, cy := 0.0, 0.0
	for _, idx := range bestComponent {
		cx += float64(idx % s.width)
		cy += float64(idx / s.width)
	}
	cx /= float64(len(bestComponent))
	cy /= float64(len(bestComponent))

	radius := 0.0
	for _, idx := range bestComponent {
		dx := float64(idx%s.width) - cx
		dy := float64(idx/s.width) - cy
		if d := math.Sqrt(dx*dx + dy*dy); d > radius {
			radius = d
		}
	}
	return radius * float64(s.stride), true
}
