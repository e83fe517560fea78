package ai

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"kioskhelper/internal/geometry"
	"kioskhelper/internal/models"
	"kioskhelper/internal/vision"
)

var (
	letterboxFill  = color.RGBA{R: 114, G: 114, B: 114, A: 0}
	boxColor       = color.RGBA{R: 0, G: 200, B: 0, A: 0}
	highlightColor = color.RGBA{R: 255, G: 140, B: 0, A: 0}
)

// DecodeFrame turns an encoded JPEG or PNG camera frame into an image.
func DecodeFrame(data []byte) (image.Image, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("decoded image is empty")
	}
	return mat.ToImage()
}

// letterbox resizes src into a size x size canvas padded with gray.
func letterbox(src gocv.Mat, size int) (gocv.Mat, geometry.Letterbox, error) {
	lb := geometry.LetterboxForward(src.Cols(), src.Rows(), size, size)
	newW := max(1, int(math.Round(float64(src.Cols())*lb.Gain)))
	newH := max(1, int(math.Round(float64(src.Rows())*lb.Gain)))

	resized := gocv.NewMat()
	defer resized.Close()
	if err := gocv.Resize(src, &resized, image.Pt(newW, newH), 0, 0, gocv.InterpolationLinear); err != nil {
		return gocv.Mat{}, lb, fmt.Errorf("failed to resize frame: %w", err)
	}

	left := int(math.Floor(lb.PadX))
	top := int(math.Floor(lb.PadY))
	right := max(0, size-newW-left)
	bottom := max(0, size-newH-top)

	boxed := gocv.NewMat()
	if err := gocv.CopyMakeBorder(resized, &boxed, top, bottom, left, right, gocv.BorderConstant, letterboxFill); err != nil {
		boxed.Close()
		return gocv.Mat{}, lb, fmt.Errorf("failed to pad frame: %w", err)
	}
	return boxed, lb, nil
}

func tensorFromMat(m gocv.Mat) (vision.Tensor, error) {
	data, err := m.DataPtrFloat32()
	if err != nil {
		return vision.Tensor{}, fmt.Errorf("failed to read network output: %w", err)
	}
	out := vision.Tensor{Shape: m.Size(), Data: make([]float32, len(data))}
	copy(out.Data, data)
	return out, nil
}

// DrawButtons draws the source-space boxes of buttons on a copy of frame and
// returns it as JPEG. Highlighted ids get a thicker orange box.
func DrawButtons(frame image.Image, buttons []models.TrackedButton, highlighted []int) ([]byte, error) {
	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()

	hot := make(map[int]bool, len(highlighted))
	for _, id := range highlighted {
		hot[id] = true
	}

	for _, b := range buttons {
		c, thickness := boxColor, 2
		if hot[b.ID] {
			c, thickness = highlightColor, 4
		}
		rect := b.RectSource.Image()
		if err := gocv.Rectangle(&mat, rect, c, thickness); err != nil {
			return nil, fmt.Errorf("failed to draw rectangle: %w", err)
		}

		// Hershey nie rysuje koreańskich znaków, tylko ID
		label := fmt.Sprintf("#%d %.2f", b.ID, b.Score)
		if err := gocv.PutText(&mat, label, image.Pt(rect.Min.X, rect.Min.Y-5), gocv.FontHersheySimplex, 0.5, c, 1); err != nil {
			return nil, fmt.Errorf("failed to draw text: %w", err)
		}
	}

	buf, err := gocv.IMEncode(".jpg", mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	encoded := make([]byte, len(buf.GetBytes()))
	copy(encoded, buf.GetBytes())
	return encoded, nil
}
