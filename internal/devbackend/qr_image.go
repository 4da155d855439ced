package devbackend

import (
	"bytes"
	"crypto/sha256"
	"image"
	"image/png"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	qrModules = 21
	qrScale   = 8
	qrQuiet   = 4
)

// handleQRImage serves the image behind a reference issued by /generate-qr. It is a
// placeholder: the module pattern is derived from the reference, not an encoded payment.
func (s *Server) handleQRImage(c *fiber.Ctx) error {
	file := c.Params("file")
	name, ok := strings.CutSuffix(file, ".png")
	if !ok {
		return s.fail(c, http.StatusNotFound, "QR image not found")
	}
	if _, err := uuid.Parse(name); err != nil {
		return s.fail(c, http.StatusNotFound, "QR image not found")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, placeholderQR(name+"|"+c.Query("amount")+"|"+c.Query("app"))); err != nil {
		return s.fail(c, http.StatusInternalServerError, "Could not render QR image")
	}
	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(buf.Bytes())
}

func placeholderQR(seed string) *image.Gray {
	size := (qrModules + 2*qrQuiet) * qrScale
	img := image.NewGray(image.Rect(0, 0, size, size))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	sum := sha256.Sum256([]byte(seed))
	for y := 0; y < qrModules; y++ {
		for x := 0; x < qrModules; x++ {
			if !moduleOn(sum[:], x, y) {
				continue
			}
			x0, y0 := (x+qrQuiet)*qrScale, (y+qrQuiet)*qrScale
			for py := y0; py < y0+qrScale; py++ {
				for px := x0; px < x0+qrScale; px++ {
					img.Pix[py*img.Stride+px] = 0
				}
			}
		}
	}
	return img
}

func moduleOn(sum []byte, x, y int) bool {
	if on, fixed := finderModule(x, y); fixed {
		return on
	}
	bit := (y*qrModules + x) % (len(sum) * 8)
	return sum[bit/8]>>(bit%8)&1 == 1
}

// finderModule reports whether (x, y) belongs to one of the three corner squares, including
// their one-module white border, and if so whether it is dark.
func finderModule(x, y int) (on, fixed bool) {
	for _, o := range [][2]int{{0, 0}, {qrModules - 7, 0}, {0, qrModules - 7}} {
		dx, dy := x-o[0], y-o[1]
		if dx < -1 || dy < -1 || dx > 7 || dy > 7 {
			continue
		}
		if dx < 0 || dy < 0 || dx > 6 || dy > 6 {
			return false, true
		}
		ring := dx == 0 || dy == 0 || dx == 6 || dy == 6
		core := dx >= 2 && dx <= 4 && dy >= 2 && dy <= 4
		return ring || core, true
	}
	return false, false
}
