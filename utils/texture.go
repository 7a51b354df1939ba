package utils

// CheckerboardTexture returns width x height RGBA8 texels laid out as an
// 8 x 8 board of opaque black and white cells, row-major with no padding.
func CheckerboardTexture(width, height int) []byte {
	rowPitch := width * TexelSize
	cellPitch := rowPitch >> 3
	cellHeight := width >> 3
	if cellPitch < TexelSize {
		cellPitch = TexelSize
	}
	if cellHeight < 1 {
		cellHeight = 1
	}

	data := make([]byte, rowPitch*height)
	for n := 0; n < len(data); n += TexelSize {
		x := n % rowPitch
		y := n / rowPitch
		i := x / cellPitch
		j := y / cellHeight

		var c byte = 0xff
		if i%2 == j%2 {
			c = 0x00
		}
		data[n] = c
		data[n+1] = c
		data[n+2] = c
		data[n+3] = 0xff
	}

	return data
}
