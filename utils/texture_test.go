package utils

import "testing"

func TestCheckerboardTexture(t *testing.T) {
	data := CheckerboardTexture(TextureWidth, TextureHeight)
	if len(data) != TextureWidth*TextureHeight*TexelSize {
		t.Fatalf("len = %d, want %d", len(data), TextureWidth*TextureHeight*TexelSize)
	}

	texel := func(x, y int) []byte {
		n := (y*TextureWidth + x) * TexelSize
		return data[n : n+TexelSize]
	}

	tests := []struct {
		x, y int
		want byte
	}{
		{0, 0, 0x00},
		{31, 31, 0x00},
		{32, 0, 0xff},
		{0, 32, 0xff},
		{32, 32, 0x00},
		{255, 0, 0xff},
		{255, 255, 0x00},
	}
	for _, tt := range tests {
		got := texel(tt.x, tt.y)
		if got[0] != tt.want || got[1] != tt.want || got[2] != tt.want {
			t.Errorf("texel(%d, %d) = %v, want color %#x", tt.x, tt.y, got, tt.want)
		}
	}

	for n := 3; n < len(data); n += TexelSize {
		if data[n] != 0xff {
			t.Fatalf("alpha at byte %d = %#x, want opaque", n, data[n])
		}
	}
}

func TestCheckerboardTextureTiny(t *testing.T) {
	data := CheckerboardTexture(4, 4)
	if len(data) != 4*4*TexelSize {
		t.Fatalf("len = %d, want %d", len(data), 4*4*TexelSize)
	}
	if data[0] != 0x00 || data[TexelSize] != 0xff {
		t.Errorf("first row = %v, want alternating black and white", data[:2*TexelSize])
	}
}
