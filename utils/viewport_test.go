package utils

import "testing"

func TestSquareViewport(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		wantY         float32
	}{
		{"square", 600, 600, 0},
		{"tall", 600, 800, 100},
		{"wide", 800, 600, -100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := SquareViewport(tt.width, tt.height)
			if v.Width != v.Height || v.Width != float32(tt.width) {
				t.Errorf("viewport size = %vx%v, want %dx%d", v.Width, v.Height, tt.width, tt.width)
			}
			if v.X != 0 || v.Y != tt.wantY {
				t.Errorf("viewport origin = (%v, %v), want (0, %v)", v.X, v.Y, tt.wantY)
			}
			// The centre of clip space stays at the centre of the target.
			if cy := v.Y + v.Height/2; cy != float32(tt.height)/2 {
				t.Errorf("viewport centre y = %v, want %v", cy, float32(tt.height)/2)
			}
			if v.MinDepth != 0 || v.MaxDepth != 1 {
				t.Errorf("depth range = [%v, %v], want [0, 1]", v.MinDepth, v.MaxDepth)
			}
		})
	}
}
