package utils

import (
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

const testMaterial = `newmtl checker
Kd 1.0 1.0 1.0
`

func TestLoadMeshTriangle(t *testing.T) {
	const mesh = `mtllib triangle.mtl
o Triangle
v 0.0 -0.5 0.0
v 0.5 0.5 0.0
v -0.5 0.5 0.0
vt 0.5 1.0
vt 1.0 0.0
vt 0.0 0.0
usemtl checker
f 1/1 2/2 3/3
`
	vertices, indices, err := LoadMesh(strings.NewReader(mesh), strings.NewReader(testMaterial))
	if err != nil {
		t.Fatalf("LoadMesh() failed: %v", err)
	}

	if len(indices) != 3 || indices[0] != 0 || indices[1] != 1 || indices[2] != 2 {
		t.Errorf("indices = %v, want [0 1 2]", indices)
	}
	want := []Vertex{
		{Position: mgl32.Vec3{0, -0.5, 0}, TexCoord: mgl32.Vec2{0.5, 0}},
		{Position: mgl32.Vec3{0.5, 0.5, 0}, TexCoord: mgl32.Vec2{1, 1}},
		{Position: mgl32.Vec3{-0.5, 0.5, 0}, TexCoord: mgl32.Vec2{0, 1}},
	}
	if len(vertices) != len(want) {
		t.Fatalf("len(vertices) = %d, want %d", len(vertices), len(want))
	}
	for i := range want {
		if vertices[i] != want[i] {
			t.Errorf("vertex %d = %+v, want %+v", i, vertices[i], want[i])
		}
	}
}

func TestLoadMeshQuadIsFanned(t *testing.T) {
	const mesh = `mtllib quad.mtl
o Quad
v -1 -1 0
v 1 -1 0
v 1 1 0
v -1 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
usemtl checker
f 1/1 2/2 3/3 4/4
`
	vertices, indices, err := LoadMesh(strings.NewReader(mesh), strings.NewReader(testMaterial))
	if err != nil {
		t.Fatalf("LoadMesh() failed: %v", err)
	}
	if len(vertices) != 4 {
		t.Errorf("len(vertices) = %d, want 4 shared vertices", len(vertices))
	}
	wantIndices := []uint32{0, 1, 2, 0, 2, 3}
	if len(indices) != len(wantIndices) {
		t.Fatalf("indices = %v, want %v", indices, wantIndices)
	}
	for i := range wantIndices {
		if indices[i] != wantIndices[i] {
			t.Errorf("indices = %v, want %v", indices, wantIndices)
			break
		}
	}
}
