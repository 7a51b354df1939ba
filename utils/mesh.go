package utils

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"
)

// Vertex is the vertex buffer layout: position then texture coordinate.
type Vertex struct {
	Position mgl32.Vec3
	TexCoord mgl32.Vec2
}

// LoadMesh decodes an OBJ mesh and its material library into a vertex and
// index list. Faces are fanned into triangles, vertices are shared between
// faces, and V coordinates are flipped to Vulkan's top-left origin.
func LoadMesh(objFile, mtlFile io.Reader) ([]Vertex, []uint32, error) {
	decoder, err := obj.DecodeReader(objFile, mtlFile)
	if err != nil {
		return nil, nil, errors.Wrap(err, "decode mesh")
	}

	var vertices []Vertex
	var indices []uint32
	unique := make(map[[2]int]uint32)

	addVertex := func(face obj.Face, corner int) error {
		vertInd := face.Vertices[corner]
		uvInd := -1
		if corner < len(face.Uvs) {
			uvInd = face.Uvs[corner]
		}

		key := [2]int{vertInd, uvInd}
		index, exists := unique[key]
		if !exists {
			if (vertInd+1)*3 > len(decoder.Vertices) {
				return errors.Errorf("face refers to missing vertex %d", vertInd)
			}
			vert := Vertex{Position: mgl32.Vec3{
				decoder.Vertices[vertInd*3],
				decoder.Vertices[vertInd*3+1],
				decoder.Vertices[vertInd*3+2],
			}}
			if uvInd >= 0 && (uvInd+1)*2 <= len(decoder.Uvs) {
				vert.TexCoord = mgl32.Vec2{
					decoder.Uvs[uvInd*2],
					1.0 - decoder.Uvs[uvInd*2+1],
				}
			}

			index = uint32(len(vertices))
			vertices = append(vertices, vert)
			unique[key] = index
		}

		indices = append(indices, index)
		return nil
	}

	for _, decodedObj := range decoder.Objects {
		for _, face := range decodedObj.Faces {
			for i := 2; i < len(face.Vertices); i++ {
				for _, corner := range []int{0, i - 1, i} {
					if err := addVertex(face, corner); err != nil {
						return nil, nil, err
					}
				}
			}
		}
	}

	if len(indices) == 0 {
		return nil, nil, errors.New("mesh has no faces")
	}
	return vertices, indices, nil
}
