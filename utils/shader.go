package utils

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/naga"
)

// CompileWGSL compiles WGSL source into SPIR-V words ready for a shader
// module.
func CompileWGSL(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compile shader")
	}
	if len(spirvBytes)%4 != 0 {
		return nil, errors.Errorf("spir-v output is %d bytes, not a whole number of words", len(spirvBytes))
	}
	return BytesToBytecode(spirvBytes), nil
}

// BytesToBytecode packs little-endian bytes into 32-bit SPIR-V words.
func BytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode
}
