package store

import (
	"fmt"

	"github.com/tinylib/msgp/msgp"

	"github.com/chazu/kerf/pkg/kernel"
)

// codecVersion is the first element of every record.
const codecVersion = 1

// float32Size is the encoded size of one float32 (marker plus 4 bytes).
// A uint32 takes at least one byte.
const float32Size = 5

// encodeMesh writes m as the MessagePack array
// [version, partName, [vertices...], [normals...], [indices...]].
func encodeMesh(m *kernel.Mesh) []byte {
	size := 16 + len(m.PartName) + 5*(len(m.Vertices)+len(m.Normals)+len(m.Indices))
	b := make([]byte, 0, size)
	b = msgp.AppendArrayHeader(b, 5)
	b = msgp.AppendUint32(b, codecVersion)
	b = msgp.AppendString(b, m.PartName)

	b = msgp.AppendArrayHeader(b, uint32(len(m.Vertices)))
	for _, v := range m.Vertices {
		b = msgp.AppendFloat32(b, v)
	}
	b = msgp.AppendArrayHeader(b, uint32(len(m.Normals)))
	for _, v := range m.Normals {
		b = msgp.AppendFloat32(b, v)
	}
	b = msgp.AppendArrayHeader(b, uint32(len(m.Indices)))
	for _, idx := range m.Indices {
		b = msgp.AppendUint32(b, idx)
	}
	return b
}

func decodeMesh(b []byte) (*kernel.Mesh, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, fmt.Errorf("decode mesh: %w", err)
	}
	if n != 5 {
		return nil, fmt.Errorf("decode mesh: expected 5 fields, got %d", n)
	}
	version, b, err := msgp.ReadUint32Bytes(b)
	if err != nil {
		return nil, fmt.Errorf("decode mesh version: %w", err)
	}
	if version != codecVersion {
		return nil, fmt.Errorf("decode mesh: unsupported version %d", version)
	}

	m := &kernel.Mesh{}
	if m.PartName, b, err = msgp.ReadStringBytes(b); err != nil {
		return nil, fmt.Errorf("decode mesh part name: %w", err)
	}
	if m.Vertices, b, err = readFloats(b); err != nil {
		return nil, fmt.Errorf("decode mesh vertices: %w", err)
	}
	if m.Normals, b, err = readFloats(b); err != nil {
		return nil, fmt.Errorf("decode mesh normals: %w", err)
	}

	count, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, fmt.Errorf("decode mesh indices: %w", err)
	}
	if int(count) > len(b) {
		return nil, fmt.Errorf("decode mesh indices: %d entries in %d bytes: %w", count, len(b), msgp.ErrShortBytes)
	}
	m.Indices = make([]uint32, count)
	for i := range m.Indices {
		if m.Indices[i], b, err = msgp.ReadUint32Bytes(b); err != nil {
			return nil, fmt.Errorf("decode mesh indices: %w", err)
		}
	}
	if len(m.Vertices)%3 != 0 || len(m.Indices)%3 != 0 {
		return nil, fmt.Errorf("decode mesh: truncated buffers")
	}
	return m, nil
}

func readFloats(b []byte) ([]float32, []byte, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, b, err
	}
	if int(n) > len(b)/float32Size {
		return nil, b, fmt.Errorf("%d entries in %d bytes: %w", n, len(b), msgp.ErrShortBytes)
	}
	out := make([]float32, n)
	for i := range out {
		if out[i], b, err = msgp.ReadFloat32Bytes(b); err != nil {
			return nil, b, err
		}
	}
	return out, b, nil
}
