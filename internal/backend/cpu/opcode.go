package cpu

import (
	"encoding/binary"
	"fmt"
)

// Opcode list layout: a big-endian uint32 count followed by that many
// records of id, version, flags and parameter size, each a big-endian uint32,
// then the parameter bytes.
const opcodeHeader = 16

func parseOpcodes(b []byte) ([]uint32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b) < 4 {
		return nil, fmt.Errorf("%w: %d byte header", ErrOpcodeList, len(b))
	}
	count := binary.BigEndian.Uint32(b)
	pos := 4
	// Every record needs at least a header, which bounds count by the list size.
	if uint64(count)*opcodeHeader > uint64(len(b)-pos) {
		return nil, fmt.Errorf("%w: %d opcodes in %d bytes", ErrOpcodeList, count, len(b))
	}
	ids := make([]uint32, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(b)-pos < opcodeHeader {
			return nil, fmt.Errorf("%w: opcode %d truncated", ErrOpcodeList, i)
		}
		id := binary.BigEndian.Uint32(b[pos:])
		size := binary.BigEndian.Uint32(b[pos+12:])
		pos += opcodeHeader
		if uint64(size) > uint64(len(b)-pos) {
			return nil, fmt.Errorf("%w: opcode %d (id %d) claims %d parameter bytes", ErrOpcodeList, i, id, size)
		}
		pos += int(size)
		ids = append(ids, id)
	}
	return ids, nil
}
