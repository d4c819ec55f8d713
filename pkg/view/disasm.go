package view

import (
	"encoding/binary"
	"strconv"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"
)

// ArchARM64 selects AArch64 decoding of raw instruction words.
const ArchARM64 = "arm64"

// decodeInstruction rewrites a `.word 0x...` payload into assembly when arch
// is known and the word decodes. Anything else is returned unchanged.
func decodeInstruction(arch, payload string) string {
	if arch != ArchARM64 {
		return payload
	}
	rest, ok := strings.CutPrefix(strings.TrimSpace(payload), ".word")
	if !ok {
		return payload
	}
	raw, err := strconv.ParseUint(strings.TrimSpace(rest), 0, 32)
	if err != nil {
		return payload
	}

	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(raw))
	inst, err := arm64asm.Decode(buf)
	if err != nil {
		return payload
	}
	return inst.String()
}
