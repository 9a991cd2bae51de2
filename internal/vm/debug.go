package vm

import "fmt"

// DisassembleChunk writes a human-readable instruction trace for chunk to
// out, one instruction per line with source-line annotations — a debugging
// aid only, never consulted by the dispatch loop itself.
func DisassembleChunk(c *Chunk, name string, out func(string)) {
	out(fmt.Sprintf("== %s ==", name))
	for offset := 0; offset < len(c.Code); {
		offset = disassembleInstruction(c, offset, out)
	}
}

// InstructionSize returns how many bytes the instruction at offset occupies,
// without emitting any disassembly text — used to walk a chunk's
// instruction boundaries for purposes other than printing, such as grouping
// a class's methods for a sorted summary.
func InstructionSize(c *Chunk, offset int) int {
	switch OpCode(c.Code[offset]) {
	case OpConstant, OpDefineGlobal, OpGetGlobal, OpSetGlobal, OpGetProperty,
		OpSetProperty, OpGetSuper, OpClass, OpMethod, OpDel,
		OpGetLocal, OpSetLocal, OpGetUpvalue, OpSetUpvalue, OpCall:
		return 2
	case OpConstantLong:
		return 4
	case OpInvoke, OpSuperInvoke, OpJump, OpJumpIfFalse, OpJumpIfEmpty, OpLoop:
		return 3
	case OpClosure:
		size := 2
		if fn, ok := c.Constants[c.Code[offset+1]].AsObj().(*Function); ok {
			size += 2 * fn.UpvalueCount
		}
		return size
	default:
		return 1
	}
}

func disassembleInstruction(c *Chunk, offset int, out func(string)) int {
	prefix := fmt.Sprintf("%04d ", offset)
	if offset > 0 && c.LineAt(offset) == c.LineAt(offset-1) {
		prefix += "   | "
	} else {
		prefix += fmt.Sprintf("%4d ", c.LineAt(offset))
	}

	op := OpCode(c.Code[offset])
	name := op.String()

	switch op {
	case OpConstant, OpDefineGlobal, OpGetGlobal, OpSetGlobal, OpGetProperty,
		OpSetProperty, OpGetSuper, OpClass, OpMethod, OpDel:
		constant := c.Code[offset+1]
		out(fmt.Sprintf("%s%-18s %4d '%s'", prefix, name, constant, formatValue(c.Constants[constant])))
		return offset + 2

	case OpConstantLong:
		idx := int(c.Code[offset+1])<<16 | int(c.Code[offset+2])<<8 | int(c.Code[offset+3])
		out(fmt.Sprintf("%s%-18s %4d '%s'", prefix, name, idx, formatValue(c.Constants[idx])))
		return offset + 4

	case OpGetLocal, OpSetLocal, OpGetUpvalue, OpSetUpvalue, OpCall:
		slot := c.Code[offset+1]
		out(fmt.Sprintf("%s%-18s %4d", prefix, name, slot))
		return offset + 2

	case OpInvoke, OpSuperInvoke:
		constant := c.Code[offset+1]
		argCount := c.Code[offset+2]
		out(fmt.Sprintf("%s%-18s (%d args) %4d '%s'", prefix, name, argCount, constant, formatValue(c.Constants[constant])))
		return offset + 3

	case OpJump, OpJumpIfFalse, OpJumpIfEmpty:
		jump := int(c.Code[offset+1])<<8 | int(c.Code[offset+2])
		out(fmt.Sprintf("%s%-18s %4d -> %d", prefix, name, offset, offset+3+jump))
		return offset + 3

	case OpLoop:
		jump := int(c.Code[offset+1])<<8 | int(c.Code[offset+2])
		out(fmt.Sprintf("%s%-18s %4d -> %d", prefix, name, offset, offset+3-jump))
		return offset + 3

	case OpClosure:
		constant := c.Code[offset+1]
		out(fmt.Sprintf("%s%-18s %4d '%s'", prefix, name, constant, formatValue(c.Constants[constant])))
		offset += 2
		if fn, ok := c.Constants[constant].AsObj().(*Function); ok {
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := c.Code[offset]
				index := c.Code[offset+1]
				kind := "upvalue"
				if isLocal != 0 {
					kind = "local"
				}
				out(fmt.Sprintf("%04d      |                     %s %d", offset, kind, index))
				offset += 2
			}
		}
		return offset

	default:
		out(prefix + name)
		return offset + 1
	}
}
