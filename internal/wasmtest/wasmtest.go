// Package wasmtest assembles small core wasm modules for tests.
//
// Modules are encoded directly in the binary format so that tests do not
// depend on external toolchains or checked-in artifacts.
package wasmtest

import "bytes"

// ValType is a core wasm value type.
type ValType byte

const (
	I32 ValType = 0x7f
	I64 ValType = 0x7e
)

// Instruction opcodes used by the fixtures.
const (
	OpUnreachable byte = 0x00
	OpCall        byte = 0x10
	OpSelect      byte = 0x1b
	OpLocalGet    byte = 0x20
	OpGlobalGet   byte = 0x23
	OpGlobalSet   byte = 0x24
	OpI32Const    byte = 0x41
	OpI64Const    byte = 0x42
	OpI32GeU      byte = 0x4f
	OpI32Add      byte = 0x6a
	opEnd         byte = 0x0b
)

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Import is an imported host function.
type Import struct {
	Module string
	Name   string
	Type   FuncType
}

// Func is a defined function. Empty Name means not exported.
type Func struct {
	Name string
	Type FuncType
	Body []byte
}

// Module describes a module to encode. Function indices start after imports.
type Module struct {
	Imports []Import
	Funcs   []Func
	Data    []byte // placed at offset 0 of memory 0
	Globals int    // mutable i32 globals initialized to 0
	Memory  bool   // one page, exported as "memory"
}

// Encode returns the wasm binary for m.
func (m Module) Encode() []byte {
	var out bytes.Buffer
	out.Write([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00})

	var types [][]byte
	for _, imp := range m.Imports {
		types = append(types, encodeFuncType(imp.Type))
	}
	for _, fn := range m.Funcs {
		types = append(types, encodeFuncType(fn.Type))
	}
	writeSection(&out, 1, vec(types))

	if len(m.Imports) > 0 {
		var imports [][]byte
		for i, imp := range m.Imports {
			var b []byte
			b = append(b, name(imp.Module)...)
			b = append(b, name(imp.Name)...)
			b = append(b, 0x00)
			b = append(b, uleb(uint64(i))...)
			imports = append(imports, b)
		}
		writeSection(&out, 2, vec(imports))
	}

	var funcs [][]byte
	for i := range m.Funcs {
		funcs = append(funcs, uleb(uint64(len(m.Imports)+i)))
	}
	writeSection(&out, 3, vec(funcs))

	memory := m.Memory || len(m.Data) > 0
	if memory {
		writeSection(&out, 5, vec([][]byte{{0x00, 0x01}}))
	}

	if m.Globals > 0 {
		var globals [][]byte
		for i := 0; i < m.Globals; i++ {
			globals = append(globals, []byte{byte(I32), 0x01, OpI32Const, 0x00, opEnd})
		}
		writeSection(&out, 6, vec(globals))
	}

	var exports [][]byte
	for i, fn := range m.Funcs {
		if fn.Name == "" {
			continue
		}
		b := name(fn.Name)
		b = append(b, 0x00)
		b = append(b, uleb(uint64(len(m.Imports)+i))...)
		exports = append(exports, b)
	}
	if memory {
		exports = append(exports, append(name("memory"), 0x02, 0x00))
	}
	writeSection(&out, 7, vec(exports))

	var bodies [][]byte
	for _, fn := range m.Funcs {
		body := append([]byte{0x00}, fn.Body...)
		body = append(body, opEnd)
		bodies = append(bodies, append(uleb(uint64(len(body))), body...))
	}
	writeSection(&out, 10, vec(bodies))

	if len(m.Data) > 0 {
		seg := []byte{0x00, OpI32Const, 0x00, opEnd}
		seg = append(seg, uleb(uint64(len(m.Data)))...)
		seg = append(seg, m.Data...)
		writeSection(&out, 11, vec([][]byte{seg}))
	}

	return out.Bytes()
}

// I32Const encodes i32.const v.
func I32Const(v int32) []byte {
	return append([]byte{OpI32Const}, sleb(int64(v))...)
}

// I64Const encodes i64.const v.
func I64Const(v int64) []byte {
	return append([]byte{OpI64Const}, sleb(v)...)
}

// GlobalGet encodes global.get idx.
func GlobalGet(idx uint32) []byte {
	return append([]byte{OpGlobalGet}, uleb(uint64(idx))...)
}

// GlobalSet encodes global.set idx.
func GlobalSet(idx uint32) []byte {
	return append([]byte{OpGlobalSet}, uleb(uint64(idx))...)
}

// LocalGet encodes local.get idx.
func LocalGet(idx uint32) []byte {
	return append([]byte{OpLocalGet}, uleb(uint64(idx))...)
}

// Call encodes call idx.
func Call(idx uint32) []byte {
	return append([]byte{OpCall}, uleb(uint64(idx))...)
}

// Seq concatenates instruction sequences.
func Seq(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func encodeFuncType(t FuncType) []byte {
	b := []byte{0x60}
	b = append(b, uleb(uint64(len(t.Params)))...)
	for _, p := range t.Params {
		b = append(b, byte(p))
	}
	b = append(b, uleb(uint64(len(t.Results)))...)
	for _, r := range t.Results {
		b = append(b, byte(r))
	}
	return b
}

func writeSection(out *bytes.Buffer, id byte, payload []byte) {
	out.WriteByte(id)
	out.Write(uleb(uint64(len(payload))))
	out.Write(payload)
}

func vec(items [][]byte) []byte {
	b := uleb(uint64(len(items)))
	for _, it := range items {
		b = append(b, it...)
	}
	return b
}

func name(s string) []byte {
	return append(uleb(uint64(len(s))), s...)
}

func uleb(v uint64) []byte {
	var b []byte
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b = append(b, c)
		if v == 0 {
			return b
		}
	}
}

func sleb(v int64) []byte {
	var b []byte
	for {
		c := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0)
		if !done {
			c |= 0x80
		}
		b = append(b, c)
		if done {
			return b
		}
	}
}
