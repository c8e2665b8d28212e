// Package evmasm holds the concrete EVM assembly representation: a list of
// items (instructions, pushes, tags, data references), nested sub-assemblies
// and data blobs, plus address resolution down to bytecode.
package evmasm

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/silexlang/silex/internal/evm"
	"github.com/silexlang/silex/internal/sourcecode"
)

// TagID identifies a jump destination within one assembly.
type TagID uint64

// ItemKind discriminates assembly items.
type ItemKind uint8

const (
	Operation ItemKind = iota
	Push
	PushTag
	Tag
	PushData
	PushSub
	PushSubSize
	PushProgramSize
	PushLibraryAddress
	PushImmutable
	AssignImmutable
)

// Item is one assembly element. Which fields are meaningful depends on Kind.
type Item struct {
	Kind ItemKind
	Inst evm.Instruction // Operation
	Data []byte          // Push immediate, shortest big-endian form
	Tag  TagID           // PushTag, Tag
	Hash [32]byte        // PushData
	Sub  int             // PushSub, PushSubSize
	Name string          // PushLibraryAddress, PushImmutable, AssignImmutable
	Span sourcecode.Span
}

// Deposit returns the net stack effect of executing the item.
func (it Item) Deposit() int {
	switch it.Kind {
	case Operation:
		return it.Inst.StackDelta()
	case Push, PushTag, PushData, PushSub, PushSubSize, PushProgramSize,
		PushLibraryAddress, PushImmutable:
		return 1
	case Tag:
		return 0
	case AssignImmutable:
		return -1
	}
	return 0
}

// Assembly is a mutable item list with its tag allocator, sub-assemblies and
// data section. The deposit counter tracks the net stack effect of all
// appended items.
type Assembly struct {
	name      string
	items     []Item
	deposit   int
	nextTag   TagID
	namedTags map[string]TagID
	subs      []*Assembly
	data      map[[32]byte][]byte
	dataOrder [][32]byte
	span      sourcecode.Span
	invalid   bool
}

func New(name string) *Assembly {
	return &Assembly{
		name:      name,
		namedTags: map[string]TagID{},
		data:      map[[32]byte][]byte{},
	}
}

func (a *Assembly) Name() string { return a.name }

// Items returns the appended items. The slice is owned by the assembly.
func (a *Assembly) Items() []Item { return a.items }

func (a *Assembly) SetSourceLocation(span sourcecode.Span) { a.span = span }

func (a *Assembly) Deposit() int           { return a.deposit }
func (a *Assembly) SetDeposit(d int)       { a.deposit = d }
func (a *Assembly) AdjustDeposit(diff int) { a.deposit += diff }

// Invalidate marks the assembly as unusable; Assemble will refuse it.
func (a *Assembly) Invalidate()   { a.invalid = true }
func (a *Assembly) Invalid() bool { return a.invalid }

func (a *Assembly) append(it Item) {
	it.Span = a.span
	a.items = append(a.items, it)
	a.deposit += it.Deposit()
}

func (a *Assembly) AppendInstruction(inst evm.Instruction) {
	a.append(Item{Kind: Operation, Inst: inst})
}

// AppendConstant pushes a constant given in big-endian form.
func (a *Assembly) AppendConstant(value []byte) {
	a.append(Item{Kind: Push, Data: stripLeadingZeros(value)})
}

// NewTag allocates a tag without defining its position.
func (a *Assembly) NewTag() TagID {
	t := a.nextTag
	a.nextTag++
	return t
}

// NamedTag returns the tag registered under name, allocating it on first use.
func (a *Assembly) NamedTag(name string) TagID {
	if t, ok := a.namedTags[name]; ok {
		return t
	}
	t := a.NewTag()
	a.namedTags[name] = t
	return t
}

// AppendTag defines t at the current position (assembles to JUMPDEST).
func (a *Assembly) AppendTag(t TagID) {
	a.append(Item{Kind: Tag, Tag: t})
}

// AppendPushTag pushes the code offset of t.
func (a *Assembly) AppendPushTag(t TagID) {
	a.append(Item{Kind: PushTag, Tag: t})
}

// NewSub creates a nested assembly and returns it with its index.
func (a *Assembly) NewSub(name string) (*Assembly, int) {
	sub := New(name)
	a.subs = append(a.subs, sub)
	return sub, len(a.subs) - 1
}

// Sub returns the i-th sub-assembly.
func (a *Assembly) Sub(i int) *Assembly { return a.subs[i] }

func (a *Assembly) AppendPushSub(i int) {
	a.append(Item{Kind: PushSub, Sub: i})
}

func (a *Assembly) AppendPushSubSize(i int) {
	a.append(Item{Kind: PushSubSize, Sub: i})
}

// NewData registers a data blob and returns its content hash. Identical blobs
// share one entry.
func (a *Assembly) NewData(data []byte) [32]byte {
	h := keccak256(data)
	if _, exists := a.data[h]; !exists {
		a.data[h] = append([]byte(nil), data...)
		a.dataOrder = append(a.dataOrder, h)
	}
	return h
}

// DataSize returns the byte length of the blob with the given hash.
func (a *Assembly) DataSize(hash [32]byte) (int, bool) {
	d, ok := a.data[hash]
	return len(d), ok
}

// AppendPushData pushes the code offset of the blob with the given hash.
func (a *Assembly) AppendPushData(hash [32]byte) {
	a.append(Item{Kind: PushData, Hash: hash})
}

// AppendProgramSize pushes the total assembled byte size.
func (a *Assembly) AppendProgramSize() {
	a.append(Item{Kind: PushProgramSize})
}

// AppendLibraryAddress pushes a 20-byte placeholder to be substituted by the
// linker.
func (a *Assembly) AppendLibraryAddress(name string) {
	a.append(Item{Kind: PushLibraryAddress, Name: name})
}

// AppendPushImmutable pushes a 32-byte placeholder substituted at deploy
// time.
func (a *Assembly) AppendPushImmutable(name string) {
	a.append(Item{Kind: PushImmutable, Name: name})
}

// AppendAssignImmutable consumes the topmost stack item as the deploy-time
// value of the named immutable.
func (a *Assembly) AppendAssignImmutable(name string) {
	a.append(Item{Kind: AssignImmutable, Name: name})
}

// LinkerObject is the assembled artifact: bytecode plus the offsets of
// placeholders a linker or deployer must fill in.
type LinkerObject struct {
	Bytecode            []byte
	LinkReferences      map[int]string
	ImmutableReferences map[string][]int
}

// Assemble resolves tags and layout and produces bytecode. Data blobs and
// sub-assemblies are appended after the code section. Tag references use the
// smallest width that fits every resolved offset.
func (a *Assembly) Assemble() (*LinkerObject, error) {
	if a.invalid {
		return nil, errors.New("assembly was marked invalid")
	}
	subObjects := make([]*LinkerObject, len(a.subs))
	for i, sub := range a.subs {
		obj, err := sub.Assemble()
		if err != nil {
			return nil, fmt.Errorf("sub-assembly %d: %w", i, err)
		}
		subObjects[i] = obj
	}
	for refSize := 1; refSize <= 4; refSize++ {
		obj, ok, err := a.assembleWithRefSize(refSize, subObjects)
		if err != nil {
			return nil, err
		}
		if ok {
			return obj, nil
		}
	}
	return nil, errors.New("assembly too large for 4-byte tag references")
}

func (a *Assembly) assembleWithRefSize(refSize int, subObjects []*LinkerObject) (*LinkerObject, bool, error) {
	// first pass: item offsets and section layout
	offset := 0
	tagPos := map[TagID]int{}
	for _, it := range a.items {
		switch it.Kind {
		case Operation:
			offset++
		case Push:
			offset += 1 + max(1, len(it.Data))
		case PushTag, PushData, PushSub, PushProgramSize:
			offset += 1 + refSize
		case PushSubSize:
			offset += 1 + max(1, byteLength(len(subObjects[it.Sub].Bytecode)))
		case Tag:
			if _, dup := tagPos[it.Tag]; dup {
				return nil, false, fmt.Errorf("tag %d defined twice", it.Tag)
			}
			tagPos[it.Tag] = offset
			offset++
		case PushLibraryAddress:
			offset += 1 + 20
		case PushImmutable:
			offset += 1 + 32
		case AssignImmutable:
			offset++ // assembles to POP; substitution happens at deploy time
		}
	}
	subPos := make([]int, len(subObjects))
	for i, obj := range subObjects {
		subPos[i] = offset
		offset += len(obj.Bytecode)
	}
	dataPos := map[[32]byte]int{}
	for _, h := range a.dataOrder {
		dataPos[h] = offset
		offset += len(a.data[h])
	}
	totalSize := offset

	fits := func(v int) bool { return byteLength(v) <= refSize }
	for _, p := range tagPos {
		if !fits(p) {
			return nil, false, nil
		}
	}
	for _, p := range subPos {
		if !fits(p) {
			return nil, false, nil
		}
	}
	for _, p := range dataPos {
		if !fits(p) {
			return nil, false, nil
		}
	}
	if !fits(totalSize) {
		return nil, false, nil
	}

	// second pass: emit
	obj := &LinkerObject{
		Bytecode:            make([]byte, 0, totalSize),
		LinkReferences:      map[int]string{},
		ImmutableReferences: map[string][]int{},
	}
	pushRef := func(v int) {
		obj.Bytecode = append(obj.Bytecode, byte(evm.Push(refSize)))
		obj.Bytecode = append(obj.Bytecode, fixedBytes(v, refSize)...)
	}
	for _, it := range a.items {
		switch it.Kind {
		case Operation:
			obj.Bytecode = append(obj.Bytecode, byte(it.Inst))
		case Push:
			data := it.Data
			if len(data) == 0 {
				data = []byte{0}
			}
			obj.Bytecode = append(obj.Bytecode, byte(evm.Push(len(data))))
			obj.Bytecode = append(obj.Bytecode, data...)
		case PushTag:
			p, ok := tagPos[it.Tag]
			if !ok {
				return nil, false, fmt.Errorf("reference to undefined tag %d", it.Tag)
			}
			pushRef(p)
		case Tag:
			obj.Bytecode = append(obj.Bytecode, byte(evm.JUMPDEST))
		case PushData:
			pushRef(dataPos[it.Hash])
		case PushSub:
			pushRef(subPos[it.Sub])
		case PushSubSize:
			size := len(subObjects[it.Sub].Bytecode)
			b := fixedBytes(size, max(1, byteLength(size)))
			obj.Bytecode = append(obj.Bytecode, byte(evm.Push(len(b))))
			obj.Bytecode = append(obj.Bytecode, b...)
		case PushProgramSize:
			pushRef(totalSize)
		case PushLibraryAddress:
			obj.Bytecode = append(obj.Bytecode, byte(evm.Push(20)))
			obj.LinkReferences[len(obj.Bytecode)] = it.Name
			obj.Bytecode = append(obj.Bytecode, make([]byte, 20)...)
		case PushImmutable:
			obj.Bytecode = append(obj.Bytecode, byte(evm.Push(32)))
			obj.ImmutableReferences[it.Name] = append(obj.ImmutableReferences[it.Name], len(obj.Bytecode))
			obj.Bytecode = append(obj.Bytecode, make([]byte, 32)...)
		case AssignImmutable:
			obj.Bytecode = append(obj.Bytecode, byte(evm.POP))
		}
	}
	for _, subObj := range subObjects {
		base := len(obj.Bytecode)
		obj.Bytecode = append(obj.Bytecode, subObj.Bytecode...)
		for off, name := range subObj.LinkReferences {
			obj.LinkReferences[base+off] = name
		}
		for name, offs := range subObj.ImmutableReferences {
			for _, off := range offs {
				obj.ImmutableReferences[name] = append(obj.ImmutableReferences[name], base+off)
			}
		}
	}
	for _, h := range a.dataOrder {
		obj.Bytecode = append(obj.Bytecode, a.data[h]...)
	}
	return obj, true, nil
}

func keccak256(data []byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func stripLeadingZeros(b []byte) []byte {
	for len(b) > 0 && b[0] == 0 {
		b = b[1:]
	}
	return b
}

func byteLength(v int) int {
	n := 0
	for ; v > 0; v >>= 8 {
		n++
	}
	return max(n, 1)
}

func fixedBytes(v, width int) []byte {
	out := make([]byte, width)
	for i := width - 1; i >= 0 && v > 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
