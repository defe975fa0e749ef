package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/scigolib/h5par/internal/utils"
)

// ObjectKind distinguishes groups from datasets.
type ObjectKind int

// Object kinds.
const (
	KindGroup ObjectKind = iota
	KindDataset
)

func (k ObjectKind) String() string {
	if k == KindDataset {
		return "dataset"
	}
	return "group"
}

// Link names a child object of a group.
type Link struct {
	Name   string
	Target *Object
}

// Attribute is an in-memory attribute. Variable-length string attributes
// keep one entry per element in Strings and leave Data empty; every other
// type keeps its raw little-endian elements in Data.
type Attribute struct {
	Name    string
	Type    *Datatype
	Space   Dataspace
	Data    []byte
	Strings [][]byte
}

// Object is a group or dataset of an in-memory container image.
type Object struct {
	Kind       ObjectKind
	Links      []Link       // groups
	Type       *Datatype    // datasets
	Space      Dataspace    // datasets
	Data       []byte       // datasets: raw elements, row-major
	Attributes []*Attribute // creation order
}

// NewGroup returns an empty group.
func NewGroup() *Object {
	return &Object{Kind: KindGroup}
}

// NewDataset returns a zero-filled dataset.
func NewDataset(dt *Datatype, space Dataspace) (*Object, error) {
	count, err := utils.ElementCount(space.Dims)
	if err != nil {
		return nil, err
	}
	size, err := utils.CheckedAllocSize(count, uint64(dt.Size), utils.MaxTransferBytes)
	if err != nil {
		return nil, err
	}
	return &Object{Kind: KindDataset, Type: dt, Space: space, Data: make([]byte, size)}, nil
}

// Child returns the target of the link called name, or nil.
func (o *Object) Child(name string) *Object {
	for _, l := range o.Links {
		if l.Name == name {
			return l.Target
		}
	}
	return nil
}

// AddLink links target under name.
func (o *Object) AddLink(name string, target *Object) error {
	if o.Kind != KindGroup {
		return fmt.Errorf("cannot link %q under a %s", name, o.Kind)
	}
	if o.Child(name) != nil {
		return fmt.Errorf("link %q already exists", name)
	}
	o.Links = append(o.Links, Link{Name: name, Target: target})
	return nil
}

// Attribute returns the attribute called name, or nil.
func (o *Object) Attribute(name string) *Attribute {
	for _, a := range o.Attributes {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// Sink is where an image is encoded: random-access writes plus an
// end-of-file allocator that starts after the superblock.
type Sink interface {
	io.WriterAt
	Allocate(size uint64) (uint64, error)
	EndOfFile() uint64
}

// WriteImage encodes the object tree rooted at root into sink. Children
// are written before their parents so every link address is known when
// the parent header is built; the superblock goes last.
func WriteImage(sink Sink, root *Object) error {
	if root == nil || root.Kind != KindGroup {
		return errors.New("image root must be a group")
	}

	enc := &imageEncoder{sink: sink, addrs: make(map[*Object]uint64)}
	rootAddr, err := enc.writeObject(root, "/")
	if err != nil {
		return err
	}

	sb := &Superblock{Version: Version2, OffsetSize: 8, LengthSize: 8, RootGroup: rootAddr}
	return sb.WriteTo(sink, sink.EndOfFile())
}

type imageEncoder struct {
	sink  Sink
	addrs map[*Object]uint64
}

func (e *imageEncoder) write(data []byte) (uint64, error) {
	addr, err := e.sink.Allocate(uint64(len(data)))
	if err != nil {
		return 0, err
	}
	if _, err := e.sink.WriteAt(data, int64(addr)); err != nil { //nolint:gosec // G115: file address
		return 0, err
	}
	return addr, nil
}

func (e *imageEncoder) writeObject(o *Object, path string) (uint64, error) {
	if addr, ok := e.addrs[o]; ok {
		return addr, nil
	}

	var ohw ObjectHeaderWriter
	switch o.Kind {
	case KindGroup:
		var links []HeaderMessage
		for _, l := range o.Links {
			childAddr, err := e.writeObject(l.Target, joinPath(path, l.Name))
			if err != nil {
				return 0, err
			}
			msg, err := EncodeLinkMessage(l.Name, childAddr)
			if err != nil {
				return 0, fmt.Errorf("%s: %w", path, err)
			}
			links = append(links, HeaderMessage{Type: MsgLink, Data: msg})
		}
		ohw.Add(MsgLinkInfo, EncodeLinkInfoMessage())
		ohw.Add(MsgGroupInfo, EncodeGroupInfoMessage())
		ohw.Messages = append(ohw.Messages, links...)

	case KindDataset:
		space, err := EncodeDataspaceMessage(o.Space)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", path, err)
		}
		dtype, err := EncodeDatatypeMessage(o.Type)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", path, err)
		}
		dataAddr := UndefinedAddress
		if len(o.Data) > 0 {
			if dataAddr, err = e.write(o.Data); err != nil {
				return 0, fmt.Errorf("%s: raw data: %w", path, err)
			}
		}
		ohw.Add(MsgDataspace, space)
		ohw.Add(MsgDatatype, dtype)
		ohw.Add(MsgFillValue, EncodeFillValueMessage())
		ohw.Add(MsgDataLayout, EncodeLayoutMessage(dataAddr, uint64(len(o.Data))))
	}

	attrs, err := e.encodeAttributes(o)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	ohw.Messages = append(ohw.Messages, attrs...)

	header, err := ohw.Encode()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	addr, err := e.write(header)
	if err != nil {
		return 0, fmt.Errorf("%s: object header: %w", path, err)
	}
	e.addrs[o] = addr
	return addr, nil
}

// encodeAttributes stores every non-empty variable-length element of o in
// one global heap collection and encodes the attribute messages.
func (e *imageEncoder) encodeAttributes(o *Object) ([]HeaderMessage, error) {
	var objects [][]byte
	for _, a := range o.Attributes {
		for _, s := range a.Strings {
			if len(s) > 0 {
				objects = append(objects, s)
			}
		}
	}

	var heapAddr uint64
	if len(objects) > 0 {
		heap, err := EncodeGlobalHeap(objects)
		if err != nil {
			return nil, err
		}
		if heapAddr, err = e.write(heap); err != nil {
			return nil, fmt.Errorf("global heap: %w", err)
		}
	}

	var messages []HeaderMessage
	next := uint32(1)
	for _, a := range o.Attributes {
		data := a.Data
		if a.Type.Class == DatatypeVarLen {
			data = make([]byte, 0, len(a.Strings)*VarLenElementSize)
			for _, s := range a.Strings {
				id := HeapID{}
				if len(s) > 0 {
					id = HeapID{Collection: heapAddr, Index: next}
					next++
				}
				data = binary.LittleEndian.AppendUint32(data, uint32(len(s))) //nolint:gosec // G115: bounded by MaxStringBytes
				data = binary.LittleEndian.AppendUint64(data, id.Collection)
				data = binary.LittleEndian.AppendUint32(data, id.Index)
			}
		}
		msg, err := EncodeAttributeMessage(&AttributeMessage{Name: a.Name, Type: a.Type, Space: a.Space, Data: data})
		if err != nil {
			return nil, err
		}
		messages = append(messages, HeaderMessage{Type: MsgAttribute, Data: msg})
	}
	return messages, nil
}

// ReadImage decodes the container image stored in r.
func ReadImage(r io.ReaderAt) (*Object, error) {
	sb, err := ReadSuperblock(r)
	if err != nil {
		return nil, err
	}
	dec := &imageDecoder{r: r, objects: make(map[uint64]*Object), heaps: make(map[uint64]map[uint32][]byte)}
	return dec.readObject(sb.RootGroup, "/")
}

type imageDecoder struct {
	r       io.ReaderAt
	objects map[uint64]*Object
	heaps   map[uint64]map[uint32][]byte
}

func (d *imageDecoder) readObject(addr uint64, path string) (*Object, error) {
	if o, ok := d.objects[addr]; ok {
		return o, nil
	}

	messages, err := ReadObjectHeader(d.r, addr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	o := &Object{Kind: KindGroup}
	if slices.ContainsFunc(messages, func(m HeaderMessage) bool { return m.Type == MsgDataLayout }) {
		o.Kind = KindDataset
	}
	// Register before descending so hard-link cycles terminate.
	d.objects[addr] = o

	var layout *Layout
	for _, m := range messages {
		switch m.Type {
		case MsgSymbolTable:
			return nil, fmt.Errorf("%s: %w: symbol table group", path, ErrUnsupportedFeature)
		case MsgLinkInfo:
			dense, err := parseLinkInfoMessage(m.Data)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			if dense {
				return nil, fmt.Errorf("%s: %w: dense link storage", path, ErrUnsupportedFeature)
			}
		case MsgLink:
			lm, err := ParseLinkMessage(m.Data)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			if !lm.Hard {
				continue
			}
			child, err := d.readObject(lm.Address, joinPath(path, lm.Name))
			if err != nil {
				return nil, err
			}
			o.Links = append(o.Links, Link{Name: lm.Name, Target: child})
		case MsgDataspace:
			if o.Space, err = ParseDataspaceMessage(m.Data); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		case MsgDatatype:
			if o.Type, err = ParseDatatypeMessage(m.Data); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		case MsgDataLayout:
			l, err := ParseLayoutMessage(m.Data)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			layout = &l
		case MsgAttribute:
			a, err := d.readAttribute(m.Data)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			o.Attributes = append(o.Attributes, a)
		}
	}

	if o.Kind == KindDataset {
		if o.Type == nil {
			return nil, fmt.Errorf("%s: %w: dataset without datatype", path, ErrFormat)
		}
		if o.Data, err = d.readData(o, layout); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return o, nil
}

func (d *imageDecoder) readData(o *Object, layout *Layout) ([]byte, error) {
	count, err := utils.ElementCount(o.Space.Dims)
	if err != nil {
		return nil, err
	}
	size, err := utils.CheckedAllocSize(count, uint64(o.Type.Size), utils.MaxTransferBytes)
	if err != nil {
		return nil, err
	}
	data := make([]byte, size)

	switch layout.Class {
	case LayoutCompact:
		copy(data, layout.Compact)
	case LayoutContiguous:
		if layout.Address == UndefinedAddress || size == 0 {
			return data, nil
		}
		n := min(uint64(size), layout.Size)
		if _, err := d.r.ReadAt(data[:n], int64(layout.Address)); err != nil && !errors.Is(err, io.EOF) { //nolint:gosec // G115: file address
			return nil, utils.WrapError("raw data read", err)
		}
	}
	return data, nil
}

func (d *imageDecoder) readAttribute(data []byte) (*Attribute, error) {
	msg, err := ParseAttributeMessage(data)
	if err != nil {
		return nil, err
	}
	count, err := utils.ElementCount(msg.Space.Dims)
	if err != nil {
		return nil, err
	}
	size, err := utils.CheckedAllocSize(count, uint64(msg.Type.Size), utils.MaxAttributeBytes)
	if err != nil {
		return nil, err
	}
	if len(msg.Data) < size {
		return nil, fmt.Errorf("%w: attribute %q holds %d of %d bytes", ErrFormat, msg.Name, len(msg.Data), size)
	}

	a := &Attribute{Name: msg.Name, Type: msg.Type, Space: msg.Space}
	if msg.Type.Class != DatatypeVarLen {
		a.Data = append([]byte(nil), msg.Data[:size]...)
		return a, nil
	}

	a.Strings = make([][]byte, count)
	c := newCursor(msg.Data, "variable-length attribute")
	for i := range a.Strings {
		length := c.u32()
		id := HeapID{Collection: c.u64(), Index: c.u32()}
		if c.err != nil {
			return nil, c.err
		}
		if length == 0 {
			a.Strings[i] = []byte{}
			continue
		}
		heap, err := d.heap(id.Collection)
		if err != nil {
			return nil, err
		}
		obj, ok := heap[id.Index]
		if !ok || uint64(len(obj)) < uint64(length) {
			return nil, fmt.Errorf("%w: attribute %q references missing heap object %d", ErrFormat, msg.Name, id.Index)
		}
		a.Strings[i] = append([]byte(nil), obj[:length]...)
	}
	return a, nil
}

func (d *imageDecoder) heap(addr uint64) (map[uint32][]byte, error) {
	if h, ok := d.heaps[addr]; ok {
		return h, nil
	}
	h, err := ReadGlobalHeap(d.r, addr)
	if err != nil {
		return nil, err
	}
	d.heaps[addr] = h
	return h, nil
}

func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}
