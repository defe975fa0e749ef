package engine

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/scigolib/h5par/comm"
	"github.com/scigolib/h5par/internal/core"
	"github.com/scigolib/h5par/internal/h5api"
	"github.com/scigolib/h5par/internal/utils"
)

// attrRef is an open attribute ID.
type attrRef struct {
	img   *image
	comm  comm.Communicator
	owner string
	attr  *core.Attribute
}

// count returns the number of elements in the attribute extent.
func (a *attrRef) count() (uint64, error) {
	return utils.ElementCount(a.attr.Space.Dims)
}

// AttributeCreate attaches a new zero-valued attribute to a file, group or
// dataset.
func (e *Engine) AttributeCreate(loc h5api.ID, name string, dtype, space h5api.ID) (h5api.ID, error) {
	ref, err := e.location(loc)
	if err != nil {
		return h5api.Invalid, err
	}
	if name == "" {
		return h5api.Invalid, fmt.Errorf("%w: empty attribute name", h5api.ErrInvalidArgument)
	}
	dt, err := e.datatype(dtype)
	if err != nil {
		return h5api.Invalid, err
	}
	s, err := lookup[*dataspace](e, space, "dataspace")
	if err != nil {
		return h5api.Invalid, err
	}
	extent := core.Dataspace{Scalar: s.scalar, Dims: slices.Clone(s.dims)}
	count, err := s.extent()
	if err != nil {
		return h5api.Invalid, err
	}

	err = collective(ref.comm, "attribute_create", func() error {
		return ref.img.update(func(*core.Object) error {
			if ref.obj.Attribute(name) != nil {
				return fmt.Errorf("%w: attribute %q on %s", h5api.ErrExists, name, ref.path)
			}
			a := &core.Attribute{Name: name, Type: dt.Clone(), Space: extent}
			if dt.Class == core.DatatypeVarLen {
				a.Strings = make([][]byte, count)
				for i := range a.Strings {
					a.Strings[i] = []byte{}
				}
			} else {
				size, err := utils.CheckedAllocSize(count, uint64(dt.Size), utils.MaxAttributeBytes)
				if err != nil {
					return err
				}
				a.Data = make([]byte, size)
			}
			ref.obj.Attributes = append(ref.obj.Attributes, a)
			return nil
		})
	})
	if err != nil {
		return h5api.Invalid, err
	}
	return e.attributeOpen(ref, name)
}

// AttributeOpen opens an existing attribute.
func (e *Engine) AttributeOpen(loc h5api.ID, name string) (h5api.ID, error) {
	ref, err := e.location(loc)
	if err != nil {
		return h5api.Invalid, err
	}
	return e.attributeOpen(ref, name)
}

func (e *Engine) attributeOpen(ref *objectRef, name string) (h5api.ID, error) {
	var a *core.Attribute
	_ = ref.img.update(func(*core.Object) error {
		a = ref.obj.Attribute(name)
		return nil
	})
	if a == nil {
		return h5api.Invalid, fmt.Errorf("%w: attribute %q on %s", h5api.ErrNotFound, name, ref.path)
	}
	ref.img.retain()
	return e.register(&attrRef{img: ref.img, comm: ref.comm, owner: ref.path, attr: a}), nil
}

// AttributeExists reports whether loc carries an attribute called name.
func (e *Engine) AttributeExists(loc h5api.ID, name string) (bool, error) {
	ref, err := e.location(loc)
	if err != nil {
		return false, err
	}
	var found bool
	_ = ref.img.update(func(*core.Object) error {
		found = ref.obj.Attribute(name) != nil
		return nil
	})
	return found, nil
}

// AttributeSpace returns a copy of the attribute extent.
func (e *Engine) AttributeSpace(attr h5api.ID) (h5api.ID, error) {
	a, err := lookup[*attrRef](e, attr, "attribute")
	if err != nil {
		return h5api.Invalid, err
	}
	return e.register(&dataspace{scalar: a.attr.Space.Scalar, dims: slices.Clone(a.attr.Space.Dims)}), nil
}

// attributeBuffer validates memType and the size of buf for a whole
// attribute transfer and returns the element count.
func (e *Engine) attributeBuffer(a *attrRef, memType h5api.ID, bufLen int) (uint64, error) {
	mt, err := e.datatype(memType)
	if err != nil {
		return 0, err
	}
	if !mt.Equal(a.attr.Type) {
		return 0, fmt.Errorf("%w: memory type %s, attribute %q on %s has %s",
			h5api.ErrTypeMismatch, mt, a.attr.Name, a.owner, a.attr.Type)
	}
	count, err := a.count()
	if err != nil {
		return 0, err
	}
	elem := uint64(mt.Size)
	if mt.Class == core.DatatypeVarLen {
		elem = varPointerSize
	}
	need, err := utils.SafeMultiply(count, elem)
	if err != nil {
		return 0, err
	}
	if uint64(bufLen) < need {
		return 0, fmt.Errorf("%w: buffer holds %d bytes, attribute needs %d",
			h5api.ErrInvalidArgument, bufLen, need)
	}
	return count, nil
}

// AttributeWrite replaces the whole attribute value. For variable-length
// types buf holds one VarPointer per element. Collective when the file has
// a communicator; the value written is rank 0's.
func (e *Engine) AttributeWrite(attr, memType h5api.ID, buf []byte) error {
	a, err := lookup[*attrRef](e, attr, "attribute")
	if err != nil {
		return err
	}

	return collective(a.comm, "attribute_write", func() error {
		count, err := e.attributeBuffer(a, memType, len(buf))
		if err != nil {
			return err
		}
		if a.attr.Type.Class != core.DatatypeVarLen {
			return a.img.update(func(*core.Object) error {
				copy(a.attr.Data, buf)
				return nil
			})
		}

		strs := make([][]byte, count)
		for i := range strs {
			p := h5api.VarPointer(binary.NativeEndian.Uint64(buf[i*varPointerSize:]))
			if p == 0 {
				strs[i] = []byte{}
				continue
			}
			data, err := e.VarBytes(p)
			if err != nil {
				return err
			}
			strs[i] = slices.Clone(data)
		}
		return a.img.update(func(*core.Object) error {
			a.attr.Strings = strs
			return nil
		})
	})
}

// AttributeRead reads the whole attribute value. For variable-length types
// each element is allocated with VarAlloc and its pointer stored in buf;
// the caller reclaims them.
func (e *Engine) AttributeRead(attr, memType h5api.ID, buf []byte) error {
	a, err := lookup[*attrRef](e, attr, "attribute")
	if err != nil {
		return err
	}
	count, err := e.attributeBuffer(a, memType, len(buf))
	if err != nil {
		return err
	}

	if a.attr.Type.Class != core.DatatypeVarLen {
		return a.img.update(func(*core.Object) error {
			copy(buf, a.attr.Data)
			return nil
		})
	}

	var strs [][]byte
	_ = a.img.update(func(*core.Object) error {
		strs = slices.Clone(a.attr.Strings)
		return nil
	})
	if uint64(len(strs)) != count {
		return fmt.Errorf("%w: attribute %q holds %d strings for %d elements",
			core.ErrFormat, a.attr.Name, len(strs), count)
	}
	for i, s := range strs {
		p, err := e.VarAlloc(s)
		if err != nil {
			for j := range i {
				_ = e.VarReclaim(h5api.VarPointer(binary.NativeEndian.Uint64(buf[j*varPointerSize:])))
			}
			return err
		}
		binary.NativeEndian.PutUint64(buf[i*varPointerSize:], uint64(p))
	}
	return nil
}

// AttributeClose closes an attribute ID.
func (e *Engine) AttributeClose(attr h5api.ID) error {
	a, err := remove[*attrRef](e, attr, "attribute")
	if err != nil {
		return err
	}
	return a.img.release()
}
