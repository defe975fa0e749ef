// Package h5api defines the boundary to the container runtime: a
// handle-based API in the shape of the HDF5 C library. Every object the
// runtime hands out is an ID that must be closed with the matching close
// call, except the predefined IDs declared here.
package h5api

import (
	"errors"

	"github.com/scigolib/h5par/comm"
)

// ID identifies a runtime object (file, group, dataset, dataspace,
// attribute, datatype or property list).
type ID int64

// Invalid is returned alongside an error by every creating call.
const Invalid ID = -1

// All selects the whole extent when used as a dataspace and the default
// property list when used as a property list.
const All ID = 0

// Default is the default property list.
const Default = All

// Predefined native datatypes. They are owned by the runtime and closing
// them fails with ErrPredefined.
const (
	NativeFloat ID = iota + 1
	NativeDouble
	NativeLongDouble
	NativeInt
	NativeUint

	// PredefinedLimit is one past the largest predefined ID.
	PredefinedLimit
)

// IsPredefined reports whether id names a runtime-owned datatype.
func IsPredefined(id ID) bool {
	return id >= NativeFloat && id < PredefinedLimit
}

// CreateMode selects the behavior of FileCreate when the file exists.
type CreateMode int

const (
	// CreateTruncate overwrites an existing file.
	CreateTruncate CreateMode = iota
	// CreateExclusive fails with ErrExists if the file exists.
	CreateExclusive
)

// PropertyClass selects the kind of property list to create.
type PropertyClass int

const (
	// FileAccess is applied when a file is created or opened.
	FileAccess PropertyClass = iota
	// DatasetXfer is applied to one data transfer.
	DatasetXfer
)

// VarPointer references runtime-owned variable-length memory.
type VarPointer uint64

// Sentinel errors reported by the runtime.
var (
	ErrNotFound        = errors.New("object not found")
	ErrExists          = errors.New("object already exists")
	ErrPermission      = errors.New("permission denied")
	ErrTypeMismatch    = errors.New("datatype mismatch")
	ErrInvalidHandle   = errors.New("invalid handle")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnsupported     = errors.New("unsupported operation")
	ErrNotHDF5         = errors.New("not an HDF5 file")
	ErrPredefined      = errors.New("cannot close predefined datatype")
)

// Runtime is the container runtime. Calls that create objects return a
// new ID the caller owns. Calls on a file opened with a communicator are
// collective where the HDF5 library's are: every process of the group
// must issue them in the same order.
type Runtime interface {
	FileCreate(name string, mode CreateMode, fapl ID) (ID, error)
	FileOpen(name string, fapl ID) (ID, error)
	FileClose(file ID) error

	GroupCreate(loc ID, name string) (ID, error)
	GroupOpen(loc ID, name string) (ID, error)
	GroupClose(group ID) error
	// LinkNames lists the links of a file or group in creation order.
	LinkNames(loc ID) ([]string, error)

	DataspaceCreateScalar() (ID, error)
	DataspaceCreateSimple(dims []uint64) (ID, error)
	DataspaceDims(space ID) ([]uint64, error)
	DataspaceSelectAll(space ID) error
	DataspaceSelectNone(space ID) error
	// DataspaceSelectHyperslab replaces the selection. Nil stride or block
	// mean 1 along every axis.
	DataspaceSelectHyperslab(space ID, start, stride, count, block []uint64) error
	// DataspaceSelectElements replaces the selection with numPoints points
	// given as numPoints*rank flat coordinates.
	DataspaceSelectElements(space ID, numPoints int, coords []uint64) error
	DataspaceSelectedCount(space ID) (uint64, error)
	DataspaceClose(space ID) error

	DatasetCreate(loc ID, name string, dtype, space ID) (ID, error)
	DatasetOpen(loc ID, name string) (ID, error)
	// DatasetSpace returns a new dataspace the caller must close.
	DatasetSpace(dataset ID) (ID, error)
	// DatasetType returns a new datatype the caller must close.
	DatasetType(dataset ID) (ID, error)
	DatasetWrite(dataset, memType, memSpace, fileSpace, dxpl ID, buf []byte) error
	DatasetRead(dataset, memType, memSpace, fileSpace, dxpl ID, buf []byte) error
	DatasetClose(dataset ID) error

	AttributeCreate(loc ID, name string, dtype, space ID) (ID, error)
	AttributeOpen(loc ID, name string) (ID, error)
	AttributeExists(loc ID, name string) (bool, error)
	AttributeSpace(attr ID) (ID, error)
	AttributeWrite(attr, memType ID, buf []byte) error
	AttributeRead(attr, memType ID, buf []byte) error
	AttributeClose(attr ID) error

	TypeCreateCompound(size uint64) (ID, error)
	TypeInsert(dtype ID, name string, offset uint64, member ID) error
	// TypeCreateVarString creates a variable-length UTF-8 string type. In
	// buffers each element is a VarPointer in native byte order.
	TypeCreateVarString() (ID, error)
	TypeSize(dtype ID) (uint64, error)
	TypeEqual(a, b ID) (bool, error)
	TypeClose(dtype ID) error

	PropertyCreate(class PropertyClass) (ID, error)
	PropertySetCollective(dxpl ID) error
	PropertySetMPIO(fapl ID, c comm.Communicator, info comm.Info) error
	PropertyClose(plist ID) error

	// VarAlloc copies data into runtime-owned memory.
	VarAlloc(data []byte) (VarPointer, error)
	// VarBytes returns the bytes behind p without copying.
	VarBytes(p VarPointer) ([]byte, error)
	// VarReclaim frees memory allocated by the runtime.
	VarReclaim(p VarPointer) error
}
