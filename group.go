package h5par

import (
	"errors"
	"strings"

	"github.com/scigolib/h5par/internal/handle"
	"github.com/scigolib/h5par/internal/utils"
)

// Group is a named container of groups and datasets.
type Group struct {
	node
}

// OpenGroup opens the existing child group name. The path may contain
// slashes.
func (g *Group) OpenGroup(name string) (*Group, error) {
	id, err := g.rt.GroupOpen(g.h.ID(), name)
	if err != nil {
		return nil, utils.WrapError("open group "+name, err)
	}
	h, err := g.child(id, handle.KindGroup, g.rt.GroupClose)
	if err != nil {
		return nil, utils.WrapError("open group "+name, err)
	}
	return &Group{node: g.derive(g.childName(name), h)}, nil
}

// CreateGroup creates the child group name. Intermediate groups must
// already exist.
func (g *Group) CreateGroup(name string) (*Group, error) {
	id, err := g.rt.GroupCreate(g.h.ID(), name)
	if err != nil {
		return nil, utils.WrapError("create group "+name, err)
	}
	h, err := g.child(id, handle.KindGroup, g.rt.GroupClose)
	if err != nil {
		return nil, utils.WrapError("create group "+name, err)
	}
	g.logger.Debug("group created", "group", g.childName(name))
	return &Group{node: g.derive(g.childName(name), h)}, nil
}

// Children returns the names of the groups and datasets directly below g,
// in creation order.
func (g *Group) Children() ([]string, error) {
	names, err := g.rt.LinkNames(g.h.ID())
	if err != nil {
		return nil, utils.WrapError("list "+g.name, err)
	}
	return names, nil
}

// Close releases the group. The runtime group is closed once every
// dataset and group opened below it is closed.
func (g *Group) Close() error {
	return g.h.Release()
}

func (g *Group) childName(name string) string {
	name = strings.Trim(name, "/")
	if g.name == "/" {
		return "/" + name
	}
	return g.name + "/" + name
}

// WriteDataset creates the rank-1 dataset name holding data and closes
// it.
func WriteDataset[T Element](g *Group, name string, data []T) error {
	d, err := CreateDataset[T](g, name, []uint64{uint64(len(data))})
	if err != nil {
		return err
	}
	return closeAfter(d, d.Write(data))
}

// WriteMatrixDataset creates the rank-2 dataset name shaped like m, writes
// it and closes it.
func WriteMatrixDataset[T Element](g *Group, name string, m Matrix[T]) error {
	r, c := m.Dims()
	d, err := CreateDataset[T](g, name, []uint64{uint64(r), uint64(c)})
	if err != nil {
		return err
	}
	return closeAfter(d, d.WriteMatrix(m))
}

// ChildInfo describes one link below a group.
type ChildInfo struct {
	Name  string
	Group bool

	// Dataset shape and element type. Type is meaningful only when Known
	// is set; datasets of other types report Known false.
	Dims  []uint64
	Type  TypeTag
	Known bool
}

// Stat describes the child name without keeping it open.
func (g *Group) Stat(name string) (info ChildInfo, err error) {
	info = ChildInfo{Name: name}
	rt := g.rt

	gid, err := rt.GroupOpen(g.h.ID(), name)
	if err == nil {
		info.Group = true
		return info, utils.WrapError("stat "+name, rt.GroupClose(gid))
	}
	if !errors.Is(err, ErrTypeMismatch) {
		return info, utils.WrapError("stat "+name, err)
	}

	did, err := rt.DatasetOpen(g.h.ID(), name)
	if err != nil {
		return info, utils.WrapError("stat "+name, err)
	}
	defer func() { err = errors.Join(err, utils.WrapError("stat "+name, rt.DatasetClose(did))) }()

	sid, err := rt.DatasetSpace(did)
	if err != nil {
		return info, utils.WrapError("stat "+name, err)
	}
	info.Dims, err = rt.DataspaceDims(sid)
	if err = errors.Join(err, rt.DataspaceClose(sid)); err != nil {
		return info, utils.WrapError("stat "+name, err)
	}

	tid, err := rt.DatasetType(did)
	if err != nil {
		return info, utils.WrapError("stat "+name, err)
	}
	defer func() { err = errors.Join(err, utils.WrapError("stat "+name, rt.TypeClose(tid))) }()

	for tag := TagFloat32; tag <= TagComplexLongDouble; tag++ {
		desc, err := descriptor(rt, g.logger, tag)
		if err != nil {
			return info, utils.WrapError("stat "+name, err)
		}
		same, err := rt.TypeEqual(tid, desc.ID())
		if err = errors.Join(err, desc.Release()); err != nil {
			return info, utils.WrapError("stat "+name, err)
		}
		if same {
			info.Type, info.Known = tag, true
			break
		}
	}
	return info, nil
}
