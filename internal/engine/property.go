package engine

import (
	"fmt"
	"maps"

	"github.com/scigolib/h5par/comm"
	"github.com/scigolib/h5par/internal/h5api"
)

// plist is an open property list ID.
type plist struct {
	class      h5api.PropertyClass
	collective bool
	comm       comm.Communicator
	info       comm.Info
}

// PropertyCreate creates a property list of class.
func (e *Engine) PropertyCreate(class h5api.PropertyClass) (h5api.ID, error) {
	if class != h5api.FileAccess && class != h5api.DatasetXfer {
		return h5api.Invalid, fmt.Errorf("%w: property class %d", h5api.ErrInvalidArgument, class)
	}
	return e.register(&plist{class: class}), nil
}

func (e *Engine) plistOf(id h5api.ID, class h5api.PropertyClass) (*plist, error) {
	p, err := lookup[*plist](e, id, "property list")
	if err != nil {
		return nil, err
	}
	if p.class != class {
		return nil, fmt.Errorf("%w: property list %d has the wrong class", h5api.ErrInvalidArgument, id)
	}
	return p, nil
}

// PropertySetCollective selects collective transfers.
func (e *Engine) PropertySetCollective(dxpl h5api.ID) error {
	p, err := e.plistOf(dxpl, h5api.DatasetXfer)
	if err != nil {
		return err
	}
	p.collective = true
	return nil
}

// PropertySetMPIO binds a communicator and its hints to a file access list.
func (e *Engine) PropertySetMPIO(fapl h5api.ID, c comm.Communicator, info comm.Info) error {
	p, err := e.plistOf(fapl, h5api.FileAccess)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("%w: nil communicator", h5api.ErrInvalidArgument)
	}
	p.comm = c
	p.info = maps.Clone(info)
	return nil
}

// PropertyClose closes a property list ID.
func (e *Engine) PropertyClose(plistID h5api.ID) error {
	_, err := remove[*plist](e, plistID, "property list")
	return err
}
