package engine

import (
	"fmt"

	"github.com/scigolib/h5par/internal/h5api"
	"github.com/scigolib/h5par/internal/utils"
)

// VarAlloc copies data into engine-owned memory.
func (e *Engine) VarAlloc(data []byte) (h5api.VarPointer, error) {
	if len(data) > utils.MaxStringBytes {
		return 0, fmt.Errorf("%w: variable-length element of %d bytes", utils.ErrResourceExhausted, len(data))
	}
	e.vlMu.Lock()
	defer e.vlMu.Unlock()
	p := e.vlNext
	e.vlNext++
	e.vl[p] = append([]byte{}, data...)
	return p, nil
}

// VarBytes returns the memory behind p.
func (e *Engine) VarBytes(p h5api.VarPointer) ([]byte, error) {
	e.vlMu.Lock()
	defer e.vlMu.Unlock()
	data, ok := e.vl[p]
	if !ok {
		return nil, fmt.Errorf("%w: unknown variable-length pointer %d", h5api.ErrInvalidArgument, p)
	}
	return data, nil
}

// VarReclaim frees memory returned by VarAlloc or by a variable-length read.
func (e *Engine) VarReclaim(p h5api.VarPointer) error {
	e.vlMu.Lock()
	defer e.vlMu.Unlock()
	if _, ok := e.vl[p]; !ok {
		return fmt.Errorf("%w: unknown variable-length pointer %d", h5api.ErrInvalidArgument, p)
	}
	delete(e.vl, p)
	return nil
}

// Outstanding returns the number of variable-length allocations not yet
// reclaimed.
func (e *Engine) Outstanding() int {
	e.vlMu.Lock()
	defer e.vlMu.Unlock()
	return len(e.vl)
}
