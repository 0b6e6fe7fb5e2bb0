package controller

import (
	"context"

	"quarry/internal/catalog"
	"quarry/internal/search"
)

// PaneID names one of the three panes.
type PaneID int

const (
	SourcePane PaneID = iota
	ActionPane
	ObjectPane
)

func (p PaneID) String() string {
	switch p {
	case SourcePane:
		return "source"
	case ActionPane:
		return "action"
	case ObjectPane:
		return "object"
	default:
		return "unknown"
	}
}

// Mode is the number of panes taking part in the next activation.
type Mode int

const (
	TwoPane Mode = iota
	ThreePane
)

func (m Mode) String() string {
	if m == ThreePane {
		return "three-pane"
	}
	return "two-pane"
}

// Pane is a snapshot of one navigable cursor into the catalog. Stack and
// Source together are the browse path back to a toplevel source.
type Pane struct {
	ID        PaneID
	Selection catalog.Object
	Source    catalog.Source
	Stack     []catalog.Source
	Query     string
	Result    *search.Result
}

// Leaf returns the selection when it is a leaf.
func (p Pane) Leaf() catalog.Leaf {
	leaf, _ := p.Selection.(catalog.Leaf)
	return leaf
}

// Action returns the selection when it is an action.
func (p Pane) Action() catalog.Action {
	action, _ := p.Selection.(catalog.Action)
	return action
}

// Path returns the browse path, outermost source first.
func (p Pane) Path() []catalog.Source {
	if p.Source == nil {
		return append([]catalog.Source(nil), p.Stack...)
	}
	return append(append([]catalog.Source(nil), p.Stack...), p.Source)
}

// pane is the live state behind a Pane. Guarded by Controller.mu.
type pane struct {
	Pane
	gen    uint64
	cancel context.CancelFunc
}

func (p *pane) snapshot() Pane {
	s := p.Pane
	s.Stack = append([]catalog.Source(nil), p.Stack...)
	return s
}

// abort supersedes the in-flight search, if any.
func (p *pane) abort() {
	p.gen++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// clear drops the selection and the last result.
func (p *pane) clear() {
	p.abort()
	p.Selection = nil
	p.Query = ""
	p.Result = nil
}

// rebase replaces the source and forgets the browse path.
func (p *pane) rebase(src catalog.Source) {
	p.clear()
	p.Source = src
	p.Stack = nil
}

// push enters src, remembering the current source.
func (p *pane) push(src catalog.Source) {
	p.clear()
	if p.Source != nil {
		p.Stack = append(p.Stack, p.Source)
	}
	p.Source = src
}

// pop returns to the previous source; false when the stack is empty.
func (p *pane) pop() bool {
	if len(p.Stack) == 0 {
		return false
	}
	p.clear()
	p.Source = p.Stack[len(p.Stack)-1]
	p.Stack = p.Stack[:len(p.Stack)-1]
	return true
}
