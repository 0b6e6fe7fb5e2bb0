package controller

import (
	"quarry/internal/catalog"
	"quarry/internal/search"
)

// Observer receives controller events. When the controller has a poster
// they are delivered on the interactive loop, in order.
type Observer interface {
	OnSearchResult(pane PaneID, query string, res *search.Result)
	OnSelection(pane PaneID, obj catalog.Object)
	OnModeChanged(mode Mode)
	OnPaneReset(pane PaneID)
	OnSourceChanged(pane PaneID, src catalog.Source)
	// OnLaunched reports a completed activation that did not yield a source.
	OnLaunched(action catalog.Action, item, iobj catalog.Leaf)
	OnError(err error)
}

// NopObserver ignores every event. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) OnSearchResult(PaneID, string, *search.Result)         {}
func (NopObserver) OnSelection(PaneID, catalog.Object)                    {}
func (NopObserver) OnModeChanged(Mode)                                    {}
func (NopObserver) OnPaneReset(PaneID)                                    {}
func (NopObserver) OnSourceChanged(PaneID, catalog.Source)                {}
func (NopObserver) OnLaunched(catalog.Action, catalog.Leaf, catalog.Leaf) {}
func (NopObserver) OnError(error)                                         {}
