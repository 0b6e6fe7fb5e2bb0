package sources

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"quarry/internal/catalog"
	"quarry/internal/errors"
	"quarry/internal/organize"
)

// action carries the declarations shared by the built-in actions.
type action struct {
	name        string
	key         string
	itemTypes   []catalog.LeafType
	objectTypes []catalog.LeafType
}

func (a action) Name() string                    { return a.name }
func (a action) Key() string                     { return a.key }
func (a action) ItemTypes() []catalog.LeafType   { return a.itemTypes }
func (a action) ObjectTypes() []catalog.LeafType { return a.objectTypes }
func (a action) RequiresObject() bool            { return len(a.objectTypes) > 0 }
func (a action) IsFactory() bool                 { return false }

func (a action) ValidForItem(item catalog.Leaf) bool { return true }

func (a action) ValidObject(obj, forItem catalog.Leaf) bool {
	return catalog.TypeMatches(obj.Type(), a.objectTypes)
}

func (a action) fail(msg string, err error) error {
	return errors.NewActivationError(msg, a.name, errors.ActionFailed, err)
}

// OpenFolderAction browses into a directory.
type OpenFolderAction struct{ action }

// NewOpenFolderAction creates the action.
func NewOpenFolderAction() *OpenFolderAction {
	return &OpenFolderAction{action{
		name:      "Open Folder",
		key:       "action:open-folder",
		itemTypes: []catalog.LeafType{DirectoryType},
	}}
}

func (a *OpenFolderAction) IsFactory() bool { return true }

func (a *OpenFolderAction) Activate(ctx context.Context, item, _ catalog.Leaf) (catalog.Source, error) {
	src := item.ContentSource(false)
	if src == nil {
		return nil, a.fail("not a folder", nil)
	}
	return src, nil
}

// RevealAction browses into the folder containing a file.
type RevealAction struct{ action }

// NewRevealAction creates the action.
func NewRevealAction() *RevealAction {
	return &RevealAction{action{
		name:      "Show in Folder",
		key:       "action:reveal",
		itemTypes: []catalog.LeafType{FileType},
	}}
}

func (a *RevealAction) IsFactory() bool { return true }

func (a *RevealAction) Activate(ctx context.Context, item, _ catalog.Leaf) (catalog.Source, error) {
	path, ok := FilePath(item)
	if !ok {
		return nil, a.fail("not a file", nil)
	}
	return NewDirectorySource(filepath.Dir(path), DirectoryOptions{}, nil), nil
}

// transferAction moves or copies a file into a directory chosen as the
// indirect object.
type transferAction struct {
	action
	org     organize.Organizer
	copying bool
}

// NewMoveToAction creates the "Move To..." action.
func NewMoveToAction(org organize.Organizer) catalog.Action {
	return &transferAction{
		action: action{
			name:        "Move To...",
			key:         "action:move-to",
			itemTypes:   []catalog.LeafType{FileType},
			objectTypes: []catalog.LeafType{DirectoryType},
		},
		org: org,
	}
}

// NewCopyToAction creates the "Copy To..." action.
func NewCopyToAction(org organize.Organizer) catalog.Action {
	return &transferAction{
		action: action{
			name:        "Copy To...",
			key:         "action:copy-to",
			itemTypes:   []catalog.LeafType{FileType},
			objectTypes: []catalog.LeafType{DirectoryType},
		},
		org:     org,
		copying: true,
	}
}

// ValidObject rejects the item's own folder and, for directories, the item
// itself and anything below it.
func (a *transferAction) ValidObject(obj, forItem catalog.Leaf) bool {
	if !a.action.ValidObject(obj, forItem) {
		return false
	}
	dest, ok := FilePath(obj)
	if !ok {
		return false
	}
	src, ok := FilePath(forItem)
	if !ok {
		return true
	}
	if dest == src || dest == filepath.Dir(src) {
		return false
	}
	return !strings.HasPrefix(dest, src+string(filepath.Separator))
}

func (a *transferAction) Activate(ctx context.Context, item, iobj catalog.Leaf) (catalog.Source, error) {
	src, ok := FilePath(item)
	if !ok {
		return nil, a.fail("not a file", nil)
	}
	dir, ok := FilePath(iobj)
	if !ok {
		return nil, a.fail("destination is not a folder", nil)
	}

	var err error
	if a.copying {
		_, err = a.org.CopyInto(src, dir)
	} else {
		_, err = a.org.MoveInto(src, dir)
	}
	if err != nil {
		return nil, a.fail(fmt.Sprintf("could not transfer %s", filepath.Base(src)), err)
	}
	return nil, nil
}

// RenameToAction renames a file to the text given as indirect object.
type RenameToAction struct {
	action
	org organize.Organizer
}

// NewRenameToAction creates the action.
func NewRenameToAction(org organize.Organizer) *RenameToAction {
	return &RenameToAction{
		action: action{
			name:        "Rename To...",
			key:         "action:rename-to",
			itemTypes:   []catalog.LeafType{FileType},
			objectTypes: []catalog.LeafType{TextType},
		},
		org: org,
	}
}

// ObjectSource offers the current name as a starting point.
func (a *RenameToAction) ObjectSource(forItem catalog.Leaf) catalog.Source {
	leaves := []catalog.Leaf{NewTextLeaf(forItem.Name())}
	return catalog.NewListSource("Name", "rename-to:"+forItem.Key(), leaves, TextType).SetDynamic(true)
}

func (a *RenameToAction) ValidObject(obj, forItem catalog.Leaf) bool {
	text, ok := obj.(*TextLeaf)
	if !ok {
		return false
	}
	name := strings.TrimSpace(text.Text())
	return name != "" && name != forItem.Name() && !strings.ContainsRune(name, filepath.Separator)
}

func (a *RenameToAction) Activate(ctx context.Context, item, iobj catalog.Leaf) (catalog.Source, error) {
	src, ok := FilePath(item)
	if !ok {
		return nil, a.fail("not a file", nil)
	}
	text, ok := iobj.(*TextLeaf)
	if !ok {
		return nil, a.fail("new name must be text", nil)
	}
	if _, err := a.org.Rename(src, strings.TrimSpace(text.Text())); err != nil {
		return nil, a.fail("could not rename", err)
	}
	return nil, nil
}

// RescanAction forces a rescan of a catalog source. It runs in the
// background because enumeration may be slow.
type RescanAction struct {
	action
	req catalog.RescanRequester
}

// NewRescanAction creates the action.
func NewRescanAction(req catalog.RescanRequester) *RescanAction {
	return &RescanAction{
		action: action{
			name:      "Rescan",
			key:       "action:rescan",
			itemTypes: []catalog.LeafType{catalog.SourceType},
		},
		req: req,
	}
}

func (a *RescanAction) IsAsync() bool { return true }

// ValidForItem accepts only sources that keep an index.
func (a *RescanAction) ValidForItem(item catalog.Leaf) bool {
	sl, ok := item.(*catalog.SourceLeaf)
	return ok && !sl.Source().IsDynamic()
}

func (a *RescanAction) Activate(ctx context.Context, item, _ catalog.Leaf) (catalog.Source, error) {
	sl, ok := item.(*catalog.SourceLeaf)
	if !ok {
		return nil, a.fail("not a source", nil)
	}
	a.req.RegisterRescan(sl.Source(), true)
	return nil, nil
}
