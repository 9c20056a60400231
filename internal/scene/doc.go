// Package scene is a document of positioned components whose every change
// is recorded by an engine and can be undone.
//
// Components can be added, removed, moved, resized, grouped and ungrouped.
// Named features (name, visibility, fill colour) are set through a typed
// registry. The document also carries an undoable selection and crosshair.
package scene
