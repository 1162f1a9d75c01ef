package dsync

// IndexStore persists the files index as a whole document.
type IndexStore interface {
	// Load returns an empty index when no document exists yet, and an error
	// wrapping ErrCorruptIndex when the document cannot be parsed.
	Load() (*Index, error)
	// Save rewrites the whole document. It never leaves a partial write.
	Save(ix *Index) error
}

// FolderStore persists the folders index.
type FolderStore interface {
	Load() (*FolderIndex, error)
	Save(ix *FolderIndex) error
}

// PointerStore persists the record of the live remote index copy.
type PointerStore interface {
	// Load returns nil and no error when no record exists.
	Load() (*MirrorPointer, error)
	Save(p *MirrorPointer) error
}
