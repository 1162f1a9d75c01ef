package dsync

// CatalogEntry is the public view of a manifest. It never carries
// locators, endpoints or message ids.
type CatalogEntry struct {
	FilePath    string    `json:"file_path"`
	FileSize    int64     `json:"file_size"`
	DateCreated Timestamp `json:"date_created"`
	FileType    string    `json:"file_type"`
	Compressed  bool      `json:"compressed"`
	Encrypted   bool      `json:"encrypted"`
	Deleted     bool      `json:"deleted"`
	ChunkCount  int       `json:"chunk_count"`
}

// Catalog lists every tracked file, deleted ones included, in index order.
type Catalog struct {
	LastUpdated Timestamp      `json:"last_updated"`
	Files       []CatalogEntry `json:"files"`
}

// Catalog returns the sanitized listing served to dashboards.
func (e *Engine) Catalog() *Catalog {
	e.mu.Lock()
	defer e.mu.Unlock()

	c := &Catalog{LastUpdated: e.index.LastUpdated, Files: make([]CatalogEntry, 0, e.index.Len())}
	for _, p := range e.index.Paths() {
		m, _ := e.index.Get(p)
		c.Files = append(c.Files, CatalogEntry{
			FilePath:    m.FilePath,
			FileSize:    m.FileSize,
			DateCreated: m.DateCreated,
			FileType:    m.FileType,
			Compressed:  m.Compressed,
			Encrypted:   m.Encrypted,
			Deleted:     m.Deleted,
			ChunkCount:  len(m.Chunks),
		})
	}
	return c
}

// Active counts entries that are not deleted.
func (c *Catalog) Active() int {
	n := 0
	for _, f := range c.Files {
		if !f.Deleted {
			n++
		}
	}
	return n
}
