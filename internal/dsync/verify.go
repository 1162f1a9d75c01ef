package dsync

import (
	"context"
)

// VerifyResult lists which chunks of a file are still retrievable.
type VerifyResult struct {
	Path    string
	Valid   []int
	Invalid []int
}

func (r VerifyResult) OK() bool { return len(r.Invalid) == 0 }

// Verify probes every chunk locator of every non-deleted file. Probe
// failures are reported, not returned; the error is only set when ctx is
// cancelled.
func (e *Engine) Verify(ctx context.Context) ([]VerifyResult, error) {
	var results []VerifyResult
	for _, relPath := range e.ListAvailable() {
		m, ok := e.Lookup(relPath)
		if !ok {
			continue
		}
		res := VerifyResult{Path: relPath}
		for _, c := range m.SortedChunks() {
			if err := ctx.Err(); err != nil {
				return results, err
			}
			if err := e.transport.Probe(ctx, c.Locator); err != nil {
				e.logger.Warn("chunk unavailable", "path", relPath, "chunk", c.Index, "error", err)
				res.Invalid = append(res.Invalid, c.Index)
				continue
			}
			res.Valid = append(res.Valid, c.Index)
		}
		results = append(results, res)
	}
	return results, nil
}
