package dsync

import "errors"

// FileResult is the outcome of one file in a batch operation.
type FileResult struct {
	Path    string
	Skipped bool // already tracked, nothing transferred
	Err     error
}

// BatchReport collects per-file results of Scan and DownloadAll.
type BatchReport struct {
	Results []FileResult
}

func (r *BatchReport) add(res FileResult) {
	r.Results = append(r.Results, res)
}

// Succeeded counts results without an error, skipped ones included.
func (r *BatchReport) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil {
			n++
		}
	}
	return n
}

func (r *BatchReport) Failed() int {
	return len(r.Results) - r.Succeeded()
}

// Transferred counts successful results that moved data.
func (r *BatchReport) Transferred() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil && !res.Skipped {
			n++
		}
	}
	return n
}

// Err joins every per-file error, or returns nil when all succeeded.
func (r *BatchReport) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	return errors.Join(errs...)
}
