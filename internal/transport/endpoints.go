package transport

import (
	"bufio"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"dsync-go/internal/dsync"
)

// EndpointPool picks uniformly at random from a fixed list of endpoints.
// Safe for concurrent use.
type EndpointPool struct {
	mu        sync.Mutex
	endpoints []string
	rng       *rand.Rand
}

// NewEndpointPool creates a pool over endpoints. An empty pool is valid;
// Select reports ErrConfiguration.
func NewEndpointPool(endpoints []string) *EndpointPool {
	return &EndpointPool{
		endpoints: append([]string(nil), endpoints...),
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Select returns a random endpoint.
func (p *EndpointPool) Select() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.endpoints) == 0 {
		return "", fmt.Errorf("no endpoints configured: %w", dsync.ErrConfiguration)
	}
	return p.endpoints[p.rng.IntN(len(p.endpoints))], nil
}

func (p *EndpointPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// LoadEndpoints reads one endpoint per line. Blank lines and lines starting
// with # are skipped. A missing file yields an empty list.
func LoadEndpoints(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening endpoints file: %w", err)
	}
	defer f.Close()

	var endpoints []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		endpoints = append(endpoints, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading endpoints file: %w", err)
	}
	return endpoints, nil
}

const endpointsTemplate = `# dsync endpoints, one per line.
# Lines starting with # are ignored.
#
# webhook:    https://discord.com/api/webhooks/<id>/<token>
# s3:         s3://bucket/prefix
# filesystem: /mnt/backup/dsync
`

// WriteTemplate creates an endpoints file containing only commented usage
// notes. An existing file is left alone.
func WriteTemplate(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating endpoints directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("creating endpoints file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(endpointsTemplate); err != nil {
		return fmt.Errorf("writing endpoints file: %w", err)
	}
	return nil
}

var _ dsync.EndpointSelector = (*EndpointPool)(nil)
