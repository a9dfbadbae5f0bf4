package imagematch

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
)

// Extensions lists the file types treated as product images.
var Extensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true, ".avif": true,
}

// Candidate is one image file that may be assigned to a product.
type Candidate struct {
	// Path is the file location on disk.
	Path string `json:"path"`
	// URL is the value stored in product_images.image_url.
	URL string `json:"url"`
	// Basename is the file name without directory or extension.
	Basename string `json:"basename"`
}

// NewCandidate builds a candidate from a path relative to the image root.
func NewCandidate(root, rel, urlPrefix string) Candidate {
	rel = filepath.ToSlash(rel)
	base := path.Base(rel)
	return Candidate{
		Path:     filepath.Join(root, filepath.FromSlash(rel)),
		URL:      joinURL(urlPrefix, rel),
		Basename: strings.TrimSuffix(base, path.Ext(base)),
	}
}

// ScanDir lists image files under root in lexical order. Hidden files and
// directories are skipped.
func ScanDir(root, urlPrefix string) ([]Candidate, error) {
	var out []Candidate
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && p != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !Extensions[strings.ToLower(filepath.Ext(p))] {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		out = append(out, NewCandidate(root, rel, urlPrefix))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan image directory: %w", err)
	}
	return out, nil
}

func joinURL(prefix, rel string) string {
	if prefix == "" {
		return rel
	}
	return strings.TrimSuffix(prefix, "/") + "/" + strings.TrimPrefix(rel, "/")
}

// Pool tracks which candidates are still free within a batch. A candidate
// whose URL is already attached to a product can only go to that product.
type Pool struct {
	owners     map[string]int64
	candidates []Candidate
}

// NewPool creates a pool. assigned maps image URLs already stored to the
// product that owns them.
func NewPool(candidates []Candidate, assigned map[string]int64) *Pool {
	owners := make(map[string]int64, len(assigned))
	for url, id := range assigned {
		owners[url] = id
	}
	return &Pool{candidates: candidates, owners: owners}
}

// Len returns the number of candidates no product owns yet.
func (p *Pool) Len() int {
	n := 0
	for _, c := range p.candidates {
		if _, taken := p.owners[c.URL]; !taken {
			n++
		}
	}
	return n
}

// Available returns the candidates productID may take, in pool order.
func (p *Pool) Available(productID int64) []Candidate {
	out := make([]Candidate, 0, len(p.candidates))
	for _, c := range p.candidates {
		if owner, taken := p.owners[c.URL]; taken && owner != productID {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Consume assigns a candidate to a product so no other product can take it.
func (p *Pool) Consume(url string, productID int64) {
	p.owners[url] = productID
}

// Release frees every URL owned by productID except keep.
func (p *Pool) Release(productID int64, keep string) {
	for url, owner := range p.owners {
		if owner == productID && url != keep {
			delete(p.owners, url)
		}
	}
}

// Dir is an image directory served under a URL prefix.
type Dir struct {
	Root      string
	URLPrefix string
}

// Candidates scans the directory. An unset root yields no candidates.
func (d Dir) Candidates(ctx context.Context) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Root == "" {
		return nil, nil
	}
	return ScanDir(d.Root, d.URLPrefix)
}
