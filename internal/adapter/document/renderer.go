// Package document renders committed budgets to files.
package document

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/neomorfeo/budgetiq/internal/domain"
)

// Compile-time check: JSONRenderer implements domain.Renderer.
var _ domain.Renderer = (*JSONRenderer)(nil)

const contentType = "application/json"

// JSONRenderer writes the full aggregate as a JSON document under
// dir/<tenant>/<code>.json.
type JSONRenderer struct {
	dir string
}

// NewJSONRenderer creates a renderer rooted at dir.
func NewJSONRenderer(dir string) *JSONRenderer {
	return &JSONRenderer{dir: dir}
}

type document struct {
	Budget   domain.Snapshot  `json:"budget"`
	Versions []versionSummary `json:"versions"`
	Rendered time.Time        `json:"rendered_at"`
}

type versionSummary struct {
	Sequence  int       `json:"sequence"`
	Note      string    `json:"note"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Render writes the document, replacing any previous rendering of the
// same budget.
func (r *JSONRenderer) Render(ctx context.Context, full domain.FullBudget) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, err
	}

	b := full.Budget
	doc := document{
		Budget:   domain.TakeSnapshot(b),
		Versions: make([]versionSummary, 0, len(full.Versions)),
		Rendered: time.Now().UTC(),
	}
	for _, v := range full.Versions {
		doc.Versions = append(doc.Versions, versionSummary{
			Sequence:  v.Sequence,
			Note:      v.Note,
			AuthorID:  v.AuthorID,
			CreatedAt: v.CreatedAt,
		})
	}

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return domain.Document{}, fmt.Errorf("encoding document: %w", err)
	}

	path, err := r.pathFor(b.TenantID, b.Code)
	if err != nil {
		return domain.Document{}, err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return domain.Document{}, fmt.Errorf("creating document directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o640); err != nil {
		return domain.Document{}, fmt.Errorf("writing document: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return domain.Document{}, fmt.Errorf("publishing document: %w", err)
	}

	return domain.Document{Path: path, ContentType: contentType}, nil
}

// pathFor returns dir/<tenant>/<code>.json. Tenant and code must each be a
// single path element and the result must stay under the renderer root.
func (r *JSONRenderer) pathFor(tenantID, code string) (string, error) {
	for _, elem := range []string{tenantID, code} {
		if elem == "" || elem == "." || elem == ".." || strings.ContainsAny(elem, `/\`+"\x00") {
			return "", fmt.Errorf("invalid document path element %q", elem)
		}
	}

	path := filepath.Join(r.dir, tenantID, code+".json")
	rel, err := filepath.Rel(r.dir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("document path %q escapes %q", path, r.dir)
	}
	return path, nil
}
