// Package loam reads claims from a directory tree through a Loam document
// repository. Each claim lives in its own directory next to its attachments:
//
//	claims/
//	  CLM-1001/
//	    claim.json
//	    front.jpg
//
// A claim file without a claim_id takes the name of its directory.
package loam

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/loam"
	"github.com/aretw0/loam/pkg/core"
	"github.com/mitchellh/mapstructure"
	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
)

// ClaimFile is the document name, without extension, holding a claim.
const ClaimFile = "claim"

// Source adapts a Loam repository to ports.ClaimSource and ports.Watchable.
// Documents are decoded one by one, so a malformed claim never hides the others.
type Source struct {
	Repo core.Repository
	root string
}

// New creates a claim source over repo. root is the repository directory,
// used to resolve each claim's attachment directory.
func New(repo core.Repository, root string) *Source {
	return &Source{Repo: repo, root: root}
}

// Open initializes a read-only Loam repository at dir.
func Open(dir string) (*Source, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	// Strict mode keeps numeric types consistent across JSON and YAML claims.
	// Read-only: triage never writes into the claims tree.
	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
		loam.WithVersioning(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(repo, absPath), nil
}

// isClaimDoc reports whether a document ID names a claim file, e.g. "CLM-1/claim.json".
func isClaimDoc(docID string) bool {
	return trimExtension(path.Base(filepath.ToSlash(docID))) == ClaimFile
}

func trimExtension(id string) string {
	return strings.TrimSuffix(id, path.Ext(id))
}

// dateToString lets YAML timestamps fill string fields such as incident_date.
func dateToString(_ reflect.Type, to reflect.Type, data any) (any, error) {
	t, ok := data.(time.Time)
	if !ok || to.Kind() != reflect.String {
		return data, nil
	}
	if t.Equal(t.Truncate(24 * time.Hour)) {
		return t.Format(time.DateOnly), nil
	}
	return t.Format(time.RFC3339), nil
}

func decodeClaim(meta core.Metadata) (domain.Claim, error) {
	var c domain.Claim
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: dateToString,
		Result:     &c,
	})
	if err != nil {
		return c, err
	}
	if err := dec.Decode(map[string]any(meta)); err != nil {
		return c, fmt.Errorf("%w: %w", domain.ErrInvalidClaim, err)
	}
	return c, nil
}

// List returns every readable claim in the tree, ordered by ID. Claim files
// that do not decode, and claim IDs defined by more than one file, are left
// out and described by the returned *domain.SkippedClaimsError.
func (s *Source) List(ctx context.Context) ([]domain.Claim, error) {
	docs, err := s.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })

	var skipped []*domain.ClaimError
	byID := make(map[string][]domain.Claim)
	sources := make(map[string][]string)
	for _, doc := range docs {
		if !isClaimDoc(doc.ID) {
			continue
		}
		dir := path.Dir(filepath.ToSlash(doc.ID))

		c, err := decodeClaim(doc.Metadata)
		if c.ClaimID == "" {
			c.ClaimID = path.Base(dir)
		}
		if c.ClaimID == "" || c.ClaimID == "." {
			continue
		}
		if err != nil {
			skipped = append(skipped, &domain.ClaimError{ClaimID: c.ClaimID, Document: doc.ID, Err: err})
			continue
		}
		c.Dir = filepath.Join(s.root, filepath.FromSlash(dir))

		byID[c.ClaimID] = append(byID[c.ClaimID], c)
		sources[c.ClaimID] = append(sources[c.ClaimID], doc.ID)
	}

	skipped = append(skipped, s.unparsed(docs)...)

	claims := make([]domain.Claim, 0, len(byID))
	for id, found := range byID {
		if len(found) > 1 {
			// Neither file is trusted over the other
			for _, doc := range sources[id] {
				skipped = append(skipped, &domain.ClaimError{
					ClaimID:  id,
					Document: doc,
					Err:      fmt.Errorf("%w: also defined in %s", domain.ErrDuplicateClaim, strings.Join(others(sources[id], doc), ", ")),
				})
			}
			continue
		}
		claims = append(claims, found[0])
	}

	sort.Slice(claims, func(i, j int) bool { return claims[i].ClaimID < claims[j].ClaimID })
	if len(skipped) > 0 {
		sort.SliceStable(skipped, func(i, j int) bool { return skipped[i].Document < skipped[j].Document })
		return claims, &domain.SkippedClaimsError{Skipped: skipped}
	}
	return claims, nil
}

// claimExts are the formats Loam parses claim files from.
var claimExts = map[string]bool{".json": true, ".yaml": true, ".yml": true, ".md": true}

// unparsed finds claim files on disk that Loam could not parse at all, such as
// truncated JSON. Loam leaves them out of its listing without an error.
func (s *Source) unparsed(docs []core.Document) []*domain.ClaimError {
	if s.root == "" {
		return nil
	}
	listed := make(map[string]bool, len(docs))
	for _, doc := range docs {
		listed[trimExtension(filepath.ToSlash(doc.ID))] = true
	}

	var out []*domain.ClaimError
	_ = filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != s.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !claimExts[filepath.Ext(p)] || !isClaimDoc(p) {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return nil
		}
		id := trimExtension(filepath.ToSlash(rel))
		if listed[id] || path.Dir(id) == "." {
			return nil
		}
		out = append(out, &domain.ClaimError{
			ClaimID:  path.Base(path.Dir(id)),
			Document: filepath.ToSlash(rel),
			Err:      fmt.Errorf("%w: file could not be parsed", domain.ErrInvalidClaim),
		})
		return nil
	})
	return out
}

func others(docs []string, self string) []string {
	var out []string
	for _, d := range docs {
		if d != self {
			out = append(out, d)
		}
	}
	return out
}

// Get returns a single claim by ID. A claim that exists but cannot be read
// returns its *domain.ClaimError.
func (s *Source) Get(ctx context.Context, claimID string) (domain.Claim, error) {
	claims, err := s.List(ctx)
	var skipped *domain.SkippedClaimsError
	if err != nil && !errors.As(err, &skipped) {
		return domain.Claim{}, err
	}
	for _, c := range claims {
		if c.ClaimID == claimID {
			return c, nil
		}
	}
	if skipped != nil {
		for _, ce := range skipped.Skipped {
			if ce.ClaimID == claimID {
				return domain.Claim{}, ce
			}
		}
	}
	return domain.Claim{}, fmt.Errorf("%s: %w", claimID, domain.ErrClaimNotFound)
}

// Watch implements ports.Watchable. It signals whenever a claim file changes.
func (s *Source) Watch(ctx context.Context) (<-chan struct{}, error) {
	w, ok := s.Repo.(core.Watchable)
	if !ok {
		return nil, errors.New("loam repository does not support watching")
	}
	events, err := w.Watch(ctx, "**/"+ClaimFile+".{json,yaml,yml,md}")
	if err != nil {
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}
	if events == nil {
		return nil, errors.New("loam watcher returned no event stream")
	}

	ch := make(chan struct{}, 1)

	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				// Coalesce bursts: one pending signal is enough for a rescan
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()

	return ch, nil
}
