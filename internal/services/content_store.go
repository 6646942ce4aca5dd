package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/adrg/frontmatter"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"larder/internal/models"
)

// ContentSource supplies content records keyed by type and slug.
type ContentSource interface {
	ListRecords(ctx context.Context, contentType string) ([]models.ContentRecord, error)
	GetRecord(ctx context.Context, contentType, slug string) (*models.ContentRecord, error)
	ListPillars(ctx context.Context) ([]models.PillarRecord, error)
}

// FileContentStore reads markdown files with YAML front matter from
// <root>/<type>/<slug>.md. Records are re-read on every call; concurrent loads of
// the same type share one disk pass.
type FileContentStore struct {
	root   string
	group  singleflight.Group
	logger *zap.Logger
}

func NewFileContentStore(root string, logger *zap.Logger) *FileContentStore {
	if root == "" {
		root = "./content"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileContentStore{root: root, logger: logger}
}

// Front matter is YAML between "---" lines, decoded with yaml.v3.
var yamlFrontMatter = frontmatter.NewFormat("---", "---", yaml.Unmarshal)

// parseFrontMatter decodes the header into v and returns the markdown body.
// Files without a header yield the whole input as body.
func parseFrontMatter(raw []byte, v interface{}) ([]byte, error) {
	raw = bytes.TrimPrefix(raw, []byte("\ufeff"))
	body, err := frontmatter.Parse(bytes.NewReader(raw), v, yamlFrontMatter)
	if err != nil {
		return nil, err
	}
	return bytes.TrimLeft(body, "\r\n"), nil
}

func (s *FileContentStore) readDir(contentType string, each func(slug string, raw []byte) error) error {
	dir := filepath.Join(s.root, filepath.Clean("/" + contentType)[1:])
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read content dir %s: %w", dir, err)
	}

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			s.logger.Warn("skip unreadable content file", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		if err := each(strings.TrimSuffix(e.Name(), ".md"), raw); err != nil {
			s.logger.Warn("skip content file", zap.String("file", e.Name()), zap.Error(err))
		}
	}
	return nil
}

// ListRecords ignores ctx cancellation: the disk pass is shared by every
// concurrent caller of the same type and must finish for all of them.
func (s *FileContentStore) ListRecords(ctx context.Context, contentType string) ([]models.ContentRecord, error) {
	v, err, _ := s.group.Do("records:"+contentType, func() (interface{}, error) {
		records := make([]models.ContentRecord, 0)
		err := s.readDir(contentType, func(slug string, raw []byte) error {
			var rec models.ContentRecord
			body, err := parseFrontMatter(raw, &rec)
			if err != nil {
				return err
			}
			if rec.Slug == "" {
				rec.Slug = slug
			}
			rec.Type = contentType
			rec.Body = string(body)
			records = append(records, rec)
			return nil
		})
		sort.Slice(records, func(i, j int) bool { return records[i].Slug < records[j].Slug })
		return records, err
	})
	if err != nil {
		return nil, err
	}
	shared := v.([]models.ContentRecord)
	return append([]models.ContentRecord(nil), shared...), nil
}

// GetRecord returns nil, nil when no record has the slug.
func (s *FileContentStore) GetRecord(ctx context.Context, contentType, slug string) (*models.ContentRecord, error) {
	records, err := s.ListRecords(ctx, contentType)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].Slug == slug {
			return &records[i], nil
		}
	}
	return nil, nil
}

func (s *FileContentStore) ListPillars(ctx context.Context) ([]models.PillarRecord, error) {
	v, err, _ := s.group.Do("pillars", func() (interface{}, error) {
		pillars := make([]models.PillarRecord, 0)
		err := s.readDir(models.ContentTypeGuide, func(slug string, raw []byte) error {
			var p models.PillarRecord
			body, err := parseFrontMatter(raw, &p)
			if err != nil {
				return err
			}
			if p.Slug == "" {
				p.Slug = slug
			}
			p.Body = string(body)
			pillars = append(pillars, p)
			return nil
		})
		sort.Slice(pillars, func(i, j int) bool { return pillars[i].Slug < pillars[j].Slug })
		return pillars, err
	})
	if err != nil {
		return nil, err
	}
	return append([]models.PillarRecord(nil), v.([]models.PillarRecord)...), nil
}
