package assets

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"mygpt-backend/internal/model"
	"mygpt-backend/pkg/logger"

	"github.com/google/uuid"
)

var ErrInvalidName = errors.New("invalid asset name")

// Store keeps uploaded and generated images on local disk and serves them under
// URLPrefix. File paths it returns are slash-separated and rooted at "/".
type Store struct {
	dir       string
	urlPrefix string
}

func NewStore(dir, urlPrefix string) *Store {
	return &Store{dir: dir, urlPrefix: strings.TrimRight(urlPrefix, "/")}
}

func (s *Store) Init() error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create asset dir: %w", err)
	}
	logger.Infof("Asset store initialized at %s", s.dir)
	return nil
}

func (s *Store) Dir() string {
	return s.dir
}

// Save writes r under folder with a unique name derived from name.
func (s *Store) Save(folder, name string, r io.Reader) (model.AssetResponse, error) {
	folder = path.Clean("/" + folder)
	base := path.Base("/" + name)
	if base == "/" || base == "." || strings.HasPrefix(base, "..") {
		return model.AssetResponse{}, ErrInvalidName
	}

	filePath := path.Join(folder, uuid.New().String()[:8]+"-"+base)
	target := filepath.Join(s.dir, filepath.FromSlash(filePath))

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return model.AssetResponse{}, fmt.Errorf("failed to create asset folder: %w", err)
	}

	f, err := os.Create(target)
	if err != nil {
		return model.AssetResponse{}, fmt.Errorf("failed to create asset: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(target)
		return model.AssetResponse{}, fmt.Errorf("failed to write asset: %w", err)
	}
	if err := f.Close(); err != nil {
		return model.AssetResponse{}, fmt.Errorf("failed to write asset: %w", err)
	}

	return model.AssetResponse{FilePath: filePath, URL: s.URL(filePath)}, nil
}

func (s *Store) URL(filePath string) string {
	return s.urlPrefix + filePath
}
