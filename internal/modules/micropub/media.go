package micropub

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/tanzawa/core/internal/config"
	"github.com/tanzawa/core/internal/models"
	"github.com/tanzawa/core/internal/pkg/objectstore"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxUploadSize caps a single media upload at 32 MiB.
const maxUploadSize = 32 << 20

// dataURIPattern matches inline base64 images Micropub clients embed
// directly in content markup.
var dataURIPattern = regexp.MustCompile(`data:(image/[a-z+.-]+);base64,([A-Za-z0-9+/=]+)`)

// MediaService stores uploads on local disk, records them in the database,
// and optionally mirrors them to object storage.
type MediaService struct {
	db     *gorm.DB
	cfg    *config.AppConfig
	logger *zap.Logger
	store  *objectstore.Store
}

func NewMediaService(db *gorm.DB, cfg *config.AppConfig, logger *zap.Logger, store *objectstore.Store) *MediaService {
	return &MediaService{db: db, cfg: cfg, logger: logger, store: store}
}

// SaveUpload persists one multipart upload.
func (m *MediaService) SaveUpload(ctx context.Context, fh *multipart.FileHeader) (*models.FileModel, error) {
	if fh.Size > maxUploadSize {
		return nil, fmt.Errorf("upload exceeds %d bytes", maxUploadSize)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxUploadSize))
	if err != nil {
		return nil, err
	}

	mimeType := fh.Header.Get("Content-Type")
	return m.saveBytes(ctx, data, mimeType, fh.Filename)
}

// saveBytes writes the payload to MediaDir under a fresh unique name,
// records it, and mirrors it when the object store is configured. A mirror
// failure is logged, not fatal: the local copy is canonical.
func (m *MediaService) saveBytes(ctx context.Context, data []byte, mimeType, originalName string) (*models.FileModel, error) {
	ext := filepath.Ext(originalName)
	if ext == "" {
		if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
			ext = exts[0]
		}
	}
	name := uuid.New().String() + strings.ToLower(ext)

	if err := os.MkdirAll(m.cfg.MediaDir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(m.cfg.MediaDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, err
	}

	file := &models.FileModel{
		Name:         name,
		OriginalName: originalName,
		MimeType:     mimeType,
		Size:         int64(len(data)),
		Path:         path,
	}

	if m.store != nil {
		mirrorURL, err := m.store.Put(ctx, "media/"+name, data, mimeType)
		if err != nil {
			m.logger.Warn("media mirror failed", zap.String("name", name), zap.Error(err))
		} else {
			file.MirrorURL = mirrorURL
		}
	}

	if err := m.db.Create(file).Error; err != nil {
		os.Remove(path)
		return nil, err
	}
	return file, nil
}

// ExtractInlineImages rewrites data: URIs in content into stored media
// files referenced by /media/ URLs. Content without inline images passes
// through unchanged.
func (m *MediaService) ExtractInlineImages(ctx context.Context, content string) (string, []*models.FileModel, error) {
	matches := dataURIPattern.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return content, nil, nil
	}

	var files []*models.FileModel
	var b strings.Builder
	last := 0
	for _, idx := range matches {
		mimeType := content[idx[2]:idx[3]]
		payload := content[idx[4]:idx[5]]

		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			continue
		}
		file, err := m.saveBytes(ctx, data, mimeType, "")
		if err != nil {
			return "", nil, err
		}
		files = append(files, file)

		b.WriteString(content[last:idx[0]])
		b.WriteString(m.URLFor(file))
		last = idx[1]
	}
	b.WriteString(content[last:])
	return b.String(), files, nil
}

// URLFor returns the serving URL for a stored file.
func (m *MediaService) URLFor(file *models.FileModel) string {
	return m.cfg.SiteURL + "/media/" + file.Name
}

// Lookup resolves a stored filename to its record.
func (m *MediaService) Lookup(name string) (*models.FileModel, error) {
	var file models.FileModel
	if err := m.db.First(&file, "name = ?", name).Error; err != nil {
		return nil, err
	}
	return &file, nil
}
