package micropub

import (
	"bytes"
	"context"
	"encoding/base64"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanzawa/core/internal/config"
	"github.com/tanzawa/core/internal/modules/indieauth"
	"go.uber.org/zap"
)

func newTestMediaService(t *testing.T) *MediaService {
	t.Helper()
	env := newTestEnv(t)
	cfg := &config.AppConfig{SiteURL: "https://me.example", MediaDir: t.TempDir()}
	return NewMediaService(env.db, cfg, zap.NewNop(), nil)
}

// 1x1 transparent PNG.
var tinyPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func TestMediaEndpointUpload(t *testing.T) {
	env := newTestEnv(t)
	token := env.issueToken(t, indieauth.ScopeMedia)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "photo.png")
	require.NoError(t, err)
	_, err = fw.Write(tinyPNG)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/micropub/media", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Location"), "https://me.example/media/")
}

func TestMediaEndpointRequiresMediaScope(t *testing.T) {
	env := newTestEnv(t)
	token := env.issueToken(t, indieauth.ScopeCreate)

	req := httptest.NewRequest(http.MethodPost, "/micropub/media", nil)
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestExtractInlineImages(t *testing.T) {
	media := newTestMediaService(t)

	encoded := base64.StdEncoding.EncodeToString(tinyPNG)
	content := `<p>pic: <img src="data:image/png;base64,` + encoded + `"></p>`

	rewritten, files, err := media.ExtractInlineImages(context.Background(), content)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.NotContains(t, rewritten, "base64")
	assert.Contains(t, rewritten, "/media/"+files[0].Name)

	stored, err := os.ReadFile(files[0].Path)
	require.NoError(t, err)
	assert.Equal(t, tinyPNG, stored)
}

func TestExtractInlineImagesPassthrough(t *testing.T) {
	media := newTestMediaService(t)

	content := "<p>no images here</p>"
	rewritten, files, err := media.ExtractInlineImages(context.Background(), content)
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.Equal(t, content, rewritten)
}
