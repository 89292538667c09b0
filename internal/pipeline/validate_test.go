package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"dupligone/internal/config"
	"dupligone/internal/dgerr"
)

func testOrchestrator() *Orchestrator {
	return &Orchestrator{
		cfg: config.Config{
			UploadMaxSizeBytes: 1024,
			AllowedExtensions: map[string]struct{}{
				"jpg": {}, "jpeg": {}, "png": {}, "webp": {},
			},
		},
	}
}

func TestValidateFileRejectsNonImageContentType(t *testing.T) {
	o := testOrchestrator()
	err := o.validateFile(UploadedFile{Filename: "a.jpg", ContentType: "text/plain", Data: []byte("x")})
	require.Error(t, err)
	require.Equal(t, 400, dgerr.HTTPStatus(err))
}

func TestValidateFileRejectsOversizedFile(t *testing.T) {
	o := testOrchestrator()
	big := make([]byte, 2048)
	err := o.validateFile(UploadedFile{Filename: "a.jpg", ContentType: "image/jpeg", Data: big})
	require.Error(t, err)
}

func TestValidateFileRejectsDisallowedExtension(t *testing.T) {
	o := testOrchestrator()
	err := o.validateFile(UploadedFile{Filename: "a.gif", ContentType: "image/gif", Data: []byte("x")})
	require.Error(t, err)
}

func TestValidateFileAcceptsWellFormedImage(t *testing.T) {
	o := testOrchestrator()
	err := o.validateFile(UploadedFile{Filename: "a.PNG", ContentType: "image/png", Data: []byte("x")})
	require.NoError(t, err)
}

func TestExtOfHandlesMissingAndMultipleDots(t *testing.T) {
	require.Equal(t, "", extOf("noext"))
	require.Equal(t, "jpg", extOf("a.b.jpg"))
	require.Equal(t, "PNG", extOf("FILE.PNG"))
}
