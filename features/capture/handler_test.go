package capture

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestHandler(repo *MockRepository, emb *MockEmbedder, pub *MockPublisher) *Handler {
	return NewHandler(newTestService(repo, emb, pub), testMaxFileSize)
}

func multipartBody(t *testing.T, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHandler_Create_NewContent(t *testing.T) {
	repo := new(MockRepository)
	emb := new(MockEmbedder)
	pub := new(MockPublisher)
	h := newTestHandler(repo, emb, pub)

	repo.On("GetByHash", mock.Anything, mock.Anything).Return(nil, nil)
	emb.On("Embed", mock.Anything, "hello world").Return([]float32{0.1}, nil)
	emb.On("ModelVersion").Return("text-embedding-004")
	repo.On("CreateWithEmbedding", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			item := args.Get(1).(*ContentItem)
			item.ID = "item-1"
			item.CreatedAt = time.Now()
		}).Return(nil)
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/capture",
		strings.NewReader(`{"content": "hello world", "source": "manual_entry"}`))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, "item-1", data["id"])
	assert.Equal(t, "created", data["status"])
}

func TestHandler_Create_Duplicate(t *testing.T) {
	repo := new(MockRepository)
	h := newTestHandler(repo, new(MockEmbedder), new(MockPublisher))

	repo.On("GetByHash", mock.Anything, mock.Anything).
		Return(&ContentItem{ID: "item-1", CreatedAt: time.Now()}, nil)

	req := httptest.NewRequest(http.MethodPost, "/capture",
		strings.NewReader(`{"content": "hello world", "source": "manual_entry"}`))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, "item-1", data["id"])
	assert.Equal(t, "already_exists", data["status"])
}

func TestHandler_Create_EmptyContent(t *testing.T) {
	h := newTestHandler(new(MockRepository), new(MockEmbedder), new(MockPublisher))

	req := httptest.NewRequest(http.MethodPost, "/capture",
		strings.NewReader(`{"content": "   \n ", "source": "manual_entry"}`))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errObj := decodeBody(t, rec)["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_ERROR", errObj["code"])
}

func TestHandler_Create_InvalidJSON(t *testing.T) {
	h := newTestHandler(new(MockRepository), new(MockEmbedder), new(MockPublisher))

	req := httptest.NewRequest(http.MethodPost, "/capture", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Create_EmbeddingFailure(t *testing.T) {
	repo := new(MockRepository)
	emb := new(MockEmbedder)
	h := newTestHandler(repo, emb, new(MockPublisher))

	repo.On("GetByHash", mock.Anything, mock.Anything).Return(nil, nil)
	emb.On("Embed", mock.Anything, mock.Anything).
		Return(nil, &EmbeddingFailureForTest{})

	req := httptest.NewRequest(http.MethodPost, "/capture",
		strings.NewReader(`{"content": "hello", "source": "manual_entry"}`))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	// Unwrappable provider errors are treated as configuration faults.
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	errObj := decodeBody(t, rec)["error"].(map[string]any)
	assert.Equal(t, "CONFIGURATION_ERROR", errObj["code"])
	assert.NotEmpty(t, decodeBody(t, rec)["correlationId"])
}

type EmbeddingFailureForTest struct{}

func (e *EmbeddingFailureForTest) Error() string { return "provider unavailable" }

func TestHandler_Upload_TextFile(t *testing.T) {
	repo := new(MockRepository)
	emb := new(MockEmbedder)
	pub := new(MockPublisher)
	h := newTestHandler(repo, emb, pub)

	repo.On("GetByHash", mock.Anything, mock.Anything).Return(nil, nil)
	emb.On("Embed", mock.Anything, "from a file").Return([]float32{0.1}, nil)
	emb.On("ModelVersion").Return("m")
	repo.On("CreateWithEmbedding", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(1).(*ContentItem).ID = "item-1"
		}).Return(nil)
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil)

	body, contentType := multipartBody(t, "notes.txt", []byte("from a file\n"), nil)
	req := httptest.NewRequest(http.MethodPost, "/capture/file", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, "created", data["status"])
	assert.Equal(t, "from a file", data["preview"])
	file := data["file"].(map[string]any)
	assert.Equal(t, "notes.txt", file["filename"])
}

func TestHandler_Upload_UnsupportedKind(t *testing.T) {
	h := newTestHandler(new(MockRepository), new(MockEmbedder), new(MockPublisher))

	body, contentType := multipartBody(t, "evil.exe", []byte{0x4d, 0x5a, 0x00}, nil)
	req := httptest.NewRequest(http.MethodPost, "/capture/file", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errObj := decodeBody(t, rec)["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_ERROR", errObj["code"])
	msg := errObj["message"].(string)
	assert.Contains(t, msg, ".txt")
	assert.Contains(t, msg, ".pdf")
	assert.Contains(t, msg, ".docx")
}

func TestHandler_Upload_WhitespaceOnlyFile(t *testing.T) {
	h := newTestHandler(new(MockRepository), new(MockEmbedder), new(MockPublisher))

	body, contentType := multipartBody(t, "blank.txt", []byte("   \n\t  "), nil)
	req := httptest.NewRequest(http.MethodPost, "/capture/file", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errObj := decodeBody(t, rec)["error"].(map[string]any)
	assert.Contains(t, errObj["message"], "extracted text is empty")
}

func TestHandler_Upload_BadMetadata(t *testing.T) {
	h := newTestHandler(new(MockRepository), new(MockEmbedder), new(MockPublisher))

	body, contentType := multipartBody(t, "a.txt", []byte("hello"), map[string]string{"metadata": "not json"})
	req := httptest.NewRequest(http.MethodPost, "/capture/file", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Upload_MissingFileField(t *testing.T) {
	h := newTestHandler(new(MockRepository), new(MockEmbedder), new(MockPublisher))

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("source", "file_upload"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/capture/file", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Get(t *testing.T) {
	repo := new(MockRepository)
	h := newTestHandler(repo, new(MockEmbedder), new(MockPublisher))

	t.Run("Found", func(t *testing.T) {
		repo.On("Get", mock.Anything, "item-1").
			Return(&ContentItem{ID: "item-1", Content: "hello", Metadata: map[string]any{}}, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/items/item-1", nil)
		req.SetPathValue("id", "item-1")
		rec := httptest.NewRecorder()
		h.Get(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		data := decodeBody(t, rec)["data"].(map[string]any)
		assert.Equal(t, "item-1", data["id"])
	})

	t.Run("NotFound", func(t *testing.T) {
		repo.On("Get", mock.Anything, "missing").Return(nil, sql.ErrNoRows).Once()

		req := httptest.NewRequest(http.MethodGet, "/items/missing", nil)
		req.SetPathValue("id", "missing")
		rec := httptest.NewRecorder()
		h.Get(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		errObj := decodeBody(t, rec)["error"].(map[string]any)
		assert.Equal(t, "NOT_FOUND", errObj["code"])
	})
}

func TestHandler_List(t *testing.T) {
	repo := new(MockRepository)
	h := newTestHandler(repo, new(MockEmbedder), new(MockPublisher))

	t.Run("Empty", func(t *testing.T) {
		repo.On("List", mock.Anything, 50).Return([]ContentItem(nil), nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/items", nil)
		rec := httptest.NewRecorder()
		h.List(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		resp := decodeBody(t, rec)
		assert.Equal(t, []any{}, resp["data"])
	})

	t.Run("WithLimit", func(t *testing.T) {
		repo.On("List", mock.Anything, 5).
			Return([]ContentItem{{ID: "item-1", Metadata: map[string]any{}}}, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/items?limit=5", nil)
		rec := httptest.NewRecorder()
		h.List(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		meta := decodeBody(t, rec)["meta"].(map[string]any)
		assert.Equal(t, float64(1), meta["count"])
	})

	t.Run("ExcessiveLimitFallsBackToDefault", func(t *testing.T) {
		repo.On("List", mock.Anything, 50).Return([]ContentItem{}, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/items?limit=10000000", nil)
		rec := httptest.NewRecorder()
		h.List(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		repo.AssertExpectations(t)
	})

	t.Run("NegativeLimitFallsBackToDefault", func(t *testing.T) {
		repo.On("List", mock.Anything, 50).Return([]ContentItem{}, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/items?limit=-1", nil)
		rec := httptest.NewRecorder()
		h.List(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		repo.AssertExpectations(t)
	})
}
