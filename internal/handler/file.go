package handler

import (
    "context"
    "errors"
    "io"
    "mime"
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/filevault/internal/apperr"
    "github.com/iliyamo/filevault/internal/middleware"
    "github.com/iliyamo/filevault/internal/model"
    "github.com/iliyamo/filevault/internal/utils"
)

// multipart framing allowance on top of the payload limit
const multipartOverhead = 1 << 20

// Files is the file persistence surface used by FileHandler.
type Files interface {
    Store(ctx context.Context, ownerID string, data []byte, originalName, mimeType string) (*model.FileRecord, error)
    List(ctx context.Context, ownerID string, page, pageSize int) (model.FilePage, error)
    Get(ctx context.Context, id uint64, ownerID string) (*model.FileRecord, error)
    ResolveForDownload(ctx context.Context, id uint64, ownerID string) (io.ReadCloser, *model.FileRecord, error)
    Update(ctx context.Context, id uint64, ownerID string, data []byte, originalName, mimeType string) (*model.FileRecord, error)
    Delete(ctx context.Context, id uint64, ownerID string) error
}

// FileHandler serves /v1/files. Every operation is scoped to the caller.
type FileHandler struct {
    Files    Files
    MaxBytes int64
    Log      *zap.SugaredLogger
}

func NewFileHandler(files Files, maxBytes int64, log *zap.SugaredLogger) *FileHandler {
    return &FileHandler{Files: files, MaxBytes: maxBytes, Log: log}
}

type fileListResp struct {
    Records    []model.FileRecord `json:"records"`
    Page       int                `json:"page"`
    PageSize   int                `json:"page_size"`
    TotalCount int64              `json:"total_count"`
}

type upload struct {
    data []byte
    name string
    mime string
}

// readUpload pulls the "file" part out of a multipart body.
func (h *FileHandler) readUpload(c echo.Context) (upload, error) {
    req := c.Request()
    req.Body = http.MaxBytesReader(c.Response(), req.Body, h.MaxBytes+multipartOverhead)

    fh, err := c.FormFile("file")
    if err != nil {
        var tooLarge *http.MaxBytesError
        if errors.As(err, &tooLarge) {
            return upload{}, apperr.ErrPayloadTooLarge
        }
        return upload{}, apperr.ErrEmptyPayload
    }
    if fh.Size > h.MaxBytes {
        return upload{}, apperr.ErrPayloadTooLarge
    }
    if fh.Size == 0 {
        return upload{}, apperr.ErrEmptyPayload
    }
    f, err := fh.Open()
    if err != nil {
        return upload{}, apperr.Infra("open upload", err)
    }
    defer f.Close()
    data, err := io.ReadAll(f)
    if err != nil {
        return upload{}, apperr.Infra("read upload", err)
    }
    return upload{data: data, name: fh.Filename, mime: fh.Header.Get(echo.HeaderContentType)}, nil
}

func (h *FileHandler) owner(c echo.Context) (string, error) {
    id, ok := middleware.IdentityFrom(c)
    if !ok {
        return "", apperr.ErrInvalidToken
    }
    return id.UserID, nil
}

// Upload stores a new file.
func (h *FileHandler) Upload(c echo.Context) error {
    ownerID, err := h.owner(c)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    up, err := h.readUpload(c)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    rec, err := h.Files.Store(c.Request().Context(), ownerID, up.data, up.name, up.mime)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    return utils.OK(c, http.StatusCreated, "file stored", rec)
}

// List returns one page of the caller's files, newest first.
func (h *FileHandler) List(c echo.Context) error {
    ownerID, err := h.owner(c)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    // unparsable values fall back to the defaults like non-positive ones
    page, _ := strconv.Atoi(c.QueryParam("page"))
    pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))

    res, err := h.Files.List(c.Request().Context(), ownerID, page, pageSize)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    return utils.OK(c, http.StatusOK, "ok", fileListResp{
        Records:    res.Records,
        Page:       res.Page,
        PageSize:   res.PageSize,
        TotalCount: res.TotalCount,
    })
}

// Get returns the metadata of one file.
func (h *FileHandler) Get(c echo.Context) error {
    ownerID, err := h.owner(c)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    id, err := parseID(c)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    rec, err := h.Files.Get(c.Request().Context(), id, ownerID)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    return utils.OK(c, http.StatusOK, "ok", rec)
}

// Download streams the raw bytes with the stored content type and name.
func (h *FileHandler) Download(c echo.Context) error {
    ownerID, err := h.owner(c)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    id, err := parseID(c)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    rc, rec, err := h.Files.ResolveForDownload(c.Request().Context(), id, ownerID)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    defer rc.Close()

    c.Response().Header().Set(echo.HeaderContentDisposition,
        mime.FormatMediaType("attachment", map[string]string{"filename": rec.OriginalName}))
    c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(rec.Size, 10))
    return c.Stream(http.StatusOK, rec.MimeType, rc)
}

// Update replaces the content of one file.
func (h *FileHandler) Update(c echo.Context) error {
    ownerID, err := h.owner(c)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    id, err := parseID(c)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    up, err := h.readUpload(c)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    rec, err := h.Files.Update(c.Request().Context(), id, ownerID, up.data, up.name, up.mime)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    return utils.OK(c, http.StatusOK, "file updated", rec)
}

// Delete removes one file.
func (h *FileHandler) Delete(c echo.Context) error {
    ownerID, err := h.owner(c)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    id, err := parseID(c)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    if err := h.Files.Delete(c.Request().Context(), id, ownerID); err != nil {
        return writeError(c, h.Log, err)
    }
    return utils.OK(c, http.StatusOK, "file deleted", nil)
}
