package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/raffle-ticket-sales/internal/storage"
)

// maxProofBytes caps a single payment-proof upload.
const maxProofBytes = 10 << 20

type ProofUploader interface {
	Put(ctx context.Context, filename string, body io.Reader) (string, error)
}

// ProofHandler accepts payment-proof files before a reservation is made.
// A nil Store answers 503.
type ProofHandler struct {
	Store ProofUploader
	Log   zerolog.Logger
}

func NewProofHandler(store ProofUploader, log zerolog.Logger) *ProofHandler {
	return &ProofHandler{Store: store, Log: log}
}

// Upload handles POST /v1/proofs (multipart field "file").
func (h *ProofHandler) Upload(c echo.Context) error {
	if h.Store == nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody{Error: "object_store_unavailable"})
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "file_required"})
	}
	if fh.Size > maxProofBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, errorBody{Error: "file_too_large"})
	}
	f, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "file_unreadable"})
	}
	defer f.Close()

	ref, err := h.Store.Put(c.Request().Context(), fh.Filename, io.LimitReader(f, maxProofBytes))
	if errors.Is(err, storage.ErrUnsupportedType) {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "unsupported_file_type", Message: "upload a JPEG, PNG, WebP or PDF"})
	}
	if err != nil {
		h.Log.Error().Err(err).Msg("proof upload failed")
		return c.JSON(http.StatusServiceUnavailable, errorBody{Error: "object_store_unavailable"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"proof_reference": ref})
}
