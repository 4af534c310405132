package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/variant/model"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/variant/service"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared/middleware"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared/response"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared/upload"
)

// =====================================================
// VARIANT HANDLER
// =====================================================

type VariantHandler struct {
	variantService service.ServiceInterface
}

func NewVariantHandler(variantService service.ServiceInterface) *VariantHandler {
	return &VariantHandler{
		variantService: variantService,
	}
}

// =====================================================
// VARIANT ENDPOINTS
// =====================================================

// CreateVariant creates a variant under a mod the caller owns
// POST /api/v1/mods/:mod_id/variants
func (h *VariantHandler) CreateVariant(c *gin.Context) {
	// Step 1: Get requester from JWT
	requester := middleware.GetRequester(c)
	if requester == nil {
		response.Unauthorized(c, "authentication required")
		return
	}

	// Step 2: Bind request body
	var req model.CreateVariantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	// Step 3: Call service
	variant, err := h.variantService.CreateVariant(c.Request.Context(), requester, c.Param("mod_id"), req)
	if err != nil {
		statusCode, errCode := mapVariantError(err)
		response.Error(c, statusCode, errCode, err.Error())
		return
	}

	// Step 4: Return success
	response.Success(c, http.StatusCreated, variant)
}

// UploadVersion stores an encrypted artifact as the variant's newest
// version. Expects multipart/form-data with a "file" part and a
// "metadata" part carrying the version JSON.
// POST /api/v1/mods/:mod_id/variants/:variant_id/versions
func (h *VariantHandler) UploadVersion(c *gin.Context) {
	// Step 1: Get requester from JWT
	requester := middleware.GetRequester(c)
	if requester == nil {
		response.Unauthorized(c, "authentication required")
		return
	}

	// Step 2: Read the file part
	file, err := readUploadFile(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	// Step 3: Parse the metadata part
	var meta model.UploadVersionMetadata
	if raw := c.PostForm("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "metadata is not valid JSON")
			return
		}
	}

	// Step 4: Call service
	version, err := h.variantService.UploadVersion(c.Request.Context(), requester, c.Param("mod_id"), c.Param("variant_id"), *file, meta)
	if err != nil {
		statusCode, errCode := mapVariantError(err)
		response.Error(c, statusCode, errCode, err.Error())
		return
	}

	// Step 5: Return success
	response.Success(c, http.StatusCreated, version)
}

// ListVersions lists a variant's versions, newest first
// GET /api/v1/mods/:mod_id/variants/:variant_id/versions
func (h *VariantHandler) ListVersions(c *gin.Context) {
	// Step 1: Get requester (may be nil for anonymous)
	requester := middleware.GetRequester(c)

	// Step 2: Call service
	versions, err := h.variantService.ListVersions(c.Request.Context(), requester, c.Param("mod_id"), c.Param("variant_id"))
	if err != nil {
		statusCode, errCode := mapVariantError(err)
		response.Error(c, statusCode, errCode, err.Error())
		return
	}

	// Step 3: Return success
	response.Success(c, http.StatusOK, model.ListVersionsResponse{Versions: versions})
}

// DownloadCurrent serves the variant's current version as a decrypted
// file attachment
// GET /api/v1/mods/:mod_id/variants/:variant_id/download
func (h *VariantHandler) DownloadCurrent(c *gin.Context) {
	// Step 1: Get requester (may be nil for anonymous)
	requester := middleware.GetRequester(c)

	// Step 2: Call service
	payload, err := h.variantService.DownloadCurrent(c.Request.Context(), requester, c.Param("mod_id"), c.Param("variant_id"))
	if err != nil {
		statusCode, errCode := mapVariantError(err)
		response.Error(c, statusCode, errCode, err.Error())
		return
	}

	// Step 3: Stream the file
	respondFile(c, payload)
}

// DownloadVersion serves one specific version as a decrypted file
// attachment
// GET /api/v1/mods/:mod_id/variants/:variant_id/versions/:version_id/download
func (h *VariantHandler) DownloadVersion(c *gin.Context) {
	// Step 1: Get requester (may be nil for anonymous)
	requester := middleware.GetRequester(c)

	// Step 2: Call service
	payload, err := h.variantService.DownloadVersion(c.Request.Context(), requester, c.Param("mod_id"), c.Param("variant_id"), c.Param("version_id"))
	if err != nil {
		statusCode, errCode := mapVariantError(err)
		response.Error(c, statusCode, errCode, err.Error())
		return
	}

	// Step 3: Stream the file
	respondFile(c, payload)
}

// DeleteVersion removes one version from a variant
// DELETE /api/v1/mods/:mod_id/variants/:variant_id/versions/:version_id
func (h *VariantHandler) DeleteVersion(c *gin.Context) {
	// Step 1: Get requester from JWT
	requester := middleware.GetRequester(c)
	if requester == nil {
		response.Unauthorized(c, "authentication required")
		return
	}

	// Step 2: Call service
	err := h.variantService.DeleteVersion(c.Request.Context(), requester, c.Param("mod_id"), c.Param("variant_id"), c.Param("version_id"))
	if err != nil {
		statusCode, errCode := mapVariantError(err)
		response.Error(c, statusCode, errCode, err.Error())
		return
	}

	// Step 3: Return success
	response.Success(c, http.StatusOK, nil)
}

// DeleteVariant removes a variant and everything under it
// DELETE /api/v1/mods/:mod_id/variants/:variant_id
func (h *VariantHandler) DeleteVariant(c *gin.Context) {
	// Step 1: Get requester from JWT
	requester := middleware.GetRequester(c)
	if requester == nil {
		response.Unauthorized(c, "authentication required")
		return
	}

	// Step 2: Call service
	err := h.variantService.DeleteVariant(c.Request.Context(), requester, c.Param("mod_id"), c.Param("variant_id"))
	if err != nil {
		statusCode, errCode := mapVariantError(err)
		response.Error(c, statusCode, errCode, err.Error())
		return
	}

	// Step 3: Return success
	response.Success(c, http.StatusOK, nil)
}

// =====================================================
// HELPER FUNCTIONS
// =====================================================

// readUploadFile pulls the "file" part out of a multipart form
func readUploadFile(c *gin.Context) (*upload.File, error) {
	header, err := c.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("file is required (multipart/form-data)")
	}
	return upload.ReadFilePart(header)
}

// respondFile streams a decrypted artifact as an attachment
func respondFile(c *gin.Context, payload *model.FilePayload) {
	contentType := payload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", payload.FileName))
	c.Data(http.StatusOK, contentType, payload.Data)
}

// mapVariantError maps variant errors to HTTP status codes
func mapVariantError(err error) (int, string) {
	if variantErr, ok := err.(*model.VariantError); ok {
		switch variantErr.Code {
		case model.ErrCodeVariantNotFound, model.ErrCodeVersionNotFound, model.ErrCodeModNotFound,
			model.ErrCodeParentVersion, model.ErrCodeFileNotFound:
			return http.StatusNotFound, variantErr.Code
		case model.ErrCodeInvalidInput, model.ErrCodeNotEncrypted, model.ErrCodeLegacyFormat,
			model.ErrCodeDecryptionFailed:
			return http.StatusBadRequest, variantErr.Code
		case model.ErrCodeForbidden:
			return http.StatusForbidden, variantErr.Code
		case model.ErrCodeCorruptRecord, model.ErrCodeKeyNotConfigured, model.ErrCodeCorruptServerData:
			return http.StatusInternalServerError, variantErr.Code
		default:
			return http.StatusInternalServerError, "INTERNAL_ERROR"
		}
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}
