package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/mod/model"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/mod/service"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared/middleware"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared/response"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared/upload"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// =====================================================
// MOD HANDLER
// =====================================================

type ModHandler struct {
	modService service.ServiceInterface
}

func NewModHandler(modService service.ServiceInterface) *ModHandler {
	return &ModHandler{
		modService: modService,
	}
}

// =====================================================
// MOD ENDPOINTS
// =====================================================

// CreateMod registers a new mod from a first upload. Expects
// multipart/form-data with the metadata fields and a "file" part
// carrying the initial version's encrypted payload.
// POST /api/v1/mods
func (h *ModHandler) CreateMod(c *gin.Context) {
	// Step 1: Get requester from JWT
	requester := middleware.GetRequester(c)
	if requester == nil {
		response.Unauthorized(c, "authentication required")
		return
	}

	// Step 2: Bind the form fields
	var req model.CreateModRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	// Step 3: Read the file part
	file, err := readUploadFile(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	// Step 4: Call service
	mod, err := h.modService.CreateMod(c.Request.Context(), requester, req, *file)
	if err != nil {
		statusCode, errCode := mapModError(err)
		response.Error(c, statusCode, errCode, err.Error())
		return
	}

	// Step 5: Return success
	response.Success(c, http.StatusCreated, mod)
}

// GetMod returns one mod with its variant snapshots
// GET /api/v1/mods/:mod_id
func (h *ModHandler) GetMod(c *gin.Context) {
	// Step 1: Get requester (may be nil for anonymous)
	requester := middleware.GetRequester(c)

	// Step 2: Call service
	mod, err := h.modService.GetMod(c.Request.Context(), requester, c.Param("mod_id"))
	if err != nil {
		statusCode, errCode := mapModError(err)
		response.Error(c, statusCode, errCode, err.Error())
		return
	}

	// Step 3: Return success
	response.Success(c, http.StatusOK, mod)
}

// GetModBySlug resolves a mod by its URL slug
// GET /api/v1/mods/slug/:slug
func (h *ModHandler) GetModBySlug(c *gin.Context) {
	// Step 1: Get requester (may be nil for anonymous)
	requester := middleware.GetRequester(c)

	// Step 2: Call service
	mod, err := h.modService.GetModBySlug(c.Request.Context(), requester, c.Param("slug"))
	if err != nil {
		statusCode, errCode := mapModError(err)
		response.Error(c, statusCode, errCode, err.Error())
		return
	}

	// Step 3: Return success
	response.Success(c, http.StatusOK, mod)
}

// ListPublic lists published public mods, optionally by category
// GET /api/v1/mods?category=themes
func (h *ModHandler) ListPublic(c *gin.Context) {
	// Step 1: Call service
	summaries, err := h.modService.ListPublic(c.Request.Context(), c.Query("category"))
	if err != nil {
		statusCode, errCode := mapModError(err)
		response.Error(c, statusCode, errCode, err.Error())
		return
	}

	// Step 2: Return success
	response.Success(c, http.StatusOK, model.ListModsResponse{Mods: summaries})
}

// ListMine lists every mod the caller owns, any visibility
// GET /api/v1/mods/mine
func (h *ModHandler) ListMine(c *gin.Context) {
	// Step 1: Get requester from JWT
	requester := middleware.GetRequester(c)
	if requester == nil {
		response.Unauthorized(c, "authentication required")
		return
	}

	// Step 2: Call service
	summaries, err := h.modService.ListMine(c.Request.Context(), requester)
	if err != nil {
		statusCode, errCode := mapModError(err)
		response.Error(c, statusCode, errCode, err.Error())
		return
	}

	// Step 3: Return success
	response.Success(c, http.StatusOK, model.ListModsResponse{Mods: summaries})
}

// UpdateMod applies a partial metadata update
// PUT /api/v1/mods/:mod_id
func (h *ModHandler) UpdateMod(c *gin.Context) {
	// Step 1: Get requester from JWT
	requester := middleware.GetRequester(c)
	if requester == nil {
		response.Unauthorized(c, "authentication required")
		return
	}

	// Step 2: Bind request body
	var req model.UpdateModRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	// Step 3: Call service
	mod, err := h.modService.UpdateMod(c.Request.Context(), requester, c.Param("mod_id"), req)
	if err != nil {
		statusCode, errCode := mapModError(err)
		response.Error(c, statusCode, errCode, err.Error())
		return
	}

	// Step 4: Return success
	response.Success(c, http.StatusOK, mod)
}

// DeleteMod removes a mod and everything under it
// DELETE /api/v1/mods/:mod_id
func (h *ModHandler) DeleteMod(c *gin.Context) {
	// Step 1: Get requester from JWT
	requester := middleware.GetRequester(c)
	if requester == nil {
		response.Unauthorized(c, "authentication required")
		return
	}

	// Step 2: Call service
	if err := h.modService.DeleteMod(c.Request.Context(), requester, c.Param("mod_id")); err != nil {
		statusCode, errCode := mapModError(err)
		response.Error(c, statusCode, errCode, err.Error())
		return
	}

	// Step 3: Return success
	response.Success(c, http.StatusOK, nil)
}

// =====================================================
// VERSION ENDPOINTS
// =====================================================

// UploadVersion stores an encrypted artifact as the mod's newest
// version. Expects multipart/form-data with a "file" part and a
// "metadata" part carrying the version JSON.
// POST /api/v1/mods/:mod_id/versions
func (h *ModHandler) UploadVersion(c *gin.Context) {
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
	var meta model.VersionMetadata
	if raw := c.PostForm("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "metadata is not valid JSON")
			return
		}
	}

	// Step 4: Call service
	version, err := h.modService.UploadVersion(c.Request.Context(), requester, c.Param("mod_id"), *file, meta)
	if err != nil {
		statusCode, errCode := mapModError(err)
		response.Error(c, statusCode, errCode, err.Error())
		return
	}

	// Step 5: Return success
	response.Success(c, http.StatusCreated, version)
}

// ListVersions lists a mod's versions, newest first
// GET /api/v1/mods/:mod_id/versions
func (h *ModHandler) ListVersions(c *gin.Context) {
	// Step 1: Get requester (may be nil for anonymous)
	requester := middleware.GetRequester(c)

	// Step 2: Call service
	versions, err := h.modService.ListVersions(c.Request.Context(), requester, c.Param("mod_id"))
	if err != nil {
		statusCode, errCode := mapModError(err)
		response.Error(c, statusCode, errCode, err.Error())
		return
	}

	// Step 3: Return success
	response.Success(c, http.StatusOK, model.ListVersionsResponse{Versions: versions})
}

// DownloadLatest serves the newest version as a decrypted file
// attachment
// GET /api/v1/mods/:mod_id/download
func (h *ModHandler) DownloadLatest(c *gin.Context) {
	// Step 1: Get requester (may be nil for anonymous)
	requester := middleware.GetRequester(c)

	// Step 2: Call service
	payload, err := h.modService.DownloadLatest(c.Request.Context(), requester, c.Param("mod_id"))
	if err != nil {
		statusCode, errCode := mapModError(err)
		response.Error(c, statusCode, errCode, err.Error())
		return
	}

	// Step 3: Stream the file
	respondFile(c, payload)
}

// DownloadVersion serves one specific version as a decrypted file
// attachment
// GET /api/v1/mods/:mod_id/versions/:version_id/download
func (h *ModHandler) DownloadVersion(c *gin.Context) {
	// Step 1: Get requester (may be nil for anonymous)
	requester := middleware.GetRequester(c)

	// Step 2: Call service
	payload, err := h.modService.DownloadVersion(c.Request.Context(), requester, c.Param("mod_id"), c.Param("version_id"))
	if err != nil {
		statusCode, errCode := mapModError(err)
		response.Error(c, statusCode, errCode, err.Error())
		return
	}

	// Step 3: Stream the file
	respondFile(c, payload)
}

// =====================================================
// ICON / USAGE / ADMIN
// =====================================================

// UploadIcon stores a mod icon and queues the resize job
// POST /api/v1/mods/:mod_id/icon
func (h *ModHandler) UploadIcon(c *gin.Context) {
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

	// Step 3: Call service
	mod, err := h.modService.UploadIcon(c.Request.Context(), requester, c.Param("mod_id"), *file)
	if err != nil {
		statusCode, errCode := mapModError(err)
		response.Error(c, statusCode, errCode, err.Error())
		return
	}

	// Step 4: Return success
	response.Success(c, http.StatusOK, mod)
}

// Usage reports the caller's storage consumption against their quota
// GET /api/v1/mods/usage
func (h *ModHandler) Usage(c *gin.Context) {
	// Step 1: Get requester from JWT
	requester := middleware.GetRequester(c)
	if requester == nil {
		response.Unauthorized(c, "authentication required")
		return
	}

	// Step 2: Call service
	report, err := h.modService.Usage(c.Request.Context(), requester)
	if err != nil {
		statusCode, errCode := mapModError(err)
		response.Error(c, statusCode, errCode, err.Error())
		return
	}

	// Step 3: Return success
	response.Success(c, http.StatusOK, report)
}

// AdminExport serves every mod summary as a spreadsheet attachment
// GET /api/v1/admin/mods/export
func (h *ModHandler) AdminExport(c *gin.Context) {
	// Step 1: Call service (AdminMiddleware gates the route)
	f, err := h.modService.AdminExport(c.Request.Context())
	if err != nil {
		statusCode, errCode := mapModError(err)
		response.Error(c, statusCode, errCode, err.Error())
		return
	}

	// Step 2: Stream the workbook
	buf, err := f.WriteToBuffer()
	if err != nil {
		response.InternalServerError(c, "failed to write export")
		return
	}

	c.Header("Content-Disposition", `attachment; filename="mods_export.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
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

// mapModError maps mod errors to HTTP status codes
func mapModError(err error) (int, string) {
	if modErr, ok := err.(*model.ModError); ok {
		switch modErr.Code {
		case model.ErrCodeModNotFound, model.ErrCodeVersionNotFound, model.ErrCodeFileNotFound:
			return http.StatusNotFound, modErr.Code
		case model.ErrCodeSlugTaken:
			return http.StatusConflict, modErr.Code
		case model.ErrCodeInvalidInput, model.ErrCodeNotEncrypted, model.ErrCodeLegacyFormat,
			model.ErrCodeDecryptionFailed, model.ErrCodeInvalidIcon:
			return http.StatusBadRequest, modErr.Code
		case model.ErrCodeForbidden:
			return http.StatusForbidden, modErr.Code
		case model.ErrCodeCorruptRecord, model.ErrCodeKeyNotConfigured, model.ErrCodeCorruptServerData:
			return http.StatusInternalServerError, modErr.Code
		default:
			return http.StatusInternalServerError, "INTERNAL_ERROR"
		}
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}
