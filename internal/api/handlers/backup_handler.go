package handlers

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/jailkeeper/internal/api/middleware"
	"github.com/Wikid82/jailkeeper/internal/apperr"
	"github.com/Wikid82/jailkeeper/internal/services"
)

type BackupHandler struct {
	service *services.BackupService
}

func NewBackupHandler(service *services.BackupService) *BackupHandler {
	return &BackupHandler{service: service}
}

func (h *BackupHandler) List(c *gin.Context) {
	backups, err := h.service.List()
	if err != nil {
		respondError(c, "list_backups", err)
		return
	}
	c.JSON(http.StatusOK, backups)
}

func (h *BackupHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Param("filename")); err != nil {
		respondError(c, "delete_backup", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Backup deleted"})
}

func (h *BackupHandler) Download(c *gin.Context) {
	filename := c.Param("filename")
	path, err := h.service.GetBackupPath(filename)
	if err != nil {
		respondError(c, "download_backup", err)
		return
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		respondError(c, "download_backup", apperr.NotFound("backup", filename))
		return
	}
	c.FileAttachment(path, filename)
}

func (h *BackupHandler) Restore(c *gin.Context) {
	filename := c.Param("filename")
	if err := h.service.Restore(filename); err != nil {
		respondError(c, "restore_backup", err)
		return
	}
	middleware.GetRequestLogger(c).WithField("action", "restore_backup").WithField("filename", filename).Info("Backup restored successfully")
	c.JSON(http.StatusOK, gin.H{"message": "Backup restored. Reload the engine to apply it."})
}
