package handlers

import (
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"
	"github.com/timecard-works/timecard/internal/buildinfo"
)

// VersionHandler reports build information.
type VersionHandler struct{}

// NewVersionHandler constructs a VersionHandler.
func NewVersionHandler() *VersionHandler {
	return &VersionHandler{}
}

// VersionResponse is the response for version queries.
type VersionResponse struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version"`
}

// GetVersion returns the running build.
func (h *VersionHandler) GetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, VersionResponse{
		Version:   buildinfo.Version,
		Commit:    buildinfo.Commit,
		BuildDate: buildinfo.BuildDate,
		GoVersion: runtime.Version(),
	})
}
