package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timecard-works/timecard/internal/apierr"
	"github.com/timecard-works/timecard/internal/export"
	apihttp "github.com/timecard-works/timecard/internal/http"
	"github.com/timecard-works/timecard/internal/timeparse"
)

// ExportHandler renders attendance downloads.
type ExportHandler struct {
	exporter *export.Exporter
}

// NewExportHandler constructs an ExportHandler.
func NewExportHandler(exporter *export.Exporter) *ExportHandler {
	return &ExportHandler{exporter: exporter}
}

// Export returns one instance as CSV, or every instance as a ZIP when bulk=true.
func (h *ExportHandler) Export(c *gin.Context) {
	year, month, errMonth := timeparse.ParseMonthKey(c.Query("month"))
	if errMonth != nil {
		apierr.Respond(c, apierr.Validation("invalid_month", "month must be YYYY-MM between 2000 and 2100"))
		return
	}
	bulk, errBulk := apihttp.QueryBool(c, "bulk")
	if errBulk != nil {
		apierr.Respond(c, errBulk)
		return
	}
	instanceID := strings.TrimSpace(c.Query("instance_id"))
	switch {
	case bulk && instanceID != "":
		apierr.Respond(c, apierr.Validation("invalid_export", "use either instance_id or bulk=true"))
		return
	case !bulk && instanceID == "":
		apierr.Respond(c, apierr.Validation("invalid_export", "instance_id or bulk=true is required"))
		return
	}

	var (
		file      export.File
		errExport error
	)
	if bulk {
		file, errExport = h.exporter.BulkZIP(c.Request.Context(), year, month)
	} else {
		file, errExport = h.exporter.InstanceCSV(c.Request.Context(), instanceID, year, month)
	}
	if errExport != nil {
		apierr.Respond(c, errExport)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, file.Name))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
