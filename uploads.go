package main

import (
	"net/http"
	"strings"

	"github.com/dlvery/dlvery_backend/models"
	"github.com/gin-gonic/gin"
)

const maxUploadSizeBytes int64 = 5 * 1024 * 1024

// uploadInventoryHandler accepts a multipart XLSX workbook and creates
// one product per data row.
func uploadInventoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		if fileHeader.Size > maxUploadSizeBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file size exceeds 5MB limit"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to read uploaded file"})
			return
		}
		defer file.Close()

		message, err := models.ImportProductsFromXlsx(c.Request.Context(), fileHeader.Filename, file)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": message})
	}
}

// templateHandler serves the inventory upload template. format=xlsx
// returns a styled workbook, anything else returns CSV.
func templateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		format := strings.ToLower(strings.TrimSpace(c.Query("format")))
		if format == "xlsx" {
			payload, err := models.GenerateXlsxTemplate()
			if err != nil {
				writeError(c, err)
				return
			}
			c.Header("Content-Disposition", `attachment; filename="inventory_template.xlsx"`)
			c.Data(http.StatusOK,
				"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", payload)
			return
		}

		c.Header("Content-Disposition", `attachment; filename="inventory_template.csv"`)
		c.Data(http.StatusOK, "text/csv", []byte(models.GenerateCsvTemplate()))
	}
}
