package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	apperrors "github.com/Leonel-Flores1704/Atlas/internal/errors"
	"github.com/Leonel-Flores1704/Atlas/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func exportPDFHandler(exporter *services.TranscriptExporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		workspace, ok := workspaceFrom(c)
		if !ok {
			return
		}

		session, err := workspace.Session(c.Param("id"))
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		var buf bytes.Buffer
		pages, err := exporter.PDF(session, &buf)
		if err != nil {
			apperrors.HandleError(c, apperrors.LogAndReturn500(err))
			return
		}

		log.Debug().Str("sessionID", session.ID).Int("pages", pages).Msg("Transcript exported")
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, session.ID))
		c.Header("X-Page-Count", strconv.Itoa(pages))
		c.Data(http.StatusOK, "application/pdf", buf.Bytes())
	}
}

func exportBibTeXHandler(exporter *services.TranscriptExporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		workspace, ok := workspaceFrom(c)
		if !ok {
			return
		}

		session, err := workspace.Session(c.Param("id"))
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.bib"`, session.ID))
		c.Data(http.StatusOK, "application/x-bibtex; charset=utf-8", []byte(exporter.BibTeX(session)))
	}
}
