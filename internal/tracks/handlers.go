package tracks

import (
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/w2vasia/gps-track/internal/track"
)

func RegisterRoutes(r fiber.Router, svc *Service) {
	r.Post("/", func(c *fiber.Ctx) error {
		form, err := c.MultipartForm()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "multipart form required")
		}
		headers := form.File["files"]
		if len(headers) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "no files uploaded")
		}

		batchID := c.FormValue("batch_id")
		if batchID == "" {
			batchID = uuid.NewString()
		}

		files := make([]UploadFile, 0, len(headers))
		for _, h := range headers {
			f, err := h.Open()
			if err != nil {
				files = append(files, UploadFile{Name: h.Filename, ReadErr: err})
				continue
			}
			text, err := io.ReadAll(f)
			_ = f.Close()
			if err != nil {
				files = append(files, UploadFile{Name: h.Filename, ReadErr: err})
				continue
			}
			files = append(files, UploadFile{Name: h.Filename, Text: string(text)})
		}

		results := svc.IngestBatch(c.Context(), batchID, files)
		return c.JSON(fiber.Map{
			"batch_id": batchID,
			"results":  results,
		})
	})

	r.Get("/", func(c *fiber.Ctx) error {
		records, err := svc.List(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if records == nil {
			records = []Record{}
		}
		return c.JSON(records)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		rec, err := svc.Get(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, "track not found")
		}
		return c.JSON(rec)
	})

	r.Get("/:id/stats", func(c *fiber.Ctx) error {
		stats, err := svc.Stats(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, "track not found")
		}
		return c.JSON(stats)
	})

	r.Get("/:id/profile", func(c *fiber.Ctx) error {
		points, err := svc.ProfilePoints(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, "track not found")
		}
		if points == nil {
			points = []track.ElevationPoint{}
		}
		return c.JSON(points)
	})

	r.Get("/:id/export.gpx", func(c *fiber.Ctx) error {
		out, err := svc.Export(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, "track not found")
		}
		c.Set(fiber.HeaderContentType, "application/gpx+xml")
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="track.gpx"`)
		return c.Send(out)
	})

	r.Delete("/:id", func(c *fiber.Ctx) error {
		if err := svc.Delete(c.Context(), c.Params("id")); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
