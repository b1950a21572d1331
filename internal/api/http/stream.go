package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/i474232898/weather-observatory/internal/weather"
)

// streamInterval is how often the live stream pushes the latest readings.
var streamInterval = 3 * time.Second

type streamQuery struct {
	Station string `validate:"max=64"`
	Events  int    `validate:"gte=0,lte=10000"`
}

// registerStream serves Server-Sent Events carrying the latest reading of one
// station, or of every station when none is given. events=N closes the stream
// after N events.
func registerStream(v1 fiber.Router, service *weather.Service) {
	v1.Get("/stream", func(c *fiber.Ctx) error {
		q := streamQuery{Station: c.Query("station"), Events: c.QueryInt("events", 0)}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if q.Station != "" {
			if _, err := service.Station(q.Station); err != nil {
				return fiber.NewError(fiber.StatusNotFound, err.Error())
			}
		}

		c.Set(fiber.HeaderContentType, "text/event-stream")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set(fiber.HeaderConnection, "keep-alive")

		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			ticker := time.NewTicker(streamInterval)
			defer ticker.Stop()

			for sent := 0; q.Events == 0 || sent < q.Events; sent++ {
				if sent > 0 {
					<-ticker.C
				}
				payload, err := latestPayload(context.Background(), service, q.Station)
				if err != nil {
					fmt.Fprintf(w, "event: error\ndata: %q\n\n", err.Error())
				} else {
					fmt.Fprintf(w, "event: reading\ndata: %s\n\n", payload)
				}
				// A flush error means the client went away.
				if err := w.Flush(); err != nil {
					slog.Debug("stream closed", "station", q.Station, "sent", sent)
					return
				}
			}
		}))
		return nil
	})
}

func latestPayload(ctx context.Context, service *weather.Service, stationID string) ([]byte, error) {
	if stationID == "" {
		readings, err := service.LatestAll(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(readings)
	}
	reading, err := service.Latest(ctx, stationID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(reading)
}
