package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-observatory/internal/weather"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *weather.Service) {
	v1 := app.Group("/api/v1")

	v1.Get("/stations", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"stations": service.Stations(),
			"metrics":  weather.Fields,
		})
	})

	v1.Get("/latest", func(c *fiber.Ctx) error {
		readings, err := service.LatestAll(c.UserContext())
		if err != nil {
			return toFiberError(err, "failed to fetch latest readings")
		}
		return c.JSON(fiber.Map{"readings": readings})
	})

	v1.Get("/latest/:station", func(c *fiber.Ctx) error {
		reading, err := service.Latest(c.UserContext(), c.Params("station"))
		if err != nil {
			return toFiberError(err, "failed to fetch latest reading")
		}
		return c.JSON(reading)
	})

	v1.Get("/range", func(c *fiber.Ctx) error {
		var req rangeQuery
		if err := req.bind(c, service); err != nil {
			return err
		}

		readings, err := service.Range(c.UserContext(), req.Station, req.window())
		if err != nil {
			return toFiberError(err, "failed to fetch readings")
		}
		return c.JSON(fiber.Map{
			"station":  req.Station,
			"start":    req.Start,
			"end":      req.End,
			"readings": readings,
		})
	})

	v1.Get("/series", func(c *fiber.Ctx) error {
		var req seriesQuery
		if err := req.bind(c, service); err != nil {
			return err
		}

		metric := weather.Metric(req.Metric)
		series, err := service.Series(c.UserContext(), weather.SeriesQuery{
			StationID:   req.Station,
			Metric:      metric,
			Granularity: weather.Granularity(req.Granularity),
			Range:       req.window(),
		})
		if err != nil {
			return toFiberError(err, "failed to build series")
		}

		meta := metric.Meta()
		return c.JSON(fiber.Map{
			"labels":  series.Labels,
			"series":  series.Series,
			"avg":     series.Avg,
			"samples": series.Samples,
			"metric":  metric,
			"label":   meta.Label,
			"unit":    meta.Unit,
			"chart":   meta.Chart,
		})
	})

	v1.Get("/wind/rose", func(c *fiber.Ctx) error {
		var req rangeQuery
		if err := req.bind(c, service); err != nil {
			return err
		}

		bins, err := service.WindRose(c.UserContext(), req.Station, req.window(), c.QueryBool("weighted", false))
		if err != nil {
			return toFiberError(err, "failed to bin wind directions")
		}
		return c.JSON(fiber.Map{
			"labels": weather.CompassPoints,
			"values": bins,
		})
	})

	v1.Get("/wind/mean", func(c *fiber.Ctx) error {
		var req rangeQuery
		if err := req.bind(c, service); err != nil {
			return err
		}

		mean, err := service.MeanWindDirection(c.UserContext(), req.Station, req.window())
		if err != nil {
			return toFiberError(err, "failed to average wind direction")
		}
		return c.JSON(fiber.Map{"direction": mean})
	})

	registerStream(v1, service)
}

// ErrorHandler renders every handler error as a JSON body.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

func toFiberError(err error, msg string) error {
	switch {
	case errors.Is(err, weather.ErrUnknownStation):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, weather.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "no readings for requested station")
	case errors.Is(err, weather.ErrUnknownMetric), errors.Is(err, weather.ErrUnknownGranularity):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, msg)
	}
}

// rangeQuery holds the query parameters shared by every windowed endpoint.
type rangeQuery struct {
	Station string    `validate:"required"`
	Start   time.Time `validate:"required"`
	End     time.Time `validate:"required"`
}

func (q *rangeQuery) bind(c *fiber.Ctx, service *weather.Service) error {
	q.Station = c.Query("station")
	if q.Station == "" {
		return fiber.NewError(fiber.StatusBadRequest, "station query parameter is required")
	}
	st, err := service.Station(q.Station)
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}

	startStr := c.Query("start")
	endStr := c.Query("end")
	if startStr == "" || endStr == "" {
		return fiber.NewError(fiber.StatusBadRequest, "start and end query parameters are required")
	}

	loc := st.Loc()
	if q.Start, err = parseTime(startStr, loc); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "start: "+err.Error())
	}
	if q.End, err = parseTime(endStr, loc); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "end: "+err.Error())
	}

	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

func (q rangeQuery) window() weather.TimeRange {
	return weather.TimeRange{Start: q.Start, End: q.End}
}

// seriesQuery adds the chart selection to a window.
type seriesQuery struct {
	rangeQuery
	Metric      string `validate:"required"`
	Granularity string `validate:"required,oneof=raw daily weekly monthly"`
}

func (q *seriesQuery) bind(c *fiber.Ctx, service *weather.Service) error {
	if err := q.rangeQuery.bind(c, service); err != nil {
		return err
	}
	q.Metric = c.Query("metric")
	q.Granularity = c.Query("granularity", string(weather.GranularityDaily))

	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if _, err := weather.ParseMetric(q.Metric); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

// localLayouts are wall-clock forms interpreted in the station's zone.
var localLayouts = []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

// parseTime accepts RFC3339, a station-local wall clock, or Unix seconds.
func parseTime(s string, loc *time.Location) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	for _, layout := range localLayouts {
		if ts, err := time.ParseInLocation(layout, s, loc); err == nil {
			return ts, nil
		}
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339, YYYY-MM-DDTHH:MM:SS or unix seconds")
}
