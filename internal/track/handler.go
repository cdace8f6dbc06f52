package track

import (
	"net/http"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/k9trail/bridge/internal/snapshot"
	"github.com/k9trail/bridge/internal/utils"
)

var (
	createdTracksMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "number_of_created_tracks",
		Help: "The total number of created tracks",
	})
	finishedTracksMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "number_of_finished_tracks",
		Help: "The total number of finished tracks",
	})
	savedReportsMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "number_of_saved_reports",
		Help: "The total number of saved incident reports",
	})
	trackBadRequestMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "number_of_track_bad_requests",
		Help: "The total number of bad track/report requests",
	})
)

type Handler struct {
	storage     Storage
	snapshots   snapshot.Store
	maxBodySize int64
}

func NewHandler(storage Storage, snapshots snapshot.Store, maxBodySize int64) *Handler {
	return &Handler{
		storage:     storage,
		snapshots:   snapshots,
		maxBodySize: maxBodySize,
	}
}

// newShareCode returns a short public handle for read-only track sharing.
func newShareCode() string {
	return uuid.NewString()[:8]
}

func (h *Handler) CreateTrackHandler(c echo.Context) error {
	log := logrus.WithField("prefix", "CreateTrackHandler")

	params, err := NewParamsStorage(c, h.maxBodySize)
	if err != nil {
		trackBadRequestMetric.Inc()
		log.Error(err)
		return c.JSON(utils.HttpResError(err.Error(), http.StatusBadRequest))
	}

	startedAt := time.Now().UTC()
	if raw, ok := params.Get("started_at"); ok {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			trackBadRequestMetric.Inc()
			errorMsg := "param \"started_at\" must be RFC3339"
			log.Error(errorMsg)
			return c.JSON(utils.HttpResError(errorMsg, http.StatusBadRequest))
		}
		startedAt = parsed
	}

	t := Track{
		ID:        uuid.NewString(),
		ShareCode: newShareCode(),
		StartedAt: startedAt,
	}
	t.DogName, _ = params.Get("dog_name")
	t.OperatorName, _ = params.Get("operator_name")
	t.DeviceTopic, _ = params.Get("device_topic")

	if err := h.storage.CreateTrack(c.Request().Context(), &t); err != nil {
		log.Errorf("db error: %v", err)
		return c.JSON(utils.HttpResError("failed to create track", http.StatusInternalServerError))
	}
	createdTracksMetric.Inc()
	log.Infof("track %v created (seq %v)", t.ID, t.SeqNo)
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) FinishTrackHandler(c echo.Context) error {
	log := logrus.WithField("prefix", "FinishTrackHandler")
	id := c.Param("id")

	params, err := NewParamsStorage(c, h.maxBodySize)
	if err != nil {
		trackBadRequestMetric.Inc()
		log.Error(err)
		return c.JSON(utils.HttpResError(err.Error(), http.StatusBadRequest))
	}

	end := TrackEnd{EndedAt: time.Now().UTC()}
	if raw, ok := params.Get("ended_at"); ok {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			trackBadRequestMetric.Inc()
			errorMsg := "param \"ended_at\" must be RFC3339"
			log.Error(errorMsg)
			return c.JSON(utils.HttpResError(errorMsg, http.StatusBadRequest))
		}
		end.EndedAt = parsed
	}
	end.DistanceMeters, _ = params.GetFloat("distance_meters")
	end.DurationSeconds, _ = params.GetInt("duration_seconds")
	end.SnapshotURL = h.uploadSnapshot(c, "track-"+id)

	t, err := h.storage.FinishTrack(c.Request().Context(), id, end)
	if err == ErrNotFound {
		trackBadRequestMetric.Inc()
		return c.JSON(utils.HttpResError("track not found", http.StatusNotFound))
	}
	if err != nil {
		log.Errorf("db error: %v", err)
		return c.JSON(utils.HttpResError("failed to finish track", http.StatusInternalServerError))
	}
	finishedTracksMetric.Inc()
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) GetTrackHandler(c echo.Context) error {
	t, err := h.storage.GetTrack(c.Request().Context(), c.Param("id"))
	if err == ErrNotFound {
		return c.JSON(utils.HttpResError("track not found", http.StatusNotFound))
	}
	if err != nil {
		logrus.WithField("prefix", "GetTrackHandler").Errorf("db error: %v", err)
		return c.JSON(utils.HttpResError("failed to load track", http.StatusInternalServerError))
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) SharedTrackHandler(c echo.Context) error {
	t, err := h.storage.GetTrackByShareCode(c.Request().Context(), c.Param("code"))
	if err == ErrNotFound {
		return c.JSON(utils.HttpResError("track not found", http.StatusNotFound))
	}
	if err != nil {
		logrus.WithField("prefix", "SharedTrackHandler").Errorf("db error: %v", err)
		return c.JSON(utils.HttpResError("failed to load track", http.StatusInternalServerError))
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) CreateReportHandler(c echo.Context) error {
	log := logrus.WithField("prefix", "CreateReportHandler")

	params, err := NewParamsStorage(c, h.maxBodySize)
	if err != nil {
		trackBadRequestMetric.Inc()
		log.Error(err)
		return c.JSON(utils.HttpResError(err.Error(), http.StatusBadRequest))
	}

	r := Report{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
	r.Title, _ = params.Get("title")
	r.Narrative, _ = params.Get("narrative")
	if trackID, ok := params.Get("track_id"); ok {
		r.TrackID = &trackID
	}
	r.SnapshotURL = h.uploadSnapshot(c, "report-"+r.ID)

	if err := h.storage.CreateReport(c.Request().Context(), &r); err != nil {
		log.Errorf("db error: %v", err)
		return c.JSON(utils.HttpResError("failed to save report", http.StatusInternalServerError))
	}
	savedReportsMetric.Inc()
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) GetReportHandler(c echo.Context) error {
	r, err := h.storage.GetReport(c.Request().Context(), c.Param("id"))
	if err == ErrNotFound {
		return c.JSON(utils.HttpResError("report not found", http.StatusNotFound))
	}
	if err != nil {
		logrus.WithField("prefix", "GetReportHandler").Errorf("db error: %v", err)
		return c.JSON(utils.HttpResError("failed to load report", http.StatusInternalServerError))
	}
	return c.JSON(http.StatusOK, r)
}

// uploadSnapshot stores an optional multipart "snapshot" image and returns
// its public URL. Upload problems are logged and swallowed: the record is
// saved without a snapshot rather than failing the request.
func (h *Handler) uploadSnapshot(c echo.Context, keyPrefix string) *string {
	log := logrus.WithField("prefix", "uploadSnapshot")

	fileHeader, err := c.FormFile("snapshot")
	if err != nil {
		// no snapshot attached
		return nil
	}
	file, err := fileHeader.Open()
	if err != nil {
		log.Warnf("failed to open snapshot upload: %v", err)
		return nil
	}
	defer file.Close()

	ext := path.Ext(fileHeader.Filename)
	if ext == "" {
		ext = ".png"
	}
	url, err := h.snapshots.Put(c.Request().Context(), keyPrefix+ext, file)
	if err != nil {
		log.Warnf("snapshot upload failed, saving without snapshot: %v", err)
		return nil
	}
	return &url
}
