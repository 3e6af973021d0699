package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"coursegate/backend/apperrors"
	"coursegate/backend/config"
	"coursegate/backend/models"
)

// StreamService is the media delivery gateway: it authorizes a learner for a
// level's video and hands the controller what it needs to serve the bytes.
// The stored video location never reaches an unentitled client; draft courses
// and missing videos are indistinguishable from nonexistent ones.
type StreamService struct {
	DB          *gorm.DB
	Cfg         *config.Config
	Progression *ProgressionService
	Payments    *PaymentService
	Client      *http.Client
}

func NewStreamService(db *gorm.DB, cfg *config.Config, progression *ProgressionService, payments *PaymentService) *StreamService {
	return &StreamService{
		DB:          db,
		Cfg:         cfg,
		Progression: progression,
		Payments:    payments,
		Client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: cfg.StreamUpstreamTimeout,
			},
		},
	}
}

// Authorize runs the gated checks in order, short-circuiting on the first
// failure: video present, course visible, entitlement, unlock frontier. On
// success it stamps the learner's last-access time.
func (s *StreamService) Authorize(user *models.User, levelID uint) (*models.Level, error) {
	var level models.Level
	if err := s.DB.First(&level, levelID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("level not found")
		}
		return nil, err
	}
	if !level.Video().IsSet() {
		return nil, apperrors.NotFound("level has no video")
	}

	var course models.Course
	if err := s.DB.First(&course, level.CourseID).Error; err != nil {
		return nil, apperrors.NotFound("level not found")
	}
	// Unpublished courses stay invisible: a 403 here would confirm they exist.
	if !course.IsPublished() && !user.IsAdmin() {
		return nil, apperrors.NotFound("level not found")
	}

	status, _, err := s.Payments.LatestStatus(s.DB, user.ID, course.ID)
	if err != nil {
		return nil, err
	}
	if !HasAccess(user.Role, course.Price, status) {
		return nil, apperrors.Forbidden("no access to this course")
	}

	if !user.IsAdmin() {
		progress, err := s.Progression.EnsureProgress(s.DB, user.ID, course.ID)
		if err != nil {
			return nil, err
		}
		if level.LevelNumber > progress.CurrentLevel {
			return nil, apperrors.Forbidden("level is locked, finish earlier levels first")
		}
		if err := s.Progression.Touch(user.ID, course.ID); err != nil {
			return nil, err
		}
	}

	return &level, nil
}

// ByteRange is one satisfiable span of a local file.
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// ParseRange parses a single-range "bytes=start-end" header against the given
// size. A nil range with nil error means the header was absent and the whole
// file should be served. An unsatisfiable or malformed start yields the 416
// error; an omitted or oversized end is clamped to the last byte.
func ParseRange(header string, size int64) (*ByteRange, error) {
	if header == "" {
		return nil, nil
	}

	unsatisfiable := apperrors.RangeNotSatisfiable("requested range not satisfiable")

	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return nil, unsatisfiable
	}
	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return nil, unsatisfiable
	}

	start, err := strconv.ParseInt(strings.TrimSpace(startStr), 10, 64)
	if err != nil || start < 0 || start >= size {
		return nil, unsatisfiable
	}

	end := size - 1
	if trimmed := strings.TrimSpace(endStr); trimmed != "" {
		parsed, err := strconv.ParseInt(trimmed, 10, 64)
		if err == nil {
			end = parsed
		}
	}
	if end >= size {
		end = size - 1
	}
	if end < start {
		return nil, unsatisfiable
	}

	return &ByteRange{Start: start, End: end}, nil
}

// OpenLocal opens a level's local video file and reports its size. The caller
// owns the handle.
func (s *StreamService) OpenLocal(level *models.Level) (*os.File, int64, error) {
	src := level.Video()
	if src.Type != models.VideoLocal {
		return nil, 0, apperrors.NotFound("level has no local video")
	}
	f, err := os.Open(src.Path)
	if err != nil {
		return nil, 0, apperrors.NotFound("video file missing")
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, apperrors.NotFound("video file missing")
	}
	return f, info.Size(), nil
}

// FetchRemote performs the server-side fetch for a proxied video, forwarding
// the caller's Range header. The caller's context cancels the upstream
// request when the client goes away; the response body must be closed (or
// handed to a streamer that closes it). An HTML answer is the classic
// share-link confirmation page and is refused rather than streamed as video.
func (s *StreamService) FetchRemote(ctx context.Context, rawURL, rangeHeader string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apperrors.Upstream("invalid upstream video link")
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, apperrors.Upstream(fmt.Sprintf("upstream fetch failed: %v", err))
	}

	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, apperrors.Upstream(fmt.Sprintf("upstream returned status %d", resp.StatusCode))
	}
	if ct := resp.Header.Get("Content-Type"); strings.Contains(strings.ToLower(ct), "text/html") {
		resp.Body.Close()
		return nil, apperrors.Upstream("upstream link returned a web page, not a video")
	}

	return resp, nil
}

// RangeReader returns a reader over one span of f that closes f when the
// transport finishes with the stream.
func RangeReader(f *os.File, r ByteRange) io.ReadCloser {
	return &fileSpan{r: io.NewSectionReader(f, r.Start, r.Length()), f: f}
}

type fileSpan struct {
	r *io.SectionReader
	f *os.File
}

func (s *fileSpan) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

func (s *fileSpan) Close() error {
	return s.f.Close()
}

// ValidateRemoteURL enforces the host allow-list. This runs when an admin
// stores the link, never on the streaming path.
func (s *StreamService) ValidateRemoteURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperrors.Validation("video_url must be a valid http(s) URL")
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range s.Cfg.StreamAllowedHosts {
		if host == allowed {
			return nil
		}
	}
	return apperrors.Validation(fmt.Sprintf("video host %q is not allow-listed", host))
}

// ProxyHeaders lists the upstream headers forwarded back to the client.
var ProxyHeaders = []string{"Content-Type", "Content-Length", "Accept-Ranges", "Content-Range"}

// UpstreamContentLength parses the upstream Content-Length, -1 when unknown.
func UpstreamContentLength(resp *http.Response) int64 {
	cl := resp.Header.Get("Content-Length")
	if cl == "" {
		return -1
	}
	n, err := strconv.ParseInt(cl, 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}
