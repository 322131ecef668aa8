package client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/integrail/gamma-client/pkg/client/dto"
	"github.com/integrail/gamma-client/pkg/metrics"
)

// ArtifactResult describes a downloaded artifact. Completed keeps the status payload, including the raw response.
type ArtifactResult struct {
	GenerationID string          `json:"generationId" yaml:"generationId"`
	Path         string          `json:"path" yaml:"path"`
	URL          string          `json:"url" yaml:"url"`
	ViewURL      string          `json:"viewUrl,omitempty" yaml:"viewUrl"`
	Size         int64           `json:"size" yaml:"size"`
	ContentType  string          `json:"contentType" yaml:"contentType"`
	Completed    *dto.Generation `json:"completed" yaml:"completed"`
}

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ArtifactPath returns where the artifact of generationID is stored. The name only depends on the
// generation id and the artifact extension, so repeated fetches overwrite the same file. Ids that
// had to be sanitized get a short hash of the raw id appended to keep them apart.
func ArtifactPath(outputDir, generationID, artifactURL, exportAs string) string {
	name := strings.Trim(unsafePathChars.ReplaceAllString(generationID, "_"), "._")
	if name == "" {
		name = "generation"
	}
	if generationID != "" && name != generationID {
		sum := sha256.Sum256([]byte(generationID))
		name += "-" + hex.EncodeToString(sum[:4])
	}
	ext := strings.TrimPrefix(strings.ToLower(exportAs), ".")
	if u, err := url.Parse(artifactURL); err == nil {
		if urlExt := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), "."); lo.Contains(exportFormats, urlExt) {
			ext = urlExt
		}
	}
	return filepath.Join(outputDir, name+"."+lo.Ternary(ext != "", ext, "pdf"))
}

// Fetch downloads the artifact of a completed generation. It never resubmits or re-polls, so it can
// be called again with the same payload after a DownloadError.
func (o *gammaClient) Fetch(ctx context.Context, completed *dto.Generation) (*ArtifactResult, error) {
	ctx, span := tracer.Start(ctx, "gamma_download_artifact", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	if completed == nil {
		return nil, &DownloadError{Cause: errors.New("no completed generation to fetch")}
	}
	generationID := completed.Identifier()
	span.SetAttributes(attribute.String("gamma.generation_id", generationID))

	artifactURL := completed.ArtifactURL(o.settings.ExportAs())
	if artifactURL == "" {
		metrics.RecordDownload("missing_url", 0)
		return nil, &DownloadError{GenerationID: generationID, Cause: errors.Errorf("no artifact url in response: %s", string(completed.Raw))}
	}
	target := ArtifactPath(o.settings.OutputDir(), generationID, artifactURL, o.settings.ExportAs())
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, &DownloadError{GenerationID: generationID, URL: artifactURL, Cause: errors.Wrapf(err, "failed to create output dir")}
	}

	log := o.log.With().Str("generation_id", generationID).Str("path", target).Logger()
	log.Info().Msg("downloading artifact")

	written, err := withRetry(ctx, o, log, "download", func() (int64, error) {
		return o.download(ctx, artifactURL, target)
	})
	if err != nil {
		span.RecordError(err)
		metrics.RecordDownload(lo.Ternary(ctx.Err() != nil, "cancelled", "failed"), 0)
		if ctx.Err() != nil {
			return nil, &CancelledError{GenerationID: generationID, LastStatus: StatusCompleted, Cause: ctx.Err()}
		}
		de := &DownloadError{GenerationID: generationID, URL: artifactURL, Cause: err}
		var te *transportError
		if errors.As(err, &te) {
			de.StatusCode = te.StatusCode
			de.Retryable = te.Retryable
		}
		return nil, de
	}

	contentType := "application/octet-stream"
	if mtype, err := mimetype.DetectFile(target); err == nil {
		contentType = mtype.String()
	}
	metrics.RecordDownload("ok", written)
	span.SetAttributes(attribute.Int64("gamma.artifact_size", written))
	log.Info().Int64("bytes", written).Str("content_type", contentType).Msg("artifact saved")

	return &ArtifactResult{
		GenerationID: generationID,
		Path:         target,
		URL:          artifactURL,
		ViewURL:      completed.GammaURL,
		Size:         written,
		ContentType:  contentType,
		Completed:    completed,
	}, nil
}

// download streams artifactURL into a temp file next to target and renames it over target.
// Waiting for headers and every body read are bounded by the request timeout.
func (o *gammaClient) download(ctx context.Context, artifactURL, target string) (int64, error) {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	watchdog := time.AfterFunc(o.settings.requestTimeout, cancel)
	defer watchdog.Stop()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, artifactURL, nil)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to init download request")
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return 0, classifyErr(ctx, o.stalled(ctx, reqCtx, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, classifyStatus(resp.StatusCode, body)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.part")
	if err != nil {
		return 0, errors.Wrapf(err, "failed to create temp file")
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	written, err := io.Copy(tmp, &idleTimeoutReader{r: resp.Body, timer: watchdog, timeout: o.settings.requestTimeout})
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		return 0, errors.Wrapf(closeErr, "failed to write %s", tmp.Name())
	}
	if err != nil {
		return 0, classifyErr(ctx, o.stalled(ctx, reqCtx, err))
	}
	if resp.ContentLength > 0 && written != resp.ContentLength {
		return 0, classifyErr(ctx, errors.Wrapf(errTruncated, "got %d of %d bytes", written, resp.ContentLength))
	}
	if written == 0 {
		return 0, &transportError{Cause: errors.New("artifact is empty")}
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return 0, errors.Wrapf(err, "failed to move artifact to %s", target)
	}
	return written, nil
}

// stalled reports a watchdog cancellation as a timeout; the caller's own cancellation is kept as is.
func (o *gammaClient) stalled(ctx, reqCtx context.Context, err error) error {
	if reqCtx.Err() != nil && ctx.Err() == nil {
		return errors.Wrapf(context.DeadlineExceeded, "no data for %s", o.settings.requestTimeout)
	}
	return err
}

// idleTimeoutReader pushes the watchdog back on every read so that only a stalled body times out.
type idleTimeoutReader struct {
	r       io.Reader
	timer   *time.Timer
	timeout time.Duration
}

func (r *idleTimeoutReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.timer.Reset(r.timeout)
	}
	return n, err
}
