package asset

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	_ "image/gif"
	_ "image/png"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/artline/internal/config"
	jobdomain "github.com/smallbiznis/artline/internal/job/domain"
)

const (
	persistTimeout = 60 * time.Second
	maxAssetBytes  = 50 << 20

	keyPrefix     = "generations/"
	archivePrefix = "deleted/"

	jpegQuality = 95
)

var extByContentType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
	"video/mp4":  ".mp4",
	"video/webm": ".webm",
}

type PersisterParams struct {
	fx.In

	Log    *zap.Logger
	Cfg    config.Config
	Store  ObjectStore
	JobSvc jobdomain.Service
}

// Persister copies provider result URLs into our own storage. Provider CDN
// URLs expire; the copy is what the product keeps serving. Failures keep the
// remote URL on the job, so a missed copy degrades instead of losing the
// result.
type Persister struct {
	log    *zap.Logger
	cfg    config.Config
	store  ObjectStore
	jobSvc jobdomain.Service
	client *http.Client

	wg sync.WaitGroup
}

func NewPersister(p PersisterParams) *Persister {
	return &Persister{
		log:    p.Log.Named("asset.persister"),
		cfg:    p.Cfg,
		store:  p.Store,
		jobSvc: p.JobSvc,
		client: &http.Client{Timeout: persistTimeout},
	}
}

// PersistAsync runs Persist in the background with its own deadline.
func (p *Persister) PersistAsync(jobID snowflake.ID, resultURL string) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := p.Persist(ctx, jobID, resultURL); err != nil {
			p.log.Warn("asset persist failed, keeping remote url",
				zap.String("job_id", jobID.String()),
				zap.String("result_url", resultURL),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until all background persists finish. Tests use it.
func (p *Persister) Wait() { p.wg.Wait() }

// Persist downloads the result, re-encodes images to JPEG, stores the copy,
// and points the job at it.
func (p *Persister) Persist(ctx context.Context, jobID snowflake.ID, resultURL string) error {
	body, contentType, err := p.download(ctx, resultURL)
	if err != nil {
		return err
	}

	ext, ok := extByContentType[contentType]
	if !ok {
		ext = extFromURL(resultURL)
	}

	var width, height int
	if strings.HasPrefix(contentType, "image/") {
		// Best effort: undecodable formats are stored as-is.
		if encoded, w, h, encErr := reencodeJPEG(body); encErr == nil {
			body = encoded
			width, height = w, h
			contentType = "image/jpeg"
			ext = ".jpg"
		}
	}

	key := keyPrefix + jobID.String() + ext
	if err := p.store.Put(ctx, key, contentType, body); err != nil {
		return err
	}

	servedURL := p.publicURL(key)
	if servedURL == "" {
		servedURL = resultURL
	}
	if err := p.jobSvc.SetAsset(ctx, jobID, key, servedURL, width, height); err != nil {
		return err
	}

	p.log.Info("asset persisted",
		zap.String("job_id", jobID.String()),
		zap.String("key", key),
		zap.Int("bytes", len(body)),
	)
	return nil
}

// Archive moves a deleted job's asset out of the serving prefix.
func (p *Persister) Archive(ctx context.Context, assetKey string) error {
	if assetKey == "" {
		return nil
	}
	if err := p.store.Copy(ctx, assetKey, archivePrefix+assetKey); err != nil {
		return err
	}
	return p.store.Delete(ctx, assetKey)
}

func (p *Persister) download(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download %s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetBytes+1))
	if err != nil {
		return nil, "", err
	}
	if len(body) > maxAssetBytes {
		return nil, "", fmt.Errorf("asset exceeds %d bytes", maxAssetBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	return body, strings.TrimSpace(contentType), nil
}

func (p *Persister) publicURL(key string) string {
	if p.cfg.S3PublicBaseURL != "" {
		return p.cfg.S3PublicBaseURL + "/" + key
	}
	if p.cfg.S3Bucket == "" {
		return ""
	}
	if p.cfg.S3Endpoint != "" {
		return strings.TrimRight(p.cfg.S3Endpoint, "/") + "/" + p.cfg.S3Bucket + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", p.cfg.S3Bucket, p.cfg.S3Region, key)
}

func reencodeJPEG(body []byte) ([]byte, int, int, error) {
	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, 0, 0, err
	}
	bounds := img.Bounds()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, 0, 0, err
	}
	return buf.Bytes(), bounds.Dx(), bounds.Dy(), nil
}

func extFromURL(rawURL string) string {
	trimmed := rawURL
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	if i := strings.LastIndex(trimmed, "."); i >= 0 && len(trimmed)-i <= 6 {
		return trimmed[i:]
	}
	return ".bin"
}
