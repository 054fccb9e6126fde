// Package archive implements an optional, off-by-default sink that
// uploads completed scan files to a Google Cloud Storage bucket as they
// are published (a supplement beyond the core spec: see DESIGN.md). It
// subscribes to the Pub/Sub Cache like any other Subscriber, so enabling
// it never changes what a scan or spectroscopy file looks like on disk --
// it only decides when an already-written file gets copied somewhere
// durable.
package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"github.com/afspm-go/afspm/internal/transport"
	"github.com/afspm-go/afspm/internal/wire"
)

// Config configures an Archiver. Enabled defaults to false: the archive
// sink is strictly additive, and a deployment that never sets Enabled
// never touches GCS.
type Config struct {
	Enabled bool

	// SubscribeAddr is the Cache (or upstream Publisher) address to
	// subscribe to for Scan2D/Spec1D notifications.
	SubscribeAddr string

	// LocalDir is where the referenced scan/spec files already live on
	// disk, written by whatever produced them; archive does not define
	// this format, it only reads the named file and copies it.
	LocalDir string

	Bucket       string
	ObjectPrefix string

	// ClientOptions lets callers supply credentials; nil uses application
	// default credentials, matching the teacher's GCS usage.
	ClientOptions []option.ClientOption
}

// Archiver subscribes to completed scan/spec notifications and uploads
// the file each one references to a GCS bucket.
type Archiver struct {
	cfg Config
	sub *transport.Subscriber
	gcs *storage.Client
	log *logrus.Entry
}

// New builds an Archiver. It returns (nil, nil) when cfg.Enabled is
// false, so callers can unconditionally defer-close whatever New returns
// without branching on configuration.
func New(ctx context.Context, cfg Config) (*Archiver, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: bucket is required when enabled")
	}

	sub, err := transport.NewSubscriber(cfg.SubscribeAddr,
		[]string{wire.TypeTopic(&wire.Scan2DMsg{}), wire.TypeTopic(&wire.Spec1DMsg{})},
		2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("archive: subscribing: %w", err)
	}

	gcs, err := storage.NewClient(ctx, cfg.ClientOptions...)
	if err != nil {
		sub.Close()
		return nil, fmt.Errorf("archive: building storage client: %w", err)
	}

	return &Archiver{
		cfg: cfg,
		sub: sub,
		gcs: gcs,
		log: logrus.WithField("component", "archive"),
	}, nil
}

// Run polls for scan/spec notifications and uploads each referenced file
// until ctx is cancelled or a KILL is observed.
func (a *Archiver) Run(ctx context.Context, pollTimeout time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if a.sub.Killed() {
			return
		}

		for _, f := range a.sub.Poll(pollTimeout) {
			filename, err := filenameFromFrame(f)
			if err != nil {
				a.log.WithError(err).Warn("archive: skipping frame")
				continue
			}
			if err := a.upload(ctx, filename); err != nil {
				a.log.WithError(err).WithField("filename", filename).Error("archive: upload failed")
			}
		}
	}
}

func filenameFromFrame(f transport.Frame) (string, error) {
	switch {
	case strings.HasPrefix(f.Topic, wire.TypeTopic(&wire.Scan2DMsg{})):
		msg := new(wire.Scan2DMsg)
		if err := wire.Unmarshal(f.Payload, msg); err != nil {
			return "", fmt.Errorf("decoding scan: %w", err)
		}
		return msg.Filename, nil
	case strings.HasPrefix(f.Topic, wire.TypeTopic(&wire.Spec1DMsg{})):
		msg := new(wire.Spec1DMsg)
		if err := wire.Unmarshal(f.Payload, msg); err != nil {
			return "", fmt.Errorf("decoding spec: %w", err)
		}
		return msg.Filename, nil
	default:
		return "", fmt.Errorf("unrecognized topic %q", f.Topic)
	}
}

func (a *Archiver) upload(ctx context.Context, filename string) error {
	if filename == "" {
		return fmt.Errorf("empty filename")
	}

	src, err := os.Open(filepath.Join(a.cfg.LocalDir, filename))
	if err != nil {
		return fmt.Errorf("opening local file: %w", err)
	}
	defer src.Close()

	objectName := filename
	if a.cfg.ObjectPrefix != "" {
		objectName = joinObjectPath(a.cfg.ObjectPrefix, filename)
	}

	w := a.gcs.Bucket(a.cfg.Bucket).Object(objectName).NewWriter(ctx)
	if _, err := io.Copy(w, src); err != nil {
		_ = w.Close()
		return fmt.Errorf("uploading: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing upload: %w", err)
	}

	a.log.WithFields(logrus.Fields{"filename": filename, "bucket": a.cfg.Bucket, "object": objectName}).
		Info("archive: uploaded scan file")
	return nil
}

func joinObjectPath(prefix, filename string) string {
	return strings.TrimRight(prefix, "/") + "/" + filename
}

// Close releases the subscriber and storage client.
func (a *Archiver) Close() error {
	if a == nil {
		return nil
	}
	subErr := a.sub.Close()
	gcsErr := a.gcs.Close()
	if subErr != nil {
		return subErr
	}
	return gcsErr
}
