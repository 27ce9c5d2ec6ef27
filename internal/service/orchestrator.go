package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/veranemoloko/media-downloader/internal/capability"
	errpkg "github.com/veranemoloko/media-downloader/internal/errors"
	"github.com/veranemoloko/media-downloader/internal/media"
	"github.com/veranemoloko/media-downloader/internal/metrics"
	"github.com/veranemoloko/media-downloader/internal/validation"
)

// TitleResolver looks up a human-readable title for a normalized reference.
type TitleResolver interface {
	ResolveTitle(ctx context.Context, ref string) (string, error)
}

// ServeInput is a raw client request for media.
type ServeInput struct {
	RawURL    string
	Quality   int
	AudioOnly bool
}

// Outcome reports which capability delivered the media.
type Outcome struct {
	Capability string
	// TaskID is set when a detached capability won.
	TaskID string
}

// Orchestrator walks the capability registry in order until one of them
// delivers media.
type Orchestrator struct {
	registry        *capability.Registry
	titles          TitleResolver
	metadataTimeout time.Duration
	logger          *slog.Logger
}

// NewOrchestrator creates an Orchestrator. titles may be nil, in which case
// every file is named after the default title.
func NewOrchestrator(registry *capability.Registry, titles TitleResolver, metadataTimeout time.Duration, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		registry:        registry,
		titles:          titles,
		metadataTimeout: metadataTimeout,
		logger:          logger,
	}
}

// Prepare normalizes the input and builds the capability request. It
// returns ErrInvalidInput when no video id can be extracted.
func (o *Orchestrator) Prepare(ctx context.Context, in ServeInput) (capability.Request, error) {
	ref, ok := validation.Normalize(in.RawURL)
	if !ok {
		return capability.Request{}, fmt.Errorf("%w: %q", errpkg.ErrInvalidInput, in.RawURL)
	}

	return capability.Request{
		Ref:       ref,
		Title:     o.resolveTitle(ctx, ref),
		Format:    media.SelectFormat(in.Quality, in.AudioOnly),
		Quality:   in.Quality,
		AudioOnly: in.AudioOnly,
	}, nil
}

func (o *Orchestrator) resolveTitle(ctx context.Context, ref string) string {
	if o.titles == nil {
		return media.DefaultTitle
	}

	if o.metadataTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.metadataTimeout)
		defer cancel()
	}

	title, err := o.titles.ResolveTitle(ctx, ref)
	if err != nil {
		o.logger.Debug("title lookup failed", "ref", ref, "error", err)
		return media.DefaultTitle
	}
	return media.SafeFileName(title)
}

// Serve tries each capability in order and stops at the first one that
// streams media or produces a task id. A capability that fails before
// writing to sink is skipped; one that fails after writing ends the request
// with ErrPartialStream, since the response cannot be restarted.
func (o *Orchestrator) Serve(ctx context.Context, in ServeInput, sink capability.Sink) (Outcome, error) {
	ctx = capability.WithVideoCache(ctx)

	req, err := o.Prepare(ctx, in)
	if err != nil {
		return Outcome{}, err
	}
	metrics.DownloadRequests.Inc()

	logger := o.logger.With("ref", req.Ref)
	logger.Info("normalized reference", "raw", in.RawURL, "format", req.Format)

	var failures []error
	for _, c := range o.registry.All() {
		name := c.Name()
		metrics.CapabilityAttempts.WithLabelValues(name).Inc()
		logger.Info("attempting capability", "capability", name)

		start := time.Now()
		res, err := c.Invoke(ctx, req, sink)
		if err == nil && c.Kind() == capability.KindDetached && res.TaskID == "" {
			err = fmt.Errorf("%w: no task id", errpkg.ErrExtractionFailed)
		}

		if err == nil {
			metrics.CapabilitySuccess.WithLabelValues(name).Inc()
			metrics.StreamDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
			logger.Info("capability succeeded", "capability", name, "task_id", res.TaskID)
			return Outcome{Capability: name, TaskID: res.TaskID}, nil
		}

		committed := sink.Committed() || errors.Is(err, errpkg.ErrPartialStream)
		metrics.CapabilityFailures.WithLabelValues(name, strconv.FormatBool(committed)).Inc()

		if committed {
			logger.Error("capability failed after streaming started", "capability", name, "error", err)
			if !errors.Is(err, errpkg.ErrPartialStream) {
				err = fmt.Errorf("%w: %w", errpkg.ErrPartialStream, err)
			}
			return Outcome{Capability: name}, fmt.Errorf("%s: %w", name, err)
		}

		logger.Warn("capability failed", "capability", name, "error", err)
		capability.ResetHeaders(sink)
		failures = append(failures, fmt.Errorf("%s: %w", name, err))

		if ctxErr := ctx.Err(); ctxErr != nil {
			failures = append(failures, ctxErr)
			break
		}
	}

	metrics.DownloadsExhausted.Inc()
	return Outcome{}, errors.Join(append([]error{errpkg.ErrAllCapabilitiesExhausted}, failures...)...)
}
