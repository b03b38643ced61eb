package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/Grigsan/booksparser-telegram-bot/internal/config"
	"github.com/Grigsan/booksparser-telegram-bot/internal/parser"
	"github.com/Grigsan/booksparser-telegram-bot/internal/types"
)

// APIAcquirer reads a JSON array of objects from an API endpoint. Only the
// first BatchSize objects are kept.
type APIAcquirer struct {
	client    *resty.Client
	batchSize int
	logger    *slog.Logger
}

// NewAPIAcquirer creates an API acquirer. Requests are rate limited to
// api_source.rate_per_second.
func NewAPIAcquirer(cfg *config.Config, logger *slog.Logger) *APIAcquirer {
	client := resty.New()
	client.SetTimeout(cfg.APISource.Timeout)
	client.SetHeader("Accept", "application/json")
	if len(cfg.Engine.UserAgents) > 0 {
		client.SetHeader("User-Agent", cfg.Engine.UserAgents[0])
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.APISource.RatePerSecond), max(cfg.APISource.Burst, 1))
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return limiter.Wait(req.Context())
	})

	return &APIAcquirer{
		client:    client,
		batchSize: cfg.APISource.BatchSize,
		logger:    logger.With("component", "api_acquirer"),
	}
}

// Acquire implements Acquirer.
func (a *APIAcquirer) Acquire(ctx context.Context, src types.SourceSpec) (*Batch, error) {
	fail := func(err error) (*Batch, error) {
		return nil, &types.AcquireError{Source: src.DisplayName, Kind: types.AcquireAPI, Err: err}
	}

	res, err := a.client.R().
		SetContext(ctx).
		Get(src.EntryURL)
	if err != nil {
		return fail(&types.FetchError{URL: src.EntryURL, Err: err, Retryable: isRetryableError(err)})
	}
	if res.StatusCode() != http.StatusOK {
		return fail(&types.FetchError{
			URL:        src.EntryURL,
			StatusCode: res.StatusCode(),
			Err:        fmt.Errorf("HTTP %d", res.StatusCode()),
			Retryable:  res.StatusCode() >= 500,
		})
	}
	if len(res.Body()) == 0 {
		return fail(&types.FetchError{URL: src.EntryURL, StatusCode: res.StatusCode(), Err: types.ErrEmptyResponse})
	}

	var payload []json.RawMessage
	if err := json.Unmarshal(res.Body(), &payload); err != nil {
		return fail(fmt.Errorf("decode JSON array: %w", err))
	}

	batch := &Batch{Variant: parser.VariantAPIRecord, BaseURL: src.EntryURL}
	for i, raw := range payload {
		if len(batch.Elements) >= a.batchSize {
			break
		}
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
			a.logger.Debug("skipping non-object element", "source", src.DisplayName, "index", i)
			continue
		}
		batch.Elements = append(batch.Elements, parser.NewRecordNode(obj))
	}

	a.logger.Debug("api payload decoded",
		"source", src.DisplayName,
		"total", len(payload),
		"kept", batch.Len(),
		"duration", res.Time(),
	)
	return batch, nil
}

// Close implements Acquirer.
func (a *APIAcquirer) Close() error {
	return nil
}

// Type implements Acquirer.
func (a *APIAcquirer) Type() types.AcquisitionKind {
	return types.AcquireAPI
}
