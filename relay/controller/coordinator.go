// Package controller ties the generation pipelines to the credential pool:
// credential selection, failure classification and bounded retry.
package controller

import (
	"context"
	"fmt"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/fuchsia74/grok2api/common/logger"
	"github.com/fuchsia74/grok2api/model"
	"github.com/fuchsia74/grok2api/monitor"
	"github.com/fuchsia74/grok2api/relay/grok"
	relaymodel "github.com/fuchsia74/grok2api/relay/model"
	"github.com/fuchsia74/grok2api/relay/pool"
)

// Attempt runs one generation try against the chosen credential. collected is
// how many image results previous attempts already delivered, so paginated
// collection resumes instead of restarting.
type Attempt func(ctx context.Context, credential *model.Credential, collected int) <-chan relaymodel.StreamEvent

// Coordinator wraps a generation operation with credential rotation. One
// instance serves the whole process; all per-request state lives in Run.
type Coordinator struct {
	pool       *pool.Pool
	maxRetries int
}

func NewCoordinator(p *pool.Pool, maxRetries int) *Coordinator {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Coordinator{pool: p, maxRetries: maxRetries}
}

// Run drives attempt to completion, rotating credentials on retryable
// failures. preferredId, when non-empty, pins the first attempt to that
// credential. Informational "switching credential" events always precede the
// next attempt's events.
func (c *Coordinator) Run(ctx context.Context, preferredId string, attempt Attempt) <-chan relaymodel.StreamEvent {
	out := make(chan relaymodel.StreamEvent, 16)
	go func() {
		defer close(out)
		emit := func(ev relaymodel.StreamEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		excluded := map[string]bool{}
		retries := 0
		collected := 0
		var lastRetryable error

		for {
			credential, err := c.pick(preferredId, excluded)
			if err != nil {
				emit(relaymodel.ErrorEvent(err))
				return
			}
			preferredId = ""
			if credential == nil {
				if len(excluded) == 0 {
					emit(relaymodel.ErrorEvent(grok.NoCredentialsError()))
				} else {
					emit(relaymodel.ErrorEvent(grok.AllExhaustedError(lastRetryable)))
				}
				return
			}

			retry := false
			for ev := range attempt(ctx, credential, collected) {
				if ev.Type == relaymodel.EventImage {
					collected++
					monitor.RecordImageCollected()
				}
				if ev.Type != relaymodel.EventError {
					if !emit(ev) {
						return
					}
					continue
				}

				failure := ev.Err
				if failure == nil {
					failure = errors.New(ev.Message)
				}
				monitor.RecordUpstreamError(string(grok.KindOf(failure)))
				if !grok.IsRetryable(failure) {
					emit(ev)
					return
				}

				excluded[credential.Id] = true
				monitor.RecordCredentialSwitch()
				lastRetryable = failure
				retries++
				if retries > c.maxRetries {
					emit(relaymodel.ErrorEvent(grok.RetryLimitError(failure)))
					return
				}
				logger.Logger.Info("switching credential after retryable failure",
					zap.String("credential_id", credential.Id),
					zap.String("reason", string(grok.KindOf(failure))),
					zap.Int("retry", retries))
				if !emit(relaymodel.InfoEvent(fmt.Sprintf("switching credential (%s), retry %d/%d",
					grok.KindOf(failure), retries, c.maxRetries))) {
					return
				}
				retry = true
				break
			}
			if !retry {
				return
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
	return out
}

// pick honors the preferred credential on the first attempt, then falls back
// to exclusion-aware random selection.
func (c *Coordinator) pick(preferredId string, excluded map[string]bool) (*model.Credential, error) {
	if preferredId != "" && !excluded[preferredId] {
		credential, err := c.pool.GetById(preferredId)
		if err != nil {
			return nil, errors.Wrap(err, "look up preferred credential")
		}
		if credential != nil && credential.Status == model.CredentialStatusEnabled {
			return credential, nil
		}
		// Unknown or disabled preferred credentials degrade to random picks.
	}
	return c.pool.PickRandom(excluded)
}
