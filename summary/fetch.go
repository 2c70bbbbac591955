package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"hermannm.dev/devlog/log"
	"hermannm.dev/summarytable/clauses"
	"hermannm.dev/summarytable/results"
	"hermannm.dev/summarytable/table"
)

var ErrFetchTimeout = errors.New("summary fetch timed out")

const GenericErrorMessage = "Sorry, something went awry when we tried to load your data. Please try again?"

func TimeoutMessage(timeout time.Duration) string {
	seconds := strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64)
	return fmt.Sprintf("The API timed out after %s seconds. :(", seconds)
}

// A fetch is tagged with the clauses it was built from, so that a response arriving after the
// user has moved on can be recognized and dropped.
type fetchRequest struct {
	id      uuid.UUID
	params  clauses.QueryParams
	skipped bool
}

type fetchResult struct {
	resultSet results.ResultSet
	err       error
}

// Resets the table to its headers, clears the banner, and registers a new latest request. If
// nothing is selected, the request is marked as skipped and there is nothing to fetch.
//
// Must hold lock.
func (session *Session) startRequest() fetchRequest {
	request := fetchRequest{id: uuid.New(), params: session.state.QueryParams()}
	request.skipped = request.params.Clauses.IsEmpty()

	session.latestRequest = request
	session.table = table.Empty(request.params.Clauses, session.registry)
	session.banner = nil
	session.loading = !request.skipped
	session.lastActive = session.now()

	return request
}

func (session *Session) fetchAndApply(ctx context.Context, request fetchRequest) {
	if request.skipped {
		return
	}

	result := session.fetch(ctx, request)

	session.lock.Lock()
	defer session.lock.Unlock()
	session.applyResult(request, result)
}

// Races the fetch against the query timeout. The fetch is not tied to the caller's context, since
// the result belongs to the session rather than to the request that triggered it; on timeout, its
// context is cancelled and its eventual result dropped.
func (session *Session) fetch(ctx context.Context, request fetchRequest) fetchResult {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), session.queryTimeout)
	defer cancel()

	resultChan := make(chan fetchResult, 1)
	go func() {
		resultSet, err := session.summaryDB.FetchSummary(ctx, request.params)
		resultChan <- fetchResult{resultSet: resultSet, err: err}
	}()

	select {
	case result := <-resultChan:
		// The backend may notice the deadline before we do
		if result.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fetchResult{err: ErrFetchTimeout}
		}
		return result
	case <-ctx.Done():
		return fetchResult{err: ErrFetchTimeout}
	}
}

// Must hold lock.
func (session *Session) applyResult(request fetchRequest, result fetchResult) {
	if request.id != session.latestRequest.id ||
		request.params.Clauses != session.state.Clauses() {
		log.Warn(
			"discarding stale summary response",
			slog.String("requestId", request.id.String()),
			slog.String("requestClauses", request.params.Clauses.String()),
			slog.String("currentClauses", session.state.Clauses().String()),
		)
		return
	}

	session.loading = false

	if result.err != nil {
		if errors.Is(result.err, ErrFetchTimeout) {
			log.Warn(
				"summary fetch timed out",
				slog.String("clauses", request.params.Clauses.String()),
				slog.Duration("timeout", session.queryTimeout),
			)
			session.showBanner(TimeoutMessage(session.queryTimeout))
		} else {
			log.ErrorCause(result.err, "failed to fetch summary")
			session.showBanner(GenericErrorMessage)
		}
		return
	}

	normalized, formatErrs := session.normalizer.Normalize(result.resultSet)
	for _, err := range formatErrs {
		log.Warn("invalid value in summary data", slog.String("cause", err.Error()))
	}

	rendered, err := table.Render(request.params.Clauses, normalized, session.registry)
	if err != nil {
		log.Warn(
			"summary response contained errors",
			slog.String("clauses", request.params.Clauses.String()),
			slog.Int("errorCount", len(normalized.Errors)),
		)
		session.showBanner(GenericErrorMessage)
		return
	}

	session.table = rendered
}
