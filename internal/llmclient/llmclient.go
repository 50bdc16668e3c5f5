// Package llmclient names and summarizes eras by prompting a large-language
// model provider, with bounded retries, a circuit breaker, strict response
// validation, and a deterministic fallback that never fails.
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/soundtrace/eras-api/internal/logging"
	"github.com/soundtrace/eras-api/internal/metrics"
	"github.com/soundtrace/eras-api/internal/segment"
)

// Provider is a single chat round trip against an LLM backend. Each
// concrete provider (OpenAI, Anthropic, ...) implements this and shares the
// retry/validation/fallback pipeline below.
type Provider interface {
	Chat(ctx context.Context, prompt string, opts ChatOptions) (string, error)
}

// ChatOptions carries the per-call knobs a Provider needs.
type ChatOptions struct {
	Model   string
	Timeout time.Duration
}

// Named is the validated result of naming one era.
type Named struct {
	Title   string
	Summary string
}

const (
	maxTitleLen   = 50
	maxSummaryLen = 500
	minSummaryLen = 20
	maxAttempts   = 3
)

var backoffDelays = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// retryableTerms mirrors the substring-based retryable-error classification
// the prompt-building pipeline this is grounded on uses: rate limits,
// timeouts, and transient upstream failures are worth a retry; anything
// else (bad credentials, malformed requests) is not.
var retryableTerms = []string{
	"rate limit", "timeout", "connection",
	"server error", "500", "502", "503", "529",
}

// Client names eras via a Provider, wrapped in a circuit breaker so a
// struggling provider stops taking new calls instead of timing out every
// one of them.
type Client struct {
	provider Provider
	opts     ChatOptions
	breaker  *gobreaker.CircuitBreaker[string]
}

// New builds a Client around the given provider and per-call options.
func New(provider Provider, opts ChatOptions) *Client {
	settings := gobreaker.Settings{
		Name:        "llm-naming",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Client{
		provider: provider,
		opts:     opts,
		breaker:  gobreaker.NewCircuitBreaker[string](settings),
	}
}

// NameEra produces a validated {title, summary} for one era. It never
// returns an error: on any failure — provider error, open breaker, timeout,
// unusable response — it falls back to a deterministic name derived from
// the era itself.
func (c *Client) NameEra(ctx context.Context, era segment.Era) Named {
	prompt := buildPrompt(era)

	raw, err := c.callWithRetry(ctx, prompt)
	if err != nil {
		logging.Logger().Warn().Err(err).Int("era_id", era.ID).Msg("era naming call failed, using fallback")
		metrics.LLMFallbacks.Inc()
		return fallback(era)
	}

	named, ok := parseAndClean(raw)
	if !ok {
		logging.Logger().Warn().Int("era_id", era.ID).Msg("era naming response unusable, using fallback")
		metrics.LLMFallbacks.Inc()
		return fallback(era)
	}
	return named
}

// callWithRetry attempts the chat call up to maxAttempts times with
// exponential backoff (1s before the second attempt, 2s before the third),
// retrying only errors whose message
// matches a known-transient pattern, and stopping early once the circuit
// breaker itself is open.
func (c *Client) callWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			metrics.LLMRetries.Inc()
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoffDelays[attempt-1]):
			}
		}

		metrics.LLMCalls.Inc()
		result, err := c.breaker.Execute(func() (string, error) {
			callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
			defer cancel()
			return c.provider.Chat(callCtx, prompt, c.opts)
		})
		if err == nil {
			return result, nil
		}

		lastErr = err
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", err
		}
		if !isRetryable(err) {
			return "", err
		}
	}

	return "", lastErr
}

func isRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, term := range retryableTerms {
		if strings.Contains(msg, term) {
			return true
		}
	}
	return false
}

// buildPrompt formats the deterministic naming prompt: date range, duration,
// listening hours, top five artists, top ten tracks, and strict JSON-only
// output instructions.
func buildPrompt(era segment.Era) string {
	dateRange := formatDateRange(era.StartDate, era.EndDate)
	duration := formatDuration(int(era.EndDate.Sub(era.StartDate).Hours()/24) + 1)
	hours := era.TotalMsPlayed / 3_600_000

	var artistLines strings.Builder
	for i, a := range era.TopArtists {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&artistLines, "%d. %s (%d plays)\n", i+1, a.Artist, a.Plays)
	}

	var trackLines strings.Builder
	for i, t := range era.TopTracks {
		if i >= 10 {
			break
		}
		fmt.Fprintf(&trackLines, "%d. %s by %s (%d plays)\n", i+1, t.Track, t.Artist, t.Plays)
	}

	return fmt.Sprintf(`You are analyzing someone's music listening history. Based on this era's data, create a creative title and summary.

Era: %s (%s)
Total listening time: %s

Top Artists:
%s
Top Tracks:
%s
Create a JSON response with:
- "title": A creative, evocative 2-5 word title that captures the mood/vibe. Avoid generic titles like "Musical Journey", "Eclectic Mix", or "Summer Vibes".
- "summary": A 2-3 sentence summary describing the musical mood, themes, or story of this era.

Respond ONLY with valid JSON: {"title": "...", "summary": "..."}`,
		dateRange, duration, formatHours(hours),
		strings.TrimRight(artistLines.String(), "\n"),
		strings.TrimRight(trackLines.String(), "\n"))
}

func formatDateRange(start, end time.Time) string {
	startMonth := start.Format("January 2006")
	endMonth := end.Format("January 2006")
	if startMonth == endMonth {
		return startMonth
	}
	return startMonth + " - " + endMonth
}

func formatDuration(days int) string {
	switch {
	case days < 14:
		return pluralize(days, "day")
	case days < 60:
		return pluralize(days/7, "week")
	default:
		return pluralize(days/30, "month")
	}
}

func formatHours(hours int64) string {
	return pluralize(int(hours), "hour")
}

func pluralize(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// rawResponse is the shape the provider is asked to emit.
type rawResponse struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

var jsonObjectPattern = regexp.MustCompile(`\{[\s\S]*\}`)

// parseAndClean decodes the provider's response into a title/summary pair
// and applies the cleaning rules. It accepts either a bare JSON object or
// free text with a JSON object embedded somewhere in it (providers
// occasionally wrap the object in prose despite instructions).
func parseAndClean(raw string) (Named, bool) {
	var resp rawResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		match := jsonObjectPattern.FindString(raw)
		if match == "" {
			return Named{}, false
		}
		if err := json.Unmarshal([]byte(match), &resp); err != nil {
			return Named{}, false
		}
	}

	title := cleanTitle(resp.Title)
	summary := cleanSummary(resp.Summary)
	if title == "" || summary == "" {
		return Named{}, false
	}
	return Named{Title: title, Summary: summary}, true
}

func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.TrimSpace(s)
	if len(s) > maxTitleLen {
		s = s[:maxTitleLen]
	}
	return s
}

func cleanSummary(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	s = collapseWhitespace(s)
	if len(s) > maxSummaryLen {
		s = s[:maxSummaryLen]
	}
	if len(s) < minSummaryLen {
		return ""
	}
	return s
}

var whitespaceRun = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// fallback computes a deterministic {title, summary} purely from the era,
// used whenever the provider call or its response is unusable. It never
// fails: every Era, including one with no top artists, yields a non-empty
// title and summary within the same length bounds as a cleaned response.
func fallback(era segment.Era) Named {
	title := fmt.Sprintf("Era %d: %s", era.ID, era.StartDate.Format("January 2006"))
	if len(title) > maxTitleLen {
		title = title[:maxTitleLen]
	}

	duration := formatDuration(int(era.EndDate.Sub(era.StartDate).Hours()/24) + 1)
	topArtist := "a mix of artists"
	if len(era.TopArtists) > 0 {
		topArtist = era.TopArtists[0].Artist
	}
	summary := fmt.Sprintf("A %s period featuring %s and more.", duration, topArtist)
	if len(summary) > maxSummaryLen {
		summary = summary[:maxSummaryLen]
	}

	return Named{Title: title, Summary: summary}
}

// NameAll names every era in order, reporting progress through onProgress
// after each one as a value in [0, 1]. A provider or context failure on one
// era never aborts the batch — NameEra already absorbs it into a fallback.
func NameAll(ctx context.Context, client *Client, eras []segment.Era, onProgress func(fraction float64)) []segment.Era {
	named := make([]segment.Era, len(eras))
	for i, era := range eras {
		result := client.NameEra(ctx, era)
		era.Title = result.Title
		era.Summary = result.Summary
		named[i] = era

		if onProgress != nil {
			onProgress(float64(i+1) / float64(len(eras)))
		}
	}
	return named
}
