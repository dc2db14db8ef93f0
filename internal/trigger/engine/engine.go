package engine

import (
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	emaildomain "emailtrigger-backend/internal/email/domain"
	"emailtrigger-backend/internal/trigger/domain"
)

// Engine evaluates trigger rules against normalized messages. Evaluation is
// pure: no I/O, no persistence, safe to call from any goroutine. Clock-time
// windows are read in loc, so the zone a provider happened to encode a
// timestamp in never affects matching.
type Engine struct {
	loc *time.Location
}

// NewEngine creates a rule engine evaluating time_range windows in server
// local time
func NewEngine() *Engine {
	return &Engine{loc: time.Local}
}

// NewEngineInLocation creates a rule engine evaluating time_range windows in
// the given location
func NewEngineInLocation(loc *time.Location) *Engine {
	return &Engine{loc: loc}
}

// Evaluate returns the subset of rules that match the message, in the order
// given. Inactive rules are skipped. A rule that cannot be evaluated (invalid
// regex, malformed time range) is logged and treated as a non-match so one
// bad rule never blocks the rest.
func (e *Engine) Evaluate(message *emaildomain.Message, rules []*domain.TriggerRule) []*domain.TriggerRule {
	var matched []*domain.TriggerRule
	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		ok, err := e.Matches(message, rule)
		if err != nil {
			log.Printf("[Engine] Rule %s (%s) skipped: %v", rule.ID, rule.TriggerType, err)
			continue
		}
		if ok {
			matched = append(matched, rule)
		}
	}
	return matched
}

// Matches checks a single rule against a message
func (e *Engine) Matches(message *emaildomain.Message, rule *domain.TriggerRule) (bool, error) {
	switch rule.TriggerType {
	case domain.TriggerSenderContains:
		return containsFold(message.Sender, rule.Condition), nil
	case domain.TriggerSubjectContains:
		return containsFold(message.Subject, rule.Condition), nil
	case domain.TriggerBodyContains:
		return containsFold(message.Body, rule.Condition), nil
	case domain.TriggerSenderExact:
		return strings.EqualFold(strings.TrimSpace(message.Sender), strings.TrimSpace(rule.Condition)), nil
	case domain.TriggerSubjectRegex:
		re, err := compileSubjectRegex(rule.Condition)
		if err != nil {
			return false, err
		}
		return re.MatchString(message.Subject), nil
	case domain.TriggerAttachmentExists:
		return message.HasAttachments(), nil
	case domain.TriggerTimeRange:
		start, end, err := parseTimeRange(rule.Condition)
		if err != nil {
			return false, err
		}
		return inTimeRange(message.ReceivedAt.In(e.loc), start, end), nil
	default:
		return false, fmt.Errorf("unknown trigger type %q", rule.TriggerType)
	}
}

// ValidateCondition rejects conditions that could never be evaluated, so bad
// rules are caught at save time instead of silently never matching.
func ValidateCondition(triggerType domain.TriggerType, condition string) error {
	switch triggerType {
	case domain.TriggerSenderContains, domain.TriggerSubjectContains,
		domain.TriggerBodyContains, domain.TriggerSenderExact:
		if strings.TrimSpace(condition) == "" {
			return fmt.Errorf("condition must not be empty for %s", triggerType)
		}
		return nil
	case domain.TriggerSubjectRegex:
		_, err := compileSubjectRegex(condition)
		return err
	case domain.TriggerAttachmentExists:
		return nil
	case domain.TriggerTimeRange:
		_, _, err := parseTimeRange(condition)
		return err
	default:
		return fmt.Errorf("unknown trigger type %q", triggerType)
	}
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func compileSubjectRegex(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", pattern, err)
	}
	return re, nil
}

// minuteOfDay flattens a clock time to minutes since midnight
type minuteOfDay int

// parseTimeRange parses "HH:MM-HH:MM" into start and end minutes of day
func parseTimeRange(condition string) (minuteOfDay, minuteOfDay, error) {
	parts := strings.SplitN(condition, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("time range %q must be HH:MM-HH:MM", condition)
	}
	start, err := parseClock(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("time range %q: %w", condition, err)
	}
	end, err := parseClock(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("time range %q: %w", condition, err)
	}
	return start, end, nil
}

func parseClock(s string) (minuteOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return minuteOfDay(t.Hour()*60 + t.Minute()), nil
}

// inTimeRange checks the message's received time against [start, end]. A
// range whose start is after its end wraps past midnight, so 22:00-06:00
// matches 23:30 and 05:00 but not 12:00.
func inTimeRange(received time.Time, start, end minuteOfDay) bool {
	at := minuteOfDay(received.Hour()*60 + received.Minute())
	if start <= end {
		return at >= start && at <= end
	}
	return at >= start || at <= end
}
