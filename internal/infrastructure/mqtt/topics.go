package mqtt

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxTopicLength is the MQTT limit for a UTF-8 encoded topic string.
const maxTopicLength = 65535

// Topic wildcards.
const (
	SingleLevelWildcard = "+"
	MultiLevelWildcard  = "#"
	topicSeparator      = "/"
)

// ValidateTopicName checks a topic used for PUBLISH: non-empty, valid
// UTF-8, no NUL character and no wildcards.
func ValidateTopicName(topic string) error {
	if err := validateTopicString(topic); err != nil {
		return err
	}
	if strings.ContainsAny(topic, SingleLevelWildcard+MultiLevelWildcard) {
		return fmt.Errorf("%w: wildcards are not allowed in topic name %q", ErrInvalidTopic, topic)
	}
	return nil
}

// ValidateTopicFilter checks a subscription filter. "+" must occupy a whole
// level and "#" must occupy the last level.
//
// Examples:
//
//	ValidateTopicFilter("sensors/+/temp") // nil
//	ValidateTopicFilter("sensors/#")      // nil
//	ValidateTopicFilter("sensors/#/temp") // ErrInvalidTopic
//	ValidateTopicFilter("sensors/te+mp")  // ErrInvalidTopic
func ValidateTopicFilter(filter string) error {
	if err := validateTopicString(filter); err != nil {
		return err
	}

	levels := strings.Split(filter, topicSeparator)
	for i, level := range levels {
		switch {
		case level == MultiLevelWildcard:
			if i != len(levels)-1 {
				return fmt.Errorf("%w: %q must be the last level in %q", ErrInvalidTopic, MultiLevelWildcard, filter)
			}
		case level == SingleLevelWildcard:
		case strings.ContainsAny(level, SingleLevelWildcard+MultiLevelWildcard):
			return fmt.Errorf("%w: wildcard must occupy a whole level in %q", ErrInvalidTopic, filter)
		}
	}
	return nil
}

func validateTopicString(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}
	if len(topic) > maxTopicLength {
		return fmt.Errorf("%w: topic exceeds %d bytes", ErrInvalidTopic, maxTopicLength)
	}
	if !utf8.ValidString(topic) {
		return fmt.Errorf("%w: topic is not valid UTF-8", ErrInvalidTopic)
	}
	if strings.ContainsRune(topic, 0) {
		return fmt.Errorf("%w: topic contains NUL", ErrInvalidTopic)
	}
	return nil
}

// TopicMatches reports whether a topic name matches a subscription filter.
//
// "+" matches exactly one level and "#" matches the parent level and
// everything below it. Topics starting with "$" are not matched by
// filters starting with a wildcard.
func TopicMatches(filter, topic string) bool {
	if strings.HasPrefix(topic, "$") && (strings.HasPrefix(filter, SingleLevelWildcard) || strings.HasPrefix(filter, MultiLevelWildcard)) {
		return false
	}

	filterLevels := strings.Split(filter, topicSeparator)
	topicLevels := strings.Split(topic, topicSeparator)

	for i, level := range filterLevels {
		if level == MultiLevelWildcard {
			return true
		}
		if i >= len(topicLevels) {
			return false
		}
		if level != SingleLevelWildcard && level != topicLevels[i] {
			return false
		}
	}

	return len(filterLevels) == len(topicLevels)
}
