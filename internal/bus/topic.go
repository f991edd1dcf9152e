package bus

import "strings"

const (
	topicPrefix = "luffy"

	healthSegment     = "health"
	otaSegment        = "ota"
	otaRequestSegment = "request"

	topicSeparator = "/"

	singleLevelWildcard = "+"
	multiLevelWildcard  = "#"
)

// HealthTopic is the topic a service reports its own liveness on.
func HealthTopic(service string) string {
	return strings.Join([]string{topicPrefix, service, healthSegment}, topicSeparator)
}

// HealthPattern matches the health topics of every service on the bus.
func HealthPattern() string {
	return HealthTopic(singleLevelWildcard)
}

// OTARequestTopic is the topic an on-demand update check is requested on.
func OTARequestTopic(vehicleID string) string {
	return strings.Join(
		[]string{topicPrefix, vehicleID, otaSegment, otaRequestSegment},
		topicSeparator)
}

// ServiceFromHealthTopic extracts the reporting service's name from a
// concrete health topic. It returns false for topics of any other shape.
func ServiceFromHealthTopic(topic string) (string, bool) {
	parts := strings.Split(topic, topicSeparator)
	if len(parts) != 3 || parts[0] != topicPrefix || parts[2] != healthSegment {
		return "", false
	}

	if parts[1] == "" || parts[1] == singleLevelWildcard {
		return "", false
	}

	return parts[1], true
}

// Match reports whether an MQTT-style pattern matches a concrete topic.
// A "+" segment matches exactly one topic segment; a trailing "#" matches
// the remainder of the topic, including nothing.
func Match(pattern, topic string) bool {
	patternParts := strings.Split(pattern, topicSeparator)
	topicParts := strings.Split(topic, topicSeparator)

	for i, part := range patternParts {
		if part == multiLevelWildcard && i == len(patternParts)-1 {
			return len(topicParts) >= i
		}

		if i >= len(topicParts) {
			return false
		}

		if part == singleLevelWildcard {
			continue
		}

		if part != topicParts[i] {
			return false
		}
	}

	return len(patternParts) == len(topicParts)
}

func matchesAny(patterns []string, topic string) bool {
	for _, pattern := range patterns {
		if Match(pattern, topic) {
			return true
		}
	}

	return false
}

// toRedisPattern widens an MQTT-style pattern into the Redis glob used for
// the broker-side subscription. Redis has no single-segment wildcard, so
// the result over-matches and deliveries are filtered again with Match.
func toRedisPattern(pattern string) string {
	parts := strings.Split(pattern, topicSeparator)
	for i, part := range parts {
		if part == singleLevelWildcard || part == multiLevelWildcard {
			parts[i] = "*"
		}
	}

	return strings.Join(parts, topicSeparator)
}
