package bus

import (
	"fmt"
	"strconv"
	"strings"
)

// Topic layout for the faculty desk-unit message bus (§6). Legacy
// professor/* topics (from the original single-faculty deployment) are
// always mapped onto faculty id 1; an id inside the payload is not read.
const (
	legacyFacultyID = 1

	topicFacultyStatusFmt    = "consultease/faculty/%d/status"
	topicFacultyMACStatusFmt = "consultease/faculty/%d/mac_status"
	topicFacultyRequestsFmt  = "consultease/faculty/%d/requests"
	topicFacultyMessagesFmt  = "consultease/faculty/%d/messages"
	topicFacultyResponsesFmt = "consultease/faculty/%d/responses"
	topicSystemNotifications = "consultease/system/notifications"

	legacyProfessorStatus   = "professor/status"
	legacyProfessorMessages = "professor/messages"
)

func FacultyStatusTopic(facultyID int64) string    { return fmt.Sprintf(topicFacultyStatusFmt, facultyID) }
func FacultyMACStatusTopic(facultyID int64) string { return fmt.Sprintf(topicFacultyMACStatusFmt, facultyID) }
func FacultyRequestsTopic(facultyID int64) string  { return fmt.Sprintf(topicFacultyRequestsFmt, facultyID) }
func FacultyMessagesTopic(facultyID int64) string  { return fmt.Sprintf(topicFacultyMessagesFmt, facultyID) }
func FacultyResponsesTopic(facultyID int64) string { return fmt.Sprintf(topicFacultyResponsesFmt, facultyID) }

// SystemNotificationsTopic is the broadcast topic for kiosk-facing system notices.
func SystemNotificationsTopic() string { return topicSystemNotifications }

// SubscriptionTopics returns every topic the central system subscribes to.
func SubscriptionTopics() []string {
	return []string{
		"consultease/faculty/+/status",
		"consultease/faculty/+/responses",
		"consultease/faculty/+/mac_status",
		legacyProfessorStatus,
		legacyProfessorMessages,
	}
}

// ResolveFacultyID extracts the faculty id embedded in a topic of the form
// "consultease/faculty/{id}/...", or maps legacy "professor/*" topics onto
// legacyFacultyID. Only the topic is examined; no caller reads a faculty id
// from a legacy payload, so legacy messages are always attributed to
// legacyFacultyID.
func ResolveFacultyID(topic string) (int64, bool) {
	if topic == legacyProfessorStatus || topic == legacyProfessorMessages {
		return legacyFacultyID, true
	}
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[0] != "consultease" || parts[1] != "faculty" {
		return 0, false
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// IsLegacyTopic reports whether topic is one of the pre-multi-faculty
// "professor/*" topics, which carry no faculty id of their own.
func IsLegacyTopic(topic string) bool {
	return topic == legacyProfessorStatus || topic == legacyProfessorMessages
}
