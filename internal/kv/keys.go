package kv

// Key layout of the realtime store. Every aggregate lives under its own key so
// that transactions only watch the records they actually depend on.
const (
	VoteCountPrefix         = "vote_count:"
	VotePrefix              = "vote:"
	ActivityPrefix          = "activity:"
	ActivityIndexPrefix     = "activity_idx:"
	TopicCommentPrefix      = "topic_comment:"
	TopicHotPrefix          = "topic_hot:"
	TastePrefix             = "taste:"
	WebsitePrefix           = "website:"
	EngagementPrefix        = "engagement:"
	BookmarkPrefix          = "bookmark:"
	NotificationPrefix      = "notification:"
	NotificationIndexPrefix = "notification_idx:"

	// RecentActivityCounts maps user IDs to their stored recent-activity count.
	RecentActivityCounts = "recent_activity_counts"
	// TopicCommentCounts maps topics to their stored comment count.
	TopicCommentCounts = "topic_comment_counts"
	// NotificationCounts maps user IDs to their stored notification count.
	NotificationCounts = "notification_counts"
)

// VoteCountKey holds the up/down counters and derived scores of an item.
func VoteCountKey(itemID string) string { return VoteCountPrefix + itemID }

// VoteKey holds a voter's vote on an item.
func VoteKey(itemID, voterID string) string { return VotePrefix + itemID + ":" + voterID }

// ActivityKey maps activity IDs to encoded entries of a user's recent activity.
func ActivityKey(userID string) string { return ActivityPrefix + userID }

// ActivityIndexKey orders a user's activity IDs by activity time.
func ActivityIndexKey(userID string) string { return ActivityIndexPrefix + userID }

// TopicCommentKey maps comment IDs to encoded flat topic comments.
func TopicCommentKey(topic string) string { return TopicCommentPrefix + topic }

// TopicHotKey orders a topic's comment IDs by hot score.
func TopicHotKey(topic string) string { return TopicHotPrefix + topic }

// TasteKey holds a user's taste aggregate for a topic.
func TasteKey(userID, topic string) string { return TastePrefix + userID + ":" + topic }

// WebsiteKey holds the flag aggregate and impression counters of a content source.
func WebsiteKey(sourceID string) string { return WebsitePrefix + sourceID }

// EngagementKey holds bookmark and reply counters of an item.
func EngagementKey(itemID string) string { return EngagementPrefix + itemID }

// BookmarkKey marks that a user bookmarked an item.
func BookmarkKey(itemID, userID string) string { return BookmarkPrefix + itemID + ":" + userID }

// NotificationKey maps notification IDs to encoded notifications of a user.
func NotificationKey(userID string) string { return NotificationPrefix + userID }

// NotificationIndexKey orders a user's notification IDs by creation time.
func NotificationIndexKey(userID string) string { return NotificationIndexPrefix + userID }
