package config

// Default values applied to unset configuration fields.
const (
	DefaultLogLevel      = "info"
	DefaultMaxLogsToKeep = 10
	DefaultMaxLogLines   = 10000

	DefaultMaxRecentActivity       = 1000
	DefaultStableRecentActivity    = 800
	DefaultMaxTopicCommentCount    = 1000
	DefaultStableTopicCommentCount = 800
	DefaultMaxNotificationCount    = 500
	DefaultStableNotificationCount = 100

	DefaultPruneBatchSize   = 100
	DefaultPruneConcurrency = 8

	DefaultWeeklyInterval = 7 * 24 * 60
	DefaultDailyInterval  = 24 * 60

	DefaultMaxDaysBeforeChurn       = 30
	DefaultTasteScoreDeltaThreshold = 0.01

	DefaultAPIPort          = 8080
	DefaultRequestTimeout   = 5000
	DefaultTransactionTries = 8
)

// Default returns a configuration with every default applied. It is used by
// tests and by tools that run without config files.
func Default() *Config {
	c := &Config{
		Common: CommonConfig{Version: CurrentCommonVersion},
		Worker: WorkerConfig{Version: CurrentWorkerVersion},
	}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	setDefault(&c.Common.Debug.LogLevel, DefaultLogLevel)
	setDefault(&c.Common.Debug.MaxLogsToKeep, DefaultMaxLogsToKeep)
	setDefault(&c.Common.Debug.MaxLogLines, DefaultMaxLogLines)

	setDefault(&c.Common.Retry.MaxRetries, 5)
	setDefault(&c.Common.Retry.Delay, 500)
	setDefault(&c.Common.Retry.MaxDelay, 5000)
	setDefault(&c.Common.Retry.MaxTransactionAttempts, DefaultTransactionTries)

	setDefault(&c.Common.API.Port, DefaultAPIPort)
	setDefault(&c.Common.API.RequestTimeout, DefaultRequestTimeout)

	s := &c.Common.Scoring
	setDefault(&s.MinImpressionsForBaseRisk, 100)
	setDefault(&s.HealingThresholdImpressions, 1000)
	setDefault(&s.HealingPeriodDays, 30)
	setDefault(&s.MaxFlagRelevancyDays, 90)
	setDefault(&s.DecayHalfLifeDays, 30)
	setDefault(&s.MaxDaysBeforeChurn, DefaultMaxDaysBeforeChurn)
	setDefault(&s.TasteScoreDeltaThreshold, DefaultTasteScoreDeltaThreshold)

	r := &c.Worker.Retention
	setDefault(&r.MaxRecentActivity, DefaultMaxRecentActivity)
	setDefault(&r.StableRecentActivity, DefaultStableRecentActivity)
	setDefault(&r.MaxTopicCommentCount, DefaultMaxTopicCommentCount)
	setDefault(&r.StableTopicCommentCount, DefaultStableTopicCommentCount)
	setDefault(&r.MaxNotificationCount, DefaultMaxNotificationCount)
	setDefault(&r.StableNotificationCount, DefaultStableNotificationCount)

	b := &c.Worker.BatchSizes
	setDefault(&b.PruneActivityUsers, DefaultPruneBatchSize)
	setDefault(&b.PruneTopics, DefaultPruneBatchSize)
	setDefault(&b.PruneNotificationUsers, DefaultPruneBatchSize)
	setDefault(&b.PruneConcurrency, DefaultPruneConcurrency)

	i := &c.Worker.Intervals
	setDefault(&i.RecentActivity, DefaultWeeklyInterval)
	setDefault(&i.TopicComments, DefaultWeeklyInterval)
	setDefault(&i.Notifications, DefaultDailyInterval)
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}
