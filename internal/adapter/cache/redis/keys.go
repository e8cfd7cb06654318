package rediscache

import "fmt"

// Key builders. Kept in one place so the lock/marker namespace stays legible.

// ScheduleProcessingLock serialises batch handlers per schedule.
func ScheduleProcessingLock(scheduleID string) string {
	return "schedule_processing:" + scheduleID
}

// LastAccountForVideo marks the account that last posted on a video within a
// schedule (24h TTL at the call site).
func LastAccountForVideo(scheduleID, videoID string) string {
	return fmt.Sprintf("schedule:%s:video:%s:lastAccount", scheduleID, videoID)
}

// AccountVideoCooldown prevents immediate duplicate dispatch of the same
// (account, video) pair during contention.
func AccountVideoCooldown(accountID, videoID string) string {
	return fmt.Sprintf("account:%s:video:%s:cooldown", accountID, videoID)
}

// ScheduleDetail caches a schedule's API detail payload.
func ScheduleDetail(scheduleID string) string {
	return "schedule:" + scheduleID
}

// UserSchedulesPattern matches a user's cached schedule listings.
func UserSchedulesPattern(userID string) string {
	return fmt.Sprintf("user:%s:schedules:*", userID)
}
