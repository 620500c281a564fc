// Package kv holds every Redis access path: presence markers, the hot
// conversation cache, offline queues, membership caches and verification
// codes. Key shapes live here so the layout is auditable in one place.
package kv

import (
	"fmt"
	"strconv"
)

func onlineKey(userID int64) string   { return fmt.Sprintf("user:%d:online", userID) }
func lastSeenKey(userID int64) string { return fmt.Sprintf("user:%d:last_seen", userID) }
func statusKey(userID int64) string   { return fmt.Sprintf("user:%d:status", userID) }

func historyKey(pairKey int64) string { return fmt.Sprintf("chat:history:%d", pairKey) }

func offlineMsgKey(userID int64) string   { return fmt.Sprintf("offline:messages:%d", userID) }
func offlineNotifKey(userID int64) string { return fmt.Sprintf("offline:notifications:%d", userID) }

func dedupKey(eventID string, userID int64) string {
	return fmt.Sprintf("fanout:dedup:%s:%d", eventID, userID)
}

func friendsKey(userID int64) string      { return fmt.Sprintf("friends:%d", userID) }
func groupMembersKey(groupID int64) string { return fmt.Sprintf("group:members:%d", groupID) }
func userGroupsKey(userID int64) string   { return fmt.Sprintf("user:groups:%d", userID) }
func sessionsKey(userID int64) string     { return fmt.Sprintf("sessions:%d", userID) }

func verifyCodeKey(email string) string { return "verify:code:" + email }
func verifySentKey(email string) string { return "verify:sent:" + email }

func formatID(id int64) string { return strconv.FormatInt(id, 10) }

func parseIDs(raw []string) []int64 {
	out := make([]int64, 0, len(raw))
	for _, s := range raw {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}
