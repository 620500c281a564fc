package repository

import "gorm.io/gorm"

// AutoMigrate creates the schema from the record structs. Production runs
// the SQL migrations in infra/db; this exists for the sqlite test fixtures
// here and in the service tests.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&userRecord{},
		&userSettingsRecord{},
		&loginLogRecord{},
		&approvalLogRecord{},
		&messageRecord{},
		&friendRequestRecord{},
		&friendRecord{},
		&groupMemberRecord{},
		&transferRequestRecord{},
		&fileRecord{},
		&notificationRecord{},
		&announcementRecord{},
	)
}
