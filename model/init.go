package model

import "seqquest/platform"

func InstallDB() {
	db := platform.DB
	if err := db.AutoMigrate(
		&Session{},
		&Conversation{},
		&Message{}); err != nil {
		panic(err)
	}
}
