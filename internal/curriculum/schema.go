package curriculum

import "strings"

// Schema DDL of the curriculum tables for the given driver, every statement is idempotent
func Schema(driver string) []string {
	ts := "TIMESTAMP"
	if driver == "mysql" {
		ts = "DATETIME(6)"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS "course" (
			id VARCHAR(32) NOT NULL PRIMARY KEY,
			title VARCHAR(128) NOT NULL,
			description TEXT NOT NULL,
			cover VARCHAR(512) NOT NULL,
			status INT NOT NULL,
			created_at {ts} NOT NULL,
			updated_at {ts} NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS "lesson" (
			id VARCHAR(32) NOT NULL PRIMARY KEY,
			course_id VARCHAR(32) NOT NULL,
			title VARCHAR(128) NOT NULL,
			body TEXT NOT NULL,
			media VARCHAR(512) NOT NULL,
			"order" INT NOT NULL,
			created_at {ts} NOT NULL,
			updated_at {ts} NOT NULL,
			CONSTRAINT uq_lesson_course_order UNIQUE (course_id, "order")
		)`,
		`CREATE TABLE IF NOT EXISTS "enrollment" (
			learner_id VARCHAR(32) NOT NULL,
			course_id VARCHAR(32) NOT NULL,
			created_at {ts} NOT NULL,
			PRIMARY KEY (learner_id, course_id)
		)`,
		`CREATE TABLE IF NOT EXISTS "completion" (
			learner_id VARCHAR(32) NOT NULL,
			lesson_id VARCHAR(32) NOT NULL,
			created_at {ts} NOT NULL,
			PRIMARY KEY (learner_id, lesson_id)
		)`,
	}
	for i, s := range stmts {
		stmts[i] = strings.Replace(s, "{ts}", ts, -1)
	}
	return stmts
}
