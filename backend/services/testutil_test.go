package services

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"coursegate/backend/models"
	"coursegate/backend/utils"
)

func testDSN(t *testing.T) string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
}

// openTestDB opens one more connection to the test's shared in-memory
// database, pinned to a single conn so every session sees the same state.
func openTestDB(t *testing.T, dsn string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := openTestDB(t, testDSN(t))
	require.NoError(t, utils.Migrate(db))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, username, role string) *models.User {
	t.Helper()
	user := models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		Role:         role,
		Active:       true,
	}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func seedCourse(t *testing.T, db *gorm.DB, title string, price int64, status string, levelCount int) *models.Course {
	t.Helper()
	course := models.Course{
		Title:      title,
		Price:      price,
		Status:     status,
		LevelCount: levelCount,
	}
	require.NoError(t, db.Create(&course).Error)
	return &course
}

func seedLevel(t *testing.T, db *gorm.DB, courseID uint, number int, quizRequired bool) *models.Level {
	t.Helper()
	level := models.Level{
		CourseID:     courseID,
		Title:        fmt.Sprintf("Level %d", number),
		LevelNumber:  number,
		QuizRequired: quizRequired,
	}
	level.SetVideo(models.VideoSource{Type: models.VideoLocal, Path: "/tmp/video.mp4"})
	require.NoError(t, db.Create(&level).Error)
	return &level
}

// captureDispatcher records enqueued tasks instead of delivering them.
type captureDispatcher struct {
	mu    sync.Mutex
	tasks []Task
}

func (d *captureDispatcher) Enqueue(t Task) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = append(d.tasks, t)
}

func (d *captureDispatcher) all() []Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Task, len(d.tasks))
	copy(out, d.tasks)
	return out
}

func (d *captureDispatcher) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = nil
}
