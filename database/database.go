package database

import (
	"fmt"

	"lms/config"
	"lms/logger"
	"lms/models"
	"lms/models/course"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DbInstance struct holds the database connection instance
type DbInstance struct {
	Db *gorm.DB
}

// Database is the global database instance
var Database DbInstance

// ConnectDb opens the configured database, runs migrations and stores the
// handle globally.
func ConnectDb() {
	var (
		db  *gorm.DB
		err error
	)

	switch config.AppConfig.DBDriver {
	case "sqlite":
		db, err = OpenSQLite(config.AppConfig.DBName)
	default:
		dsn := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
			config.AppConfig.DBHost,
			config.AppConfig.DBUser,
			config.AppConfig.DBPassword,
			config.AppConfig.DBName,
			config.AppConfig.DBPort,
		)
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err == nil {
			err = configurePool(db, 10, 5)
		}
	}
	if err != nil {
		logger.Fatal().Err(err).Str("driver", config.AppConfig.DBDriver).Msg("[DATABASE] Failed to connect")
	}

	if err := Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("[DATABASE] Migration failed")
	}

	Database = DbInstance{Db: db}
}

// OpenSQLite opens a SQLite database. The pool is pinned to one connection,
// which keeps shared in-memory databases alive and serializes writers.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	if err := configurePool(db, 1, 1); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenMemory opens a migrated, private in-memory SQLite database.
func OpenMemory(name string) (*gorm.DB, error) {
	db, err := OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func configurePool(db *gorm.DB, maxOpen, maxIdle int) error {
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "get database instance")
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(0)
	return nil
}

// openEnrollmentIndex allows at most one open enrollment per student and
// course. Creation relies on it through ON CONFLICT DO NOTHING.
const openEnrollmentIndex = `CREATE UNIQUE INDEX IF NOT EXISTS ux_enrollments_open_pair
	ON enrollments (student_id, course_id)
	WHERE status IN ('pending', 'active', 'approved', 'suspended') AND deleted_at IS NULL`

// openPaymentIndex allows at most one unsettled payment per student and
// course, so a second checkout cannot charge twice.
const openPaymentIndex = `CREATE UNIQUE INDEX IF NOT EXISTS ux_payments_open_pair
	ON payments (student_id, course_id)
	WHERE status IN ('pending', 'processing') AND deleted_at IS NULL`

// Migrate performs database migrations
func Migrate(db *gorm.DB) error {
	logger.Debug().Msg("[DATABASE] Running migrations")

	err := db.AutoMigrate(
		&models.User{},
		&course.Course{},
		&course.Module{},
		&course.CourseContent{},
		&course.Quiz{},
		&course.QuizAttempt{},
		&course.Enrollment{},
		&course.Payment{},
		&course.PaymentGatewayEvent{},
		&course.LearningProgress{},
		&course.Certificate{},
		&course.CompletionDispatch{},
		&course.Notification{},
	)
	if err != nil {
		return errors.Wrap(err, "auto migrate")
	}

	if err := db.Exec(openEnrollmentIndex).Error; err != nil {
		return errors.Wrap(err, "create open enrollment index")
	}
	if err := db.Exec(openPaymentIndex).Error; err != nil {
		return errors.Wrap(err, "create open payment index")
	}

	logger.Debug().Msg("[DATABASE] Migrations completed")
	return nil
}
