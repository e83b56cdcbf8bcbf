// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"context"
	"log"
	"net/mail"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/elimuhub/elimu/core"
	"github.com/elimuhub/elimu/core/course"
	"github.com/elimuhub/elimu/core/user"
	"github.com/elimuhub/elimu/core/withdrawal"
)

// NewConfig returns a self-contained test configuration; nothing is read
// from the environment.
func NewConfig() *core.Config {
	return &core.Config{
		TestMode:                  true,
		Env:                       "TEST",
		AppName:                   "Elimu",
		SecretKey:                 "secret",
		WorkDir:                   core.Getwd(),
		FrontendBaseURL:           "http://localhost:3000",
		DefaultFromEmail:          mail.Address{Name: "Elimu", Address: "noreply@test.cd"},
		AdminEmail:                mail.Address{Name: "Elimu", Address: "admin@test.cd"},
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		Server: core.ServerConfig{
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
	}
}

// NewValidators returns an initialized validator and translator pair.
func NewValidators() (*validator.Validate, ut.Translator) {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")

	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

// NewLogger returns a core.Logger that writes to the standard logger.
func NewLogger() core.Logger {
	return stdLogger{}
}

type stdLogger struct{}

func (stdLogger) Enable(bool)                           {}
func (stdLogger) Debug(msg string, args ...interface{}) { log.Println("DEBUG:", msg, args) }
func (stdLogger) Info(msg string, args ...interface{})  { log.Println("INFO:", msg, args) }
func (stdLogger) Warn(msg string, args ...interface{})  { log.Println("WARN:", msg, args) }
func (stdLogger) Error(msg string, args ...interface{}) { log.Println("ERROR:", msg, args) }
func (stdLogger) Fatal(msg string, args ...interface{}) { log.Panicln("FATAL:", msg, args) }

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateCourse(
	t *testing.T,
	repo course.Repository,
	title, slug, instructorID string,
	status course.Status,
	createdAt ...time.Time,
) course.Course {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	crs := course.Course{
		Title:        title,
		Slug:         slug,
		Description:  "A test course",
		Price:        decimal.NewFromInt(50),
		Status:       status,
		InstructorID: instructorID,
		CreatedAt:    tstamp,
		UpdatedAt:    tstamp,
	}
	crs, err := repo.CreateCourse(context.Background(), crs)
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return crs
}

func CreateWithdrawal(
	t *testing.T,
	repo withdrawal.Repository,
	instructorID string,
	amount int64,
	status withdrawal.Status,
	requestedAt ...time.Time,
) withdrawal.Withdrawal {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(requestedAt) > 0 {
		tstamp = requestedAt[0].UTC()
	}
	wdr := withdrawal.Withdrawal{
		InstructorID: instructorID,
		Amount:       decimal.NewFromInt(amount),
		Currency:     "USD",
		Status:       status,
		Method:       "mpesa",
		RequestedAt:  tstamp,
		UpdatedAt:    tstamp,
	}
	wdr, err := repo.CreateWithdrawal(context.Background(), wdr)
	if err != nil {
		t.Fatalf("CreateWithdrawal() failed: %v", err)
	}
	return wdr
}
