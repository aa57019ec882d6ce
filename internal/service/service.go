package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"trekreg/internal/admin"
	"trekreg/internal/auth"
	"trekreg/internal/mailer"
	"trekreg/internal/repo"
)

type Service interface {
	ListRegistrations(ctx *ginext.Context)
	GetRegistration(ctx *ginext.Context)
	CreateRegistration(ctx *ginext.Context)
	UpdateRegistration(ctx *ginext.Context)
	SendEmail(ctx *ginext.Context)
	Probe(ctx *ginext.Context)
	TicketQR(ctx *ginext.Context)
	Options(ctx *ginext.Context)

	Login(ctx *ginext.Context)
	Logout(ctx *ginext.Context)
	AdminList(ctx *ginext.Context)
	AdminBulk(ctx *ginext.Context)
	AdminSingle(ctx *ginext.Context)
	AdminEmail(ctx *ginext.Context)
	AdminExport(ctx *ginext.Context)
	AdminHistory(ctx *ginext.Context)
	AdminUndo(ctx *ginext.Context)
}

type Mailer interface {
	Send(ctx context.Context, msg mailer.Message) (mailer.Receipt, error)
}

// ReminderPublisher schedules a payment reminder for a fresh registration.
type ReminderPublisher interface {
	PublishReminder(ctx context.Context, registrationID string) error
}

// Archiver stores a copy of an exported file and returns where it went.
type Archiver interface {
	Upload(ctx context.Context, name, contentType string, body []byte) (string, error)
}

type AppConfig struct {
	EventName string
	PublicURL string
	Location  *time.Location
}

type Deps struct {
	Repo      repo.Repository
	Mailer    Mailer
	Console   *admin.Console
	Auth      *auth.Manager
	Reminders ReminderPublisher
	Archive   Archiver
	App       AppConfig
	Log       *zerolog.Logger
}

type service struct {
	repo      repo.Repository
	mail      Mailer
	console   *admin.Console
	auth      *auth.Manager
	reminders ReminderPublisher
	archive   Archiver
	app       AppConfig
	log       *zerolog.Logger
	now       func() time.Time
}

// NewService wires the handlers. Reminders and Archive are optional.
func NewService(d Deps) Service {
	if d.App.Location == nil {
		d.App.Location = time.UTC
	}
	return &service{
		repo:      d.Repo,
		mail:      d.Mailer,
		console:   d.Console,
		auth:      d.Auth,
		reminders: d.Reminders,
		archive:   d.Archive,
		app:       d.App,
		log:       d.Log,
		now:       time.Now,
	}
}

func (s *service) Options(ctx *ginext.Context) {
	ctx.Status(200)
}
