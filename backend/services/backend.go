package services

import (
	"log"
	"net/http"
	"os"
	"strings"

	"formsite/backend/auth"
	"formsite/backend/storage"
	"formsite/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

type Backend struct {
	auth     AuthService
	users    UserService
	subsites SubsiteService
	forms    FormService
	messages MessageService
	files    FileService
	tickets  TicketService

	db *gorm.DB
}

type Options struct {
	MaxUploadSize     int64
	AllowedExtensions []string
}

func NewBackend(db *gorm.DB, store storage.Storage, userAuth auth.IdentityProvider, opts Options) Backend {
	allowed := make(map[string]bool, len(opts.AllowedExtensions))
	for _, ext := range opts.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[strings.ToLower(ext)] = true
	}

	return Backend{
		auth:     AuthService{db: db, userAuth: userAuth},
		users:    UserService{db: db, userAuth: userAuth},
		subsites: SubsiteService{db: db, storage: store, userAuth: userAuth},
		forms:    FormService{db: db, userAuth: userAuth},
		messages: MessageService{db: db, userAuth: userAuth},
		files: FileService{
			db:                db,
			storage:           store,
			userAuth:          userAuth,
			maxUploadSize:     opts.MaxUploadSize,
			allowedExtensions: allowed,
		},
		tickets: TicketService{db: db, userAuth: userAuth},
		db:      db,
	}
}

func (b *Backend) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
	}))

	r.Mount("/auth", b.auth.Routes())
	r.Mount("/users", b.users.Routes())
	r.Mount("/subsites", b.subsites.Routes())
	r.Mount("/forms", b.forms.Routes())
	r.Mount("/messages", b.messages.Routes())
	r.Mount("/files", b.files.Routes())
	r.Mount("/tickets", b.tickets.Routes())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
