package tests

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"formsite/backend/auth"
	"formsite/backend/schema"
	"formsite/backend/services"
	"formsite/backend/storage"

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	backend services.Backend
	api     chi.Router
	storage storage.Storage
	db      *gorm.DB
}

const (
	adminUsername = "admin123"
	adminEmail    = "admin123@mail.com"
	adminPassword = "admin_password123"
)

func setupTestEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	err = db.AutoMigrate(
		&schema.Subsite{}, &schema.User{}, &schema.Form{}, &schema.FormResponse{},
		&schema.File{}, &schema.Message{}, &schema.Ticket{}, &schema.TicketResponse{},
	)
	if err != nil {
		t.Fatal(err)
	}

	storagePath := filepath.Join(t.TempDir(), "/storage")
	err = os.MkdirAll(storagePath, 0777)
	if err != nil {
		t.Fatalf("error creating storage directory: %v", err)
	}

	store := storage.NewSharedDisk(storagePath)

	userAuth, err := auth.NewBasicIdentityProvider(
		db,
		auth.NewAuditLogger(new(bytes.Buffer)),
		auth.BasicProviderArgs{
			Secret:        []byte("290zcv02ai249"),
			AdminUsername: adminUsername,
			AdminEmail:    adminEmail,
			AdminPassword: adminPassword,
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	backend := services.NewBackend(db, store, userAuth, services.Options{
		MaxUploadSize:     16 * 1024 * 1024,
		AllowedExtensions: []string{"pdf", "png", "jpg", "jpeg", "doc", "docx"},
	})

	return &testEnv{backend: backend, api: backend.Routes(), storage: store, db: db}
}

func (t *testEnv) newClient() client {
	return client{api: t.api}
}

func (t *testEnv) adminClient() (client, error) {
	c := t.newClient()
	err := c.login(loginInfo{Email: adminEmail, Password: adminPassword})
	return c, err
}

// newSubsite creates a subsite as the admin and returns its id, slug, and
// access code.
func (t *testEnv) newSubsite(name string) (subsiteInfo, error) {
	admin, err := t.adminClient()
	if err != nil {
		return subsiteInfo{}, err
	}
	return admin.createSubsite(name)
}

// newUser registers a user against the given subsite and logs them in.
func (t *testEnv) newUser(username string, subsite subsiteInfo) (client, error) {
	c := t.newClient()
	login, err := c.register(username, username+"@mail.com", username+"_password", subsite.Slug, subsite.AccessCode)
	if err != nil {
		return client{}, err
	}

	if err := c.login(login); err != nil {
		return client{}, err
	}

	return c, nil
}

// newSubadmin creates a subadmin in the given subsite via the admin api and
// logs them in.
func (t *testEnv) newSubadmin(username string, subsite subsiteInfo) (client, error) {
	admin, err := t.adminClient()
	if err != nil {
		return client{}, err
	}

	email := username + "@mail.com"
	password := username + "_password"
	if _, err := admin.createUser(username, email, password, "subadmin", subsite.Id); err != nil {
		return client{}, err
	}

	c := t.newClient()
	if err := c.login(loginInfo{Email: email, Password: password}); err != nil {
		return client{}, err
	}

	return c, nil
}

func basicFormStructure() map[string]interface{} {
	return map[string]interface{}{
		"fields": []map[string]interface{}{
			{"name": "full_name", "type": "text", "label": "Full Name", "required": true},
			{"name": "age", "type": "number", "label": "Age", "required": false},
		},
	}
}
